package feed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"lv-brokerfeed/internal/metrics"
	"lv-brokerfeed/internal/quotes"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	FetchTimeout time.Duration
	PollInterval time.Duration
	InitAttempts uint64
	// InitBackoff is the first delay between connect attempts; it doubles up
	// to five seconds.
	InitBackoff time.Duration
	// InitTimeout bounds one shared initialization attempt, retries included.
	InitTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 3 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.InitAttempts == 0 {
		c.InitAttempts = 5
	}
	if c.InitBackoff <= 0 {
		c.InitBackoff = 200 * time.Millisecond
	}
	if c.InitTimeout <= 0 {
		c.InitTimeout = 30 * time.Second
	}
	return c
}

// Adapter owns the upstream connection and keeps the quote cache filled.
type Adapter struct {
	source Source
	cache  *quotes.Cache
	cfg    Config
	logger *zap.Logger

	group       singleflight.Group
	initialized atomic.Bool

	mu        sync.RWMutex
	available map[string]struct{}
	symbols   []string
}

func NewAdapter(source Source, cache *quotes.Cache, cfg Config, logger *zap.Logger) *Adapter {
	return &Adapter{
		source:    source,
		cache:     cache,
		cfg:       cfg.withDefaults(),
		logger:    logger.Named("feed"),
		available: map[string]struct{}{},
	}
}

// Initialize connects to the upstream and loads its symbol list. Concurrent
// callers share one attempt, bounded by InitTimeout rather than by any
// caller's context; a caller that gives up early leaves it running for the
// others. Once it succeeds later calls return immediately; after a failure
// the next call tries again.
func (a *Adapter) Initialize(ctx context.Context) error {
	if a.initialized.Load() {
		return nil
	}
	ch := a.group.DoChan("init", func() (any, error) {
		if a.initialized.Load() {
			return nil, nil
		}
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.InitTimeout)
		defer cancel()
		return nil, a.initialize(ictx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return unavailable(ctx.Err())
	}
}

func (a *Adapter) initialize(ctx context.Context) error {
	backoff := retry.WithMaxRetries(a.cfg.InitAttempts-1,
		retry.WithCappedDuration(5*time.Second, retry.NewExponential(a.cfg.InitBackoff)))

	var symbols []string
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := a.source.Connect(ctx); err != nil {
			metrics.FeedInitAttempts.WithLabelValues("error").Inc()
			a.logger.Warn("upstream connect failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		list, err := a.source.Symbols(ctx)
		if err != nil {
			metrics.FeedInitAttempts.WithLabelValues("error").Inc()
			a.logger.Warn("upstream symbol list failed", zap.Error(err))
			return retry.RetryableError(err)
		}
		symbols = list
		return nil
	})
	if err != nil {
		return fmt.Errorf("initialize feed: %w", unavailable(err))
	}

	a.setSymbols(symbols)
	a.initialized.Store(true)
	metrics.FeedInitAttempts.WithLabelValues("ok").Inc()
	metrics.FeedInitialized.Set(1)
	a.logger.Info("upstream initialized", zap.Int("symbols", len(a.symbols)))
	return nil
}

func (a *Adapter) setSymbols(list []string) {
	available := make(map[string]struct{}, len(list))
	for _, s := range list {
		if s = quotes.NormalizeSymbol(s); s != "" {
			available[s] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(available))
	for s := range available {
		sorted = append(sorted, s)
	}
	sort.Strings(sorted)

	a.mu.Lock()
	a.available = available
	a.symbols = sorted
	a.mu.Unlock()
}

func (a *Adapter) IsInitialized() bool {
	return a.initialized.Load()
}

// AvailableSymbols lists the symbols the upstream reported at initialization.
func (a *Adapter) AvailableSymbols() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, len(a.symbols))
	copy(out, a.symbols)
	return out
}

func (a *Adapter) isAvailable(symbol string) bool {
	a.mu.RLock()
	_, ok := a.available[symbol]
	a.mu.RUnlock()
	return ok
}

func (a *Adapter) GetPrice(symbol string) (quotes.Quote, bool) {
	return a.cache.Get(symbol)
}

func (a *Adapter) GetPrices(symbols []string) []quotes.Quote {
	return a.cache.GetMany(symbols)
}

// GetPriceAsync answers from the cache, falling back to one upstream fetch
// shared by every concurrent caller for the same symbol.
func (a *Adapter) GetPriceAsync(ctx context.Context, symbol string) (quotes.Quote, error) {
	symbol = quotes.NormalizeSymbol(symbol)
	if q, ok := a.cache.Get(symbol); ok {
		metrics.FetchThrough.WithLabelValues("cache_hit").Inc()
		return q, nil
	}
	if !a.initialized.Load() {
		return quotes.Quote{}, ErrNotInitialized
	}
	if !a.isAvailable(symbol) {
		return quotes.Quote{}, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
	}

	ch := a.group.DoChan("quote:"+symbol, func() (any, error) {
		return a.fetch(context.WithoutCancel(ctx), symbol)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return quotes.Quote{}, res.Err
		}
		return res.Val.(quotes.Quote), nil
	case <-ctx.Done():
		return quotes.Quote{}, unavailable(ctx.Err())
	}
}

// GetPricesAsync fetches a batch concurrently and returns the quotes it could
// get in request order.
func (a *Adapter) GetPricesAsync(ctx context.Context, symbols []string) []quotes.Quote {
	seen := make(map[string]struct{}, len(symbols))
	uniq := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = quotes.NormalizeSymbol(s)
		if _, dup := seen[s]; dup || s == "" {
			continue
		}
		seen[s] = struct{}{}
		uniq = append(uniq, s)
	}

	results := make([]*quotes.Quote, len(uniq))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, s := range uniq {
		g.Go(func() error {
			q, err := a.GetPriceAsync(gctx, s)
			if err != nil {
				a.logger.Debug("quote unavailable", zap.String("symbol", s), zap.Error(err))
				return nil
			}
			results[i] = &q
			return nil
		})
	}
	_ = g.Wait()

	out := make([]quotes.Quote, 0, len(uniq))
	for _, q := range results {
		if q != nil {
			out = append(out, *q)
		}
	}
	return out
}

func (a *Adapter) fetch(ctx context.Context, symbol string) (quotes.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	raw, err := a.source.Quote(ctx, symbol)
	metrics.FetchLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, ErrUnknownSymbol) {
			metrics.FetchThrough.WithLabelValues("unknown").Inc()
			return quotes.Quote{}, err
		}
		metrics.FetchThrough.WithLabelValues("error").Inc()
		return quotes.Quote{}, unavailable(err)
	}

	q, err := a.commit(symbol, raw)
	if err != nil {
		metrics.FetchThrough.WithLabelValues("invalid").Inc()
		return quotes.Quote{}, unavailable(err)
	}
	metrics.FetchThrough.WithLabelValues("fetched").Inc()
	return q, nil
}

// commit stores raw under symbol. A stale result is not an error: the newer
// cached quote is returned instead.
func (a *Adapter) commit(symbol string, raw RawQuote) (quotes.Quote, error) {
	q, err := a.cache.Set(symbol, raw.Bid, raw.Ask, raw.Time)
	if errors.Is(err, quotes.ErrStaleQuote) {
		return q, nil
	}
	return q, err
}

func (a *Adapter) ingest(raw RawQuote) {
	if _, err := a.commit(raw.Symbol, raw); err != nil {
		a.logger.Debug("quote rejected", zap.String("symbol", raw.Symbol), zap.Error(err))
	}
}

// Run initializes the adapter and then keeps the cache warm for the watched
// symbols the upstream supports, streaming when the source can push and
// polling otherwise. It returns when ctx is done.
func (a *Adapter) Run(ctx context.Context, watch []string) error {
	for {
		err := a.Initialize(ctx)
		if err == nil {
			break
		}
		a.logger.Error("feed initialization failed", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.cfg.PollInterval * 5):
		}
	}

	symbols := make([]string, 0, len(watch))
	for _, s := range watch {
		if s = quotes.NormalizeSymbol(s); a.isAvailable(s) {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		a.logger.Warn("no watched symbols are offered upstream")
		<-ctx.Done()
		return ctx.Err()
	}

	if st, ok := a.source.(Streamer); ok {
		a.logger.Info("streaming quotes", zap.Int("symbols", len(symbols)))
		return st.Stream(ctx, symbols, a.ingest)
	}

	a.logger.Info("polling quotes", zap.Int("symbols", len(symbols)), zap.Duration("interval", a.cfg.PollInterval))
	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		a.poll(ctx, symbols)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (a *Adapter) poll(ctx context.Context, symbols []string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, s := range symbols {
		g.Go(func() error {
			if _, err := a.fetch(gctx, s); err != nil && gctx.Err() == nil {
				a.logger.Debug("poll failed", zap.String("symbol", s), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Close releases the upstream connection.
func (a *Adapter) Close() error {
	metrics.FeedInitialized.Set(0)
	return a.source.Close()
}
