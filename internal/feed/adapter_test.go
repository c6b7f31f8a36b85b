package feed

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lv-brokerfeed/internal/quotes"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSource struct {
	mu          sync.Mutex
	symbols     []string
	quotes      map[string]RawQuote
	connectErrs int
	connects    atomic.Int32
	quoteCalls  atomic.Int32
	connectGate chan struct{}
	quoteGate   chan struct{}
}

func newFakeSource(symbols ...string) *fakeSource {
	f := &fakeSource{symbols: symbols, quotes: map[string]RawQuote{}}
	for _, s := range symbols {
		f.quotes[s] = RawQuote{Symbol: s, Bid: 1.1000, Ask: 1.1002, Time: time.Now()}
	}
	return f
}

func (f *fakeSource) Connect(ctx context.Context) error {
	f.connects.Add(1)
	if f.connectGate != nil {
		<-f.connectGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErrs > 0 {
		f.connectErrs--
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeSource) Symbols(ctx context.Context) ([]string, error) {
	return f.symbols, nil
}

func (f *fakeSource) Quote(ctx context.Context, symbol string) (RawQuote, error) {
	f.quoteCalls.Add(1)
	if f.quoteGate != nil {
		select {
		case <-f.quoteGate:
		case <-ctx.Done():
			return RawQuote{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[symbol]
	if !ok {
		return RawQuote{}, ErrUnknownSymbol
	}
	return q, nil
}

func (f *fakeSource) Close() error { return nil }

func newTestAdapter(t *testing.T, src Source) (*Adapter, *quotes.Cache) {
	t.Helper()
	cache := quotes.NewCache(nil)
	cfg := Config{
		FetchTimeout: 50 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		InitAttempts: 1,
		InitBackoff:  time.Millisecond,
	}
	return NewAdapter(src, cache, cfg, zaptest.NewLogger(t)), cache
}

func TestInitializeIsSingleFlight(t *testing.T) {
	src := newFakeSource("EURUSD")
	src.connectGate = make(chan struct{})
	a, _ := newTestAdapter(t, src)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- a.Initialize(context.Background())
		}()
	}
	require.Eventually(t, func() bool { return src.connects.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(src.connectGate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), src.connects.Load())
	assert.True(t, a.IsInitialized())
	assert.Equal(t, []string{"EURUSD"}, a.AvailableSymbols())

	require.NoError(t, a.Initialize(context.Background()))
	assert.Equal(t, int32(1), src.connects.Load())
}

func TestInitializeFailureAllowsRetry(t *testing.T) {
	src := newFakeSource("EURUSD")
	src.connectErrs = 1
	a, _ := newTestAdapter(t, src)

	err := a.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.True(t, Retryable(err))
	assert.False(t, a.IsInitialized())
	assert.Empty(t, a.AvailableSymbols())

	require.NoError(t, a.Initialize(context.Background()))
	assert.True(t, a.IsInitialized())
}

func TestInitializeRetriesWithBackoff(t *testing.T) {
	src := newFakeSource("EURUSD")
	src.connectErrs = 2
	cache := quotes.NewCache(nil)
	a := NewAdapter(src, cache, Config{InitAttempts: 3, InitBackoff: time.Millisecond}, zaptest.NewLogger(t))

	require.NoError(t, a.Initialize(context.Background()))
	assert.Equal(t, int32(3), src.connects.Load())
}

func TestInitializeSharedAttemptIgnoresFirstCallerCancel(t *testing.T) {
	src := newFakeSource("EURUSD")
	src.connectGate = make(chan struct{})
	a, _ := newTestAdapter(t, src)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- a.Initialize(first) }()
	require.Eventually(t, func() bool { return src.connects.Load() == 1 }, time.Second, time.Millisecond)

	second := make(chan error, 1)
	go func() { second <- a.Initialize(context.Background()) }()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)
	close(src.connectGate)

	require.NoError(t, <-second)
	assert.True(t, a.IsInitialized())
	assert.Equal(t, int32(1), src.connects.Load())
}

func TestGetPriceAsyncBeforeInit(t *testing.T) {
	src := newFakeSource("EURUSD")
	a, _ := newTestAdapter(t, src)

	_, err := a.GetPriceAsync(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.True(t, Retryable(err))
	assert.Zero(t, src.quoteCalls.Load())
}

func TestGetPriceAsyncCacheHitSkipsUpstream(t *testing.T) {
	src := newFakeSource("EURUSD")
	a, cache := newTestAdapter(t, src)
	_, err := cache.Set("EURUSD", 1.2, 1.3, time.Now())
	require.NoError(t, err)

	q, err := a.GetPriceAsync(context.Background(), "eurusd")
	require.NoError(t, err)
	assert.Equal(t, 1.2, q.Bid)
	assert.Zero(t, src.quoteCalls.Load())
}

func TestGetPriceAsyncUnknownSymbolSkipsUpstream(t *testing.T) {
	src := newFakeSource("EURUSD")
	a, _ := newTestAdapter(t, src)
	require.NoError(t, a.Initialize(context.Background()))

	_, err := a.GetPriceAsync(context.Background(), "FOOBAR")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
	assert.False(t, Retryable(err))
	assert.Zero(t, src.quoteCalls.Load())
}

func TestGetPriceAsyncFetchesThroughOnce(t *testing.T) {
	src := newFakeSource("EURUSD")
	src.quoteGate = make(chan struct{})
	a, cache := newTestAdapter(t, src)
	a.cfg.FetchTimeout = time.Second
	require.NoError(t, a.Initialize(context.Background()))

	var wg sync.WaitGroup
	results := make(chan quotes.Quote, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := a.GetPriceAsync(context.Background(), "EURUSD")
			if assert.NoError(t, err) {
				results <- q
			}
		}()
	}
	require.Eventually(t, func() bool { return src.quoteCalls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(src.quoteGate)
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), src.quoteCalls.Load())
	n := 0
	for q := range results {
		n++
		assert.Equal(t, "EURUSD", q.Symbol)
		assert.Equal(t, 1.1002, q.Ask)
	}
	assert.Equal(t, 10, n)

	cached, ok := cache.Get("EURUSD")
	require.True(t, ok)
	assert.Equal(t, 1.1000, cached.Bid)
}

func TestGetPriceAsyncTimeout(t *testing.T) {
	src := newFakeSource("EURUSD")
	src.quoteGate = make(chan struct{})
	a, cache := newTestAdapter(t, src)
	require.NoError(t, a.Initialize(context.Background()))

	_, err := a.GetPriceAsync(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.True(t, Retryable(err))
	_, ok := cache.Get("EURUSD")
	assert.False(t, ok)
}

func TestGetPriceAsyncRejectsInvalidUpstreamQuote(t *testing.T) {
	src := newFakeSource("EURUSD")
	src.quotes["EURUSD"] = RawQuote{Symbol: "EURUSD", Bid: 1.2, Ask: 1.1, Time: time.Now()}
	a, cache := newTestAdapter(t, src)
	require.NoError(t, a.Initialize(context.Background()))

	_, err := a.GetPriceAsync(context.Background(), "EURUSD")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	_, ok := cache.Get("EURUSD")
	assert.False(t, ok)
}

func TestGetPricesAsyncKeepsOrderAndSkipsFailures(t *testing.T) {
	src := newFakeSource("EURUSD", "BTCUSD", "XAUUSD")
	delete(src.quotes, "XAUUSD")
	a, _ := newTestAdapter(t, src)
	require.NoError(t, a.Initialize(context.Background()))

	got := a.GetPricesAsync(context.Background(), []string{"btcusd", "XAUUSD", "FOOBAR", "EURUSD", "BTCUSD"})
	require.Len(t, got, 2)
	assert.Equal(t, "BTCUSD", got[0].Symbol)
	assert.Equal(t, "EURUSD", got[1].Symbol)
}

func TestRunPollsWatchedSymbols(t *testing.T) {
	src := newFakeSource("EURUSD", "BTCUSD")
	a, cache := newTestAdapter(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, []string{"EURUSD", "XAUUSD"}) }()

	require.Eventually(t, func() bool {
		_, ok := cache.Get("EURUSD")
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	_, ok := cache.Get("BTCUSD")
	assert.False(t, ok, "unwatched symbols are not polled")
}

type streamingSource struct {
	*fakeSource
	pushed []RawQuote
}

func (s *streamingSource) Stream(ctx context.Context, symbols []string, fn func(RawQuote)) error {
	for _, q := range s.pushed {
		fn(q)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRunPrefersStreaming(t *testing.T) {
	base := newFakeSource("EURUSD")
	src := &streamingSource{
		fakeSource: base,
		pushed: []RawQuote{
			{Symbol: "EURUSD", Bid: 1.5, Ask: 1.6, Time: time.Now()},
			{Symbol: "EURUSD", Bid: 1.4, Ask: 1.5, Time: time.Now().Add(-time.Minute)},
		},
	}
	a, cache := newTestAdapter(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, []string{"EURUSD"}) }()

	require.Eventually(t, func() bool {
		_, ok := cache.Get("EURUSD")
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	q, _ := cache.Get("EURUSD")
	assert.Equal(t, 1.5, q.Bid, "older streamed quote must not replace newer one")
	assert.Zero(t, base.quoteCalls.Load())
}
