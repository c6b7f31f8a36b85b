package quotes

import (
	"errors"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"lv-brokerfeed/internal/metrics"
)

var (
	ErrInvalidQuote = errors.New("invalid quote")
	ErrStaleQuote   = errors.New("stale quote")
)

type entry struct {
	mu    sync.Mutex
	quote atomic.Pointer[Quote]
}

// Cache holds the latest quote per symbol. Readers load an immutable snapshot
// without locking; writers serialize on the per-symbol entry only.
type Cache struct {
	entries sync.Map
	bus     *Bus
	now     func() time.Time
}

func NewCache(bus *Bus) *Cache {
	return &Cache{bus: bus, now: time.Now}
}

func (c *Cache) Get(symbol string) (Quote, bool) {
	v, ok := c.entries.Load(NormalizeSymbol(symbol))
	if !ok {
		return Quote{}, false
	}
	q := v.(*entry).quote.Load()
	if q == nil {
		return Quote{}, false
	}
	return *q, true
}

// GetMany returns cached quotes in request order. Unknown symbols and
// duplicates are skipped.
func (c *Cache) GetMany(symbols []string) []Quote {
	out := make([]Quote, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		if q, ok := c.Get(s); ok {
			out = append(out, q)
		}
	}
	return out
}

// Set overwrites the cached quote for symbol. Quotes with a non-positive side,
// a negative spread or a timestamp older than the stored one are rejected and
// the stored quote is returned unchanged.
func (c *Cache) Set(symbol string, bid, ask float64, at time.Time) (Quote, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" || !validPrice(bid) || !validPrice(ask) {
		metrics.QuoteUpdates.WithLabelValues("invalid").Inc()
		return Quote{}, ErrInvalidQuote
	}
	if ask < bid {
		metrics.QuoteUpdates.WithLabelValues("invalid").Inc()
		return Quote{}, ErrInvalidQuote
	}
	if at.IsZero() {
		at = c.now()
	}
	e := c.entry(symbol)

	e.mu.Lock()
	if cur := e.quote.Load(); cur != nil && at.Before(cur.Time) {
		stored := *cur
		e.mu.Unlock()
		metrics.QuoteUpdates.WithLabelValues("stale").Inc()
		return stored, ErrStaleQuote
	}
	q := &Quote{Symbol: symbol, Bid: bid, Ask: ask, Time: at.UTC()}
	e.quote.Store(q)
	e.mu.Unlock()

	metrics.QuoteUpdates.WithLabelValues("committed").Inc()
	if c.bus != nil {
		c.bus.Publish(*q)
	}
	return *q, nil
}

// Symbols lists every symbol holding a committed quote, sorted.
func (c *Cache) Symbols() []string {
	out := make([]string, 0, 64)
	c.entries.Range(func(k, v any) bool {
		if v.(*entry).quote.Load() != nil {
			out = append(out, k.(string))
		}
		return true
	})
	sort.Strings(out)
	return out
}

func (c *Cache) Len() int {
	return len(c.Symbols())
}

func (c *Cache) entry(symbol string) *entry {
	if v, ok := c.entries.Load(symbol); ok {
		return v.(*entry)
	}
	v, _ := c.entries.LoadOrStore(symbol, &entry{})
	return v.(*entry)
}

func validPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
