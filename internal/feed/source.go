package feed

import (
	"context"
	"time"
)

// RawQuote is a quote as delivered by the upstream broker, before it is
// validated and committed to the cache.
type RawQuote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

// Source is the connection to the upstream broker feed.
type Source interface {
	Connect(ctx context.Context) error
	Symbols(ctx context.Context) ([]string, error)
	Quote(ctx context.Context, symbol string) (RawQuote, error)
	Close() error
}

// Streamer is implemented by sources that push quotes. Stream blocks until
// ctx is done.
type Streamer interface {
	Stream(ctx context.Context, symbols []string, fn func(RawQuote)) error
}

type wireQuote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"time"`
}

func (w wireQuote) raw() RawQuote {
	q := RawQuote{Symbol: w.Symbol, Bid: w.Bid, Ask: w.Ask}
	if w.Time > 0 {
		q.Time = time.UnixMilli(w.Time).UTC()
	}
	return q
}
