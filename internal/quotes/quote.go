package quotes

import (
	"strings"
	"time"
)

type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Age reports how long ago the quote was produced upstream.
func (q Quote) Age(now time.Time) time.Duration {
	if q.Time.IsZero() {
		return 0
	}
	return now.Sub(q.Time)
}

func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
