package quotes

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const mirrorKeyPrefix = "brokerfeed:quote:"

// RedisMirror copies committed quotes into Redis hashes so sibling processes
// and restarts can see the last known price.
type RedisMirror struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisMirror(client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *RedisMirror {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisMirror{client: client, ttl: ttl, logger: logger.Named("quote-mirror")}
}

// Run drains bus until ctx is done.
func (m *RedisMirror) Run(ctx context.Context, bus *Bus) {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case q, ok := <-ch:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, time.Second)
			if err := m.Write(writeCtx, q); err != nil {
				m.logger.Warn("mirror write failed", zap.String("symbol", q.Symbol), zap.Error(err))
			}
			cancel()
		}
	}
}

func (m *RedisMirror) Write(ctx context.Context, q Quote) error {
	key := mirrorKeyPrefix + q.Symbol
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, key, encodeMirrored(q))
	pipe.Expire(ctx, key, m.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Warm seeds cache with mirrored quotes for symbols. It returns how many
// quotes were committed.
func (m *RedisMirror) Warm(ctx context.Context, cache *Cache, symbols []string) (int, error) {
	warmed := 0
	for _, s := range symbols {
		fields, err := m.client.HGetAll(ctx, mirrorKeyPrefix+NormalizeSymbol(s)).Result()
		if err != nil {
			return warmed, err
		}
		if len(fields) == 0 {
			continue
		}
		q, err := decodeMirrored(NormalizeSymbol(s), fields)
		if err != nil {
			m.logger.Debug("skip mirrored quote", zap.String("symbol", s), zap.Error(err))
			continue
		}
		if _, err := cache.Set(q.Symbol, q.Bid, q.Ask, q.Time); err == nil {
			warmed++
		}
	}
	return warmed, nil
}

func encodeMirrored(q Quote) map[string]any {
	return map[string]any{
		"bid":  strconv.FormatFloat(q.Bid, 'f', -1, 64),
		"ask":  strconv.FormatFloat(q.Ask, 'f', -1, 64),
		"time": strconv.FormatInt(q.Time.UnixMilli(), 10),
	}
}

func decodeMirrored(symbol string, fields map[string]string) (Quote, error) {
	bid, err := strconv.ParseFloat(fields["bid"], 64)
	if err != nil {
		return Quote{}, errors.New("bad bid")
	}
	ask, err := strconv.ParseFloat(fields["ask"], 64)
	if err != nil {
		return Quote{}, errors.New("bad ask")
	}
	ms, err := strconv.ParseInt(fields["time"], 10, 64)
	if err != nil {
		return Quote{}, errors.New("bad time")
	}
	return Quote{Symbol: symbol, Bid: bid, Ask: ask, Time: time.UnixMilli(ms).UTC()}, nil
}
