package quotes

import (
	"sync"
	"sync/atomic"
)

// Bus fans committed quotes out to subscribers. Slow subscribers lose
// updates instead of blocking the writer.
type Bus struct {
	mu      sync.RWMutex
	subs    map[chan Quote]struct{}
	dropped atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Quote]struct{})}
}

func (b *Bus) Subscribe() chan Quote {
	ch := make(chan Quote, 256)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Quote) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(q Quote) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- q:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.RUnlock()
}

func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}
