package quotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	for i := 0; i < cap(ch)+10; i++ {
		bus.Publish(Quote{Symbol: "EURUSD", Bid: 1, Ask: 1})
	}
	assert.Len(t, ch, cap(ch))
	assert.Equal(t, uint64(10), bus.Dropped())

	bus.Unsubscribe(ch)
	bus.Unsubscribe(ch)
	_, open := <-ch
	for open {
		_, open = <-ch
	}
}
