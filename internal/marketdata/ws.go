package marketdata

import (
	"net/http"
	"strings"
	"time"

	"lv-brokerfeed/internal/catalog"
	"lv-brokerfeed/internal/quotes"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPingPeriod = 30 * time.Second
)

type QuoteMessage struct {
	Type      string `json:"type"`
	Symbol    string `json:"symbol"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	Spread    string `json:"spread"`
	Timestamp int64  `json:"ts"`
}

type snapshotter interface {
	GetPrices(symbols []string) []quotes.Quote
}

// QuoteWS streams committed quotes to browser clients. Clients pick symbols
// with ?symbols=A,B; without it they receive every catalog symbol.
type QuoteWS struct {
	bus      *quotes.Bus
	cache    snapshotter
	catalog  *catalog.Catalog
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewQuoteWS(origin string, bus *quotes.Bus, cache snapshotter, cat *catalog.Catalog, logger *zap.Logger) *QuoteWS {
	return &QuoteWS{
		bus:      bus,
		cache:    cache,
		catalog:  cat,
		upgrader: websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) }},
		logger:   logger.Named("quote-ws"),
	}
}

func (h *QuoteWS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	if r.URL.Query().Has("symbols") {
		list, err := parseSymbolList(r.URL.Query().Get("symbols"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		symbols = list
	} else {
		symbols = h.catalog.Symbols()
	}
	wanted := toSet(symbols)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)

	for _, q := range h.cache.GetPrices(symbols) {
		if err := h.write(conn, q); err != nil {
			return
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case q, ok := <-sub:
			if !ok {
				return
			}
			if _, want := wanted[q.Symbol]; !want {
				continue
			}
			if err := h.write(conn, q); err != nil {
				h.logger.Debug("client write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (h *QuoteWS) write(conn *websocket.Conn, q quotes.Quote) error {
	digits := -1
	if inst, ok := h.catalog.Find(q.Symbol); ok && inst.Digits > 0 {
		digits = inst.Digits
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(QuoteMessage{
		Type:      "quote",
		Symbol:    q.Symbol,
		Bid:       formatPrice(q.Bid, digits),
		Ask:       formatPrice(q.Ask, digits),
		Spread:    formatPrice(q.Spread(), digits),
		Timestamp: q.Time.UnixMilli(),
	})
}

func allowOrigin(r *http.Request, origin string) bool {
	if origin == "*" || origin == "" {
		return true
	}
	return strings.EqualFold(r.Header.Get("Origin"), origin)
}
