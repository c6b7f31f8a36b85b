package marketdata

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lv-brokerfeed/internal/catalog"
	"lv-brokerfeed/internal/httputil"
	"lv-brokerfeed/internal/quotes"
	"lv-brokerfeed/internal/settings"
	"lv-brokerfeed/internal/types"

	"go.uber.org/zap"
)

type Feed interface {
	Initialize(ctx context.Context) error
	IsInitialized() bool
	AvailableSymbols() []string
	GetPrices(symbols []string) []quotes.Quote
	GetPriceAsync(ctx context.Context, symbol string) (quotes.Quote, error)
	GetPricesAsync(ctx context.Context, symbols []string) []quotes.Quote
}

type SettingsSource interface {
	ActiveTrading(ctx context.Context) settings.TradingSettings
}

type Handler struct {
	feed     Feed
	catalog  *catalog.Catalog
	settings SettingsSource
	logger   *zap.Logger
	WS       *QuoteWS
}

func NewHandler(feed Feed, cat *catalog.Catalog, cfg SettingsSource, ws *QuoteWS, logger *zap.Logger) *Handler {
	return &Handler{feed: feed, catalog: cat, settings: cfg, WS: ws, logger: logger.Named("marketdata")}
}

type priceView struct {
	Bid    string    `json:"bid"`
	Ask    string    `json:"ask"`
	Spread string    `json:"spread"`
	Time   time.Time `json:"time"`
}

type priceResponse struct {
	Symbol     string              `json:"symbol"`
	Bid        string              `json:"bid"`
	Ask        string              `json:"ask"`
	Spread     string              `json:"spread"`
	Time       time.Time           `json:"time"`
	Instrument *catalog.Instrument `json:"instrument"`
}

type instrumentView struct {
	catalog.Instrument
	Live bool `json:"live"`
}

type instrumentsResponse struct {
	Instruments []instrumentView       `json:"instruments"`
	Counts      map[types.Category]int `json:"counts"`
	Live        bool                   `json:"live"`
}

type symbolsResponse struct {
	Symbols    []string                    `json:"symbols"`
	ByCategory map[types.Category][]string `json:"by_category"`
	Unlisted   []string                    `json:"unlisted"`
	Live       bool                        `json:"live"`
}

// Prices answers from the quote cache only.
func (h *Handler) Prices(w http.ResponseWriter, r *http.Request) {
	httputil.NoCache(w)
	symbols, err := parseSymbolList(r.URL.Query().Get("symbols"))
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.priceMap(h.feed.GetPrices(symbols)))
}

// LivePrices fetches uncached symbols through the upstream before answering.
func (h *Handler) LivePrices(w http.ResponseWriter, r *http.Request) {
	httputil.NoCache(w)
	q := r.URL.Query()

	var symbols []string
	switch {
	case q.Has("symbols"):
		list, err := parseSymbolList(q.Get("symbols"))
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: err.Error()})
			return
		}
		symbols = list
	case q.Get("category") != "":
		cat := types.ParseCategory(q.Get("category"))
		if !cat.Valid() {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "unknown category"})
			return
		}
		symbols = symbolsOf(h.catalog.ByCategory(cat))
	default:
		symbols = h.catalog.Symbols()
	}

	h.ensureFeed(r.Context())
	httputil.WriteJSON(w, http.StatusOK, h.priceMap(h.feed.GetPricesAsync(r.Context(), symbols)))
}

// Price returns one symbol's quote with its instrument metadata, or 404 when
// no quote can be had.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	httputil.NoCache(w)
	symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
	if symbol == "" || !validSymbol(symbol) {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.ErrorResponse{Error: "invalid symbol"})
		return
	}

	h.ensureFeed(r.Context())
	quote, err := h.feed.GetPriceAsync(r.Context(), symbol)
	if err != nil {
		h.logger.Debug("price unavailable", zap.String("symbol", symbol), zap.Error(err))
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: "price not available"})
		return
	}

	digits := h.digits(symbol)
	resp := priceResponse{
		Symbol: quote.Symbol,
		Bid:    formatPrice(quote.Bid, digits),
		Ask:    formatPrice(quote.Ask, digits),
		Spread: formatPrice(quote.Spread(), digits),
		Time:   quote.Time,
	}
	if inst, ok := h.catalog.Find(symbol); ok {
		resp.Instrument = &inst
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Instruments lists catalog instruments the broker offers. With the feed down
// the whole static catalog is returned and marked not live.
func (h *Handler) Instruments(w http.ResponseWriter, r *http.Request) {
	httputil.NoCache(w)
	var items []catalog.Instrument
	if raw := r.URL.Query().Get("category"); raw != "" {
		items = h.catalog.ByCategory(types.ParseCategory(raw))
	} else {
		items = h.catalog.All()
	}

	h.ensureFeed(r.Context())
	live := h.feed.IsInitialized()
	available := toSet(h.feed.AvailableSymbols())

	out := make([]instrumentView, 0, len(items))
	counts := make(map[types.Category]int, len(types.Categories))
	for _, cat := range types.Categories {
		counts[cat] = 0
	}
	for _, inst := range items {
		_, offered := available[inst.Symbol]
		if live && !offered {
			continue
		}
		out = append(out, instrumentView{Instrument: inst, Live: offered})
		counts[inst.Category]++
	}
	httputil.WriteJSON(w, http.StatusOK, instrumentsResponse{Instruments: out, Counts: counts, Live: live})
}

func (h *Handler) Symbols(w http.ResponseWriter, r *http.Request) {
	httputil.NoCache(w)
	h.ensureFeed(r.Context())
	live := h.feed.IsInitialized()

	var items []catalog.Instrument
	if live {
		items = h.catalog.Intersect(h.feed.AvailableSymbols())
	} else {
		items = h.catalog.All()
	}
	byCategory := make(map[types.Category][]string, len(types.Categories))
	for _, cat := range types.Categories {
		byCategory[cat] = []string{}
	}
	for _, inst := range items {
		byCategory[inst.Category] = append(byCategory[inst.Category], inst.Symbol)
	}
	unlisted := h.catalog.Unlisted(h.feed.AvailableSymbols())
	if unlisted == nil {
		unlisted = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, symbolsResponse{
		Symbols:    symbolsOf(items),
		ByCategory: byCategory,
		Unlisted:   unlisted,
		Live:       live,
	})
}

// TradingSettings always answers 200; the store falls back to defaults.
func (h *Handler) TradingSettings(w http.ResponseWriter, r *http.Request) {
	httputil.NoCache(w)
	httputil.WriteJSON(w, http.StatusOK, h.settings.ActiveTrading(r.Context()))
}

// ensureFeed gives the adapter a chance to initialize on demand. Failure is
// logged; callers degrade to cache or static data.
func (h *Handler) ensureFeed(ctx context.Context) {
	if h.feed.IsInitialized() {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.feed.Initialize(ctx); err != nil {
		h.logger.Debug("feed not ready", zap.Error(err))
	}
}

func (h *Handler) priceMap(qs []quotes.Quote) map[string]priceView {
	out := make(map[string]priceView, len(qs))
	for _, q := range qs {
		digits := h.digits(q.Symbol)
		out[q.Symbol] = priceView{
			Bid:    formatPrice(q.Bid, digits),
			Ask:    formatPrice(q.Ask, digits),
			Spread: formatPrice(q.Spread(), digits),
			Time:   q.Time,
		}
	}
	return out
}

func (h *Handler) digits(symbol string) int {
	if inst, ok := h.catalog.Find(symbol); ok && inst.Digits > 0 {
		return inst.Digits
	}
	return -1
}

func formatPrice(v float64, digits int) string {
	return strconv.FormatFloat(v, 'f', digits, 64)
}

func symbolsOf(items []catalog.Instrument) []string {
	out := make([]string, len(items))
	for i, inst := range items {
		out[i] = inst.Symbol
	}
	return out
}

func toSet(list []string) map[string]struct{} {
	out := make(map[string]struct{}, len(list))
	for _, s := range list {
		out[s] = struct{}{}
	}
	return out
}
