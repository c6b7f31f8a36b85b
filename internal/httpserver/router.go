package httpserver

import (
	"net/http"

	"lv-brokerfeed/internal/health"
	"lv-brokerfeed/internal/ledger"
	"lv-brokerfeed/internal/marketdata"
	"lv-brokerfeed/internal/settlement"

	"github.com/go-chi/chi/v5"
)

type RouterDeps struct {
	MarketHandler     *marketdata.Handler
	IBHandler         *ledger.Handler
	SettlementHandler *settlement.Handler
	HealthHandler     *health.Handler
	Auth              TokenParser
	InternalToken     string
	Limiter           *RateLimiter
	Metrics           http.Handler
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Use(SecurityHeaders)
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}

	if d.HealthHandler != nil {
		r.Get("/health", d.HealthHandler.Ready)
		r.Get("/health/live", d.HealthHandler.Live)
	}
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if m := d.MarketHandler; m != nil {
			r.Get("/prices", m.Prices)
			r.Get("/prices/live", m.LivePrices)
			r.Get("/price", m.Price)
			r.Get("/instruments", m.Instruments)
			r.Get("/symbols", m.Symbols)
			r.Get("/trading/settings", m.TradingSettings)
			if m.WS != nil {
				r.Method(http.MethodGet, "/market/ws", m.WS)
			}
		}

		if d.IBHandler != nil && d.Auth != nil {
			r.Group(func(r chi.Router) {
				r.Use(WithAuth(d.Auth))
				r.Get("/ib/status", withUser(d.IBHandler.IBStatus))
				r.Post("/ib/withdrawals", withUser(d.IBHandler.Withdraw))
			})
		}

		if d.SettlementHandler != nil {
			r.Group(func(r chi.Router) {
				r.Use(InternalAuth(d.InternalToken))
				r.Post("/internal/settlements", d.SettlementHandler.Create)
			})
		}
	})

	return r
}
