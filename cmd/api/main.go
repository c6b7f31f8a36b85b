package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lv-brokerfeed/internal/auth"
	"lv-brokerfeed/internal/catalog"
	"lv-brokerfeed/internal/config"
	"lv-brokerfeed/internal/db"
	"lv-brokerfeed/internal/feed"
	"lv-brokerfeed/internal/health"
	"lv-brokerfeed/internal/httpserver"
	"lv-brokerfeed/internal/ledger"
	"lv-brokerfeed/internal/logger"
	"lv-brokerfeed/internal/marketdata"
	"lv-brokerfeed/internal/quotes"
	"lv-brokerfeed/internal/settings"
	"lv-brokerfeed/internal/settlement"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	lg := logger.New(cfg.LogLevel)
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	instruments, err := catalog.Load(cfg.CatalogFile)
	if err != nil {
		lg.Fatal("load catalog", zap.Error(err))
	}

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		lg.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()

	bus := quotes.NewBus()
	cache := quotes.NewCache(bus)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		mirror := quotes.NewRedisMirror(rdb, cfg.QuoteTTL, lg)
		if n, err := mirror.Warm(ctx, cache, instruments.Symbols()); err != nil {
			lg.Warn("quote mirror warm failed", zap.Error(err))
		} else {
			lg.Info("quote cache warmed", zap.Int("quotes", n))
		}
		go mirror.Run(ctx, bus)
	}

	rest := feed.NewHTTPSource(cfg.FeedURL, cfg.FeedAPIKey, cfg.FeedRPS)
	var source feed.Source = rest
	if cfg.FeedWSURL != "" {
		source = feed.NewWSSource(cfg.FeedWSURL, rest, lg)
	}
	adapter := feed.NewAdapter(source, cache, feed.Config{
		FetchTimeout: cfg.FeedFetchTimeout,
		PollInterval: cfg.FeedPollInterval,
		InitAttempts: uint64(cfg.FeedInitAttempts),
	}, lg)
	defer func() { _ = adapter.Close() }()
	go func() {
		if err := adapter.Run(ctx, instruments.Symbols()); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("feed stopped", zap.Error(err))
		}
	}()

	settingsStore := settings.NewStore(pool, lg)
	if _, err := settingsStore.Tiers(ctx); err != nil {
		lg.Error("ib tier table rejected, commissions use the default rate", zap.Error(err))
	}
	ledgerSvc := ledger.NewService(pool, lg)

	var publisher settlement.Publisher = settlement.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := settlement.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaIncomeTopic, lg)
		defer func() { _ = kp.Close() }()
		publisher = kp
	}
	settleSvc := settlement.NewService(adapter, instruments, settingsStore, ledgerSvc, ledgerSvc, publisher, lg)

	quoteWS := marketdata.NewQuoteWS(cfg.WebSocketOrigin, bus, adapter, instruments, lg)
	limiter := httpserver.NewRateLimiter(10, 30)
	go limiter.Run(ctx)

	healthHandler := health.NewHandler(pool, adapter, time.Now())
	healthHandler.AddCheck("ib_tiers", func(ctx context.Context) error {
		_, err := settingsStore.Tiers(ctx)
		return err
	})

	router := httpserver.NewRouter(httpserver.RouterDeps{
		MarketHandler:     marketdata.NewHandler(adapter, instruments, settingsStore, quoteWS, lg),
		IBHandler:         ledger.NewHandler(ledgerSvc, settingsStore, lg),
		SettlementHandler: settlement.NewHandler(settleSvc),
		HealthHandler:     healthHandler,
		Auth:              auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret)),
		InternalToken:     cfg.InternalToken,
		Limiter:           limiter,
		Metrics:           promhttp.Handler(),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		lg.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("http shutdown", zap.Error(err))
	}
}
