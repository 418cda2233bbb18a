package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/atharvakonge/crypto-academy/internal/config"
	"github.com/atharvakonge/crypto-academy/internal/db"
	"github.com/atharvakonge/crypto-academy/internal/handlers"
	"github.com/atharvakonge/crypto-academy/internal/ledger"
	"github.com/atharvakonge/crypto-academy/internal/logger"
	"github.com/atharvakonge/crypto-academy/internal/prices"
	"github.com/atharvakonge/crypto-academy/internal/progress"
	"github.com/atharvakonge/crypto-academy/internal/server"
	"github.com/atharvakonge/crypto-academy/internal/trading"
	"github.com/atharvakonge/crypto-academy/internal/users"
)

func main() {
	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("%s: can't load config", err)
	}

	zapLogger, loggerSync, err := logger.NewZapLogger(logger.ParseLevel(cfg.Log.Level))
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	if envErr != nil {
		zapLogger.Warnf("can't detect .env file, using environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatalf("%s: can't open store", err)
	}
	defer store.Close()

	hub := prices.NewHub(zapLogger)
	go hub.Run(ctx)

	coinGecko := prices.NewCoinGecko(cfg.Prices, zapLogger)
	defer coinGecko.Close()
	priceStore := prices.NewStore(store, coinGecko, hub, zapLogger)

	if cfg.Prices.RefreshSchedule != "" {
		refresher, err := prices.NewRefresher(priceStore, cfg.Prices.RefreshSchedule, cfg.Prices.Timeout, zapLogger)
		if err != nil {
			zapLogger.Fatalf("%s: can't schedule price refresh", err)
		}
		refresher.Start()
		defer refresher.Stop()
	}

	l := ledger.New(store)
	executor := trading.NewExecutor(store, l, priceStore, cfg.Trading.HistoryLimit, zapLogger)

	// Initialize trade processor
	tradeProcessor := trading.NewTradeProcessor(executor, cfg.Trading.Workers, cfg.Trading.QueueSize, zapLogger)
	tradeProcessor.Start()
	defer tradeProcessor.Stop()

	gin.SetMode(cfg.Server.Mode)
	router := handlers.NewRouter(handlers.Deps{
		Store:     store,
		StoreKind: string(cfg.Database.Store),
		Prices:    priceStore,
		Hub:       hub,
		Ledger:    l,
		Executor:  executor,
		Processor: tradeProcessor,
		Tracker:   progress.NewTracker(store, zapLogger),
		Users:     users.NewService(store, cfg.Trading.StartingCash, zapLogger),
		JWTSecret: cfg.Auth.JWTSecret,
		Logger:    zapLogger,
	})
	if cfg.Auth.JWTSecret == "" {
		zapLogger.Warnf("JWT_SECRET is not set, user routes are unauthenticated")
	}

	zapLogger.Infof("server starting on :%s (store: %s)", cfg.Server.Port, cfg.Database.Store)
	srv := server.NewHTTPServer(ctx, cfg.Server.Port, router, cfg.Server.ShutdownTimeout)
	if err := srv.Run(ctx); err != nil {
		zapLogger.Errorf("%s: server stopped", err)
		return
	}
	zapLogger.Infof("graceful shutdown complete")
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, l logger.Logger) (db.Store, error) {
	if cfg.Store == config.Memory {
		l.Warnf("using in-memory store, data is lost on restart")
		return db.NewMemory(), nil
	}

	pg, err := db.NewPostgres(cfg, l)
	if err != nil {
		return nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return pg, nil
}
