package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/blud-network/stellar-marketplace/internal/api"
	"github.com/blud-network/stellar-marketplace/internal/config"
	"github.com/blud-network/stellar-marketplace/internal/events/kafka"
	"github.com/blud-network/stellar-marketplace/internal/interfaces"
	"github.com/blud-network/stellar-marketplace/internal/registry"
	"github.com/blud-network/stellar-marketplace/internal/reporting"
	"github.com/blud-network/stellar-marketplace/internal/settlement"
	"github.com/blud-network/stellar-marketplace/internal/stellar"
	"github.com/blud-network/stellar-marketplace/internal/storage/memory"
	"github.com/blud-network/stellar-marketplace/internal/storage/postgres"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	var store interfaces.MarketplaceStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.WithError(err).Fatal("failed to open database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := postgres.Migrate(ctx, db); err != nil {
			cancel()
			log.WithError(err).Fatal("failed to apply migrations")
		}
		cancel()
		store = postgres.NewMarketplaceStore(db)
		log.Info("using postgres store")
	} else {
		store = memory.NewMarketplaceStore()
		log.Warn("DATABASE_URL not set, using in-memory store")
	}

	gateway := stellar.New(cfg.HorizonURL, cfg.NetworkPassphrase, cfg.FriendbotURL)

	engine := settlement.New(gateway, store, log)
	engine.WithDefaultAsset(cfg.DefaultAsset())
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher := kafka.NewPublisher(brokers)
		defer publisher.Close()
		engine.WithEvents(publisher)
		log.WithField("brokers", brokers).Info("kafka events enabled")
	}

	reg := registry.New(gateway, store, log)
	reporter := reporting.New(gateway, cfg.HolderScanLimit, log)
	handler := api.NewHandler(engine, reg, reporter, gateway, store, log)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
	log.Info("server stopped")
}
