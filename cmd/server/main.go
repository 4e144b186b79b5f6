package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiwari-pos/ordercore/internal/cache"
	"github.com/kiwari-pos/ordercore/internal/config"
	"github.com/kiwari-pos/ordercore/internal/database"
	"github.com/kiwari-pos/ordercore/internal/kafka"
	"github.com/kiwari-pos/ordercore/internal/logger"
	"github.com/kiwari-pos/ordercore/internal/outbox"
	"github.com/kiwari-pos/ordercore/internal/payment"
	"github.com/kiwari-pos/ordercore/internal/router"
	"github.com/kiwari-pos/ordercore/internal/ws"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger.Setup("ordercore", cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	log.Info().Msg("connected to database")

	var statusCache cache.StatusCache = cache.NopStatusCache{}
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		statusCache = cache.NewRedisStatusCache(rdb, cfg.StatusCacheTTL)
		log.Info().Str("addr", cfg.RedisAddr).Msg("status cache enabled")
	}

	hub := ws.NewHub()
	publishers := []outbox.Publisher{outbox.NewHubPublisher(hub)}
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(kafka.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer producer.Close()
		publishers = append(publishers, outbox.NewKafkaPublisher(producer, "ordercore"))
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka publishing enabled")
	}

	relay := outbox.NewRelay(pool,
		func(db database.DBTX) outbox.Store { return database.New(db) },
		cfg.OutboxInterval,
		cfg.OutboxBatchSize,
		publishers...,
	)

	r := router.New(cfg, router.Deps{
		Pool:        pool,
		Queries:     database.New(pool),
		Hub:         hub,
		StatusCache: statusCache,
		Snap:        payment.NewSnapClient(cfg.MidtransBaseURL, cfg.MidtransServerKey, 10*time.Second),
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
