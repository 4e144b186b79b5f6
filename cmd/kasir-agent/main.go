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
	"github.com/kiwari-pos/ordercore/internal/agent"
	"github.com/kiwari-pos/ordercore/internal/config"
	"github.com/kiwari-pos/ordercore/internal/logger"
	"github.com/kiwari-pos/ordercore/internal/offline"
	"github.com/kiwari-pos/ordercore/internal/posclient"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadAgent()
	logger.Setup("kasir-agent", cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("agent stopped")
	}
}

func run(cfg *config.AgentConfig) error {
	if cfg.OutletID == "" {
		return errors.New("OUTLET_ID is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := offline.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer store.Close()

	client := posclient.New(cfg.ServerURL, cfg.OutletID, cfg.Token, 2*cfg.RequestTimeout)
	syncer := offline.NewSyncer(store, client, cfg.SyncInterval, cfg.RequestTimeout, offline.BackoffConfig{
		Initial:             cfg.BackoffInitial,
		Max:                 cfg.BackoffMax,
		Multiplier:          offline.DefaultBackoff.Multiplier,
		RandomizationFactor: offline.DefaultBackoff.RandomizationFactor,
	})
	queue := offline.NewQueue(store, client, syncer, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:              "127.0.0.1:" + cfg.Port,
		Handler:           agent.NewRouter(agent.NewHandler(queue, syncer, store)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return syncer.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("server", cfg.ServerURL).Str("queue", cfg.DBPath).Msg("agent listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
