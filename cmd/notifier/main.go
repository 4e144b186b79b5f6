package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kiwari-pos/ordercore/internal/cache"
	"github.com/kiwari-pos/ordercore/internal/config"
	"github.com/kiwari-pos/ordercore/internal/kafka"
	"github.com/kiwari-pos/ordercore/internal/logger"
	"github.com/kiwari-pos/ordercore/internal/notify"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()
	cfg := config.LoadNotifier()
	logger.Setup("notifier", cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("notifier stopped")
	}
}

func run(cfg *config.NotifierConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var dedup cache.Deduper = cache.NewMemoryDeduper(0)
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		dedup = cache.NewRedisDeduper(rdb, cfg.KafkaGroup, cfg.DedupTTL)
	}

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if cfg.WebhookURL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.WebhookURL, cfg.WebhookToken, cfg.WebhookTimeout)
		log.Info().Str("url", cfg.WebhookURL).Msg("webhook dispatch enabled")
	}

	n := notify.NewNotifier(dispatcher, dedup, cfg.StoreName, cfg.Recipient)
	consumer := kafka.NewConsumer(kafka.NewReader(cfg.KafkaBrokers, cfg.KafkaGroup, cfg.KafkaTopic), cfg.Workers)

	log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Str("group", cfg.KafkaGroup).
		Msg("consuming order events")
	return consumer.Start(ctx, n.Handle)
}
