package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("OUTBOX_INTERVAL", "")

	cfg := Load()
	if cfg.Port != "8081" {
		t.Errorf("Port = %q, want 8081", cfg.Port)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("KafkaBrokers = %v, want none", cfg.KafkaBrokers)
	}
	if cfg.OutboxInterval != time.Second {
		t.Errorf("OutboxInterval = %v, want 1s", cfg.OutboxInterval)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("OUTBOX_INTERVAL", "250ms")
	t.Setenv("DATABASE_MAX_CONNS", "4")
	t.Setenv("ALLOWED_ORIGINS", "https://kasir.example")

	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("KafkaBrokers = %v", cfg.KafkaBrokers)
	}
	if cfg.OutboxInterval != 250*time.Millisecond {
		t.Errorf("OutboxInterval = %v", cfg.OutboxInterval)
	}
	if cfg.DatabaseMaxConns != 4 {
		t.Errorf("DatabaseMaxConns = %d", cfg.DatabaseMaxConns)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://kasir.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadAgent_BadDurationFallsBack(t *testing.T) {
	t.Setenv("SYNC_INTERVAL", "soon")
	cfg := LoadAgent()
	if cfg.SyncInterval != 15*time.Second {
		t.Errorf("SyncInterval = %v, want 15s fallback", cfg.SyncInterval)
	}
}

func TestLoadNotifier_FromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("NOTIFY_DEDUP_TTL", "2h")
	t.Setenv("NOTIFY_WEBHOOK_URL", "https://wa.example/send")

	cfg := LoadNotifier()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.KafkaBrokers)
	}
	if cfg.DedupTTL != 2*time.Hour {
		t.Errorf("dedup ttl = %v", cfg.DedupTTL)
	}
	if cfg.WebhookURL != "https://wa.example/send" || cfg.WebhookTimeout != 10*time.Second {
		t.Errorf("webhook = %q / %v", cfg.WebhookURL, cfg.WebhookTimeout)
	}
}
