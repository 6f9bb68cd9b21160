package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Errorf("expected default env development, got %s", cfg.Env)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("unexpected pool defaults: max=%d min=%d", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.EventMaxRetries != 5 {
		t.Errorf("expected default EVENT_MAX_RETRIES 5, got %d", cfg.EventMaxRetries)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("INVENTORY_TIMEOUT_MS", "500")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.InventoryTimeout() != 500*time.Millisecond {
		t.Errorf("expected 500ms timeout, got %s", cfg.InventoryTimeout())
	}
}

func TestLoad_ConsumerURLsSplit(t *testing.T) {
	t.Setenv("EVENT_CONSUMER_URLS", "http://labels.local/hook,http://billing.local/hook")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.EventConsumerURLs) != 2 {
		t.Fatalf("expected 2 consumer urls, got %d", len(cfg.EventConsumerURLs))
	}
	if cfg.EventConsumerURLs[1] != "http://billing.local/hook" {
		t.Errorf("unexpected second url: %s", cfg.EventConsumerURLs[1])
	}
}

func TestValidate_ProductionRequiresDatabase(t *testing.T) {
	cfg := &Config{Env: "production", DBMaxConns: 10, DBMinConns: 2}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing DATABASE_URL in production")
	}
}

func TestValidate_PoolBounds(t *testing.T) {
	cfg := &Config{Env: "development", DBMaxConns: 2, DBMinConns: 10}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when min conns exceed max conns")
	}
}
