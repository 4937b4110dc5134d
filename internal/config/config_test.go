package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOW_STOCK_THRESHOLD", "12")
	t.Setenv("LOW_STOCK_INTERVAL_MINUTES", "3")
	t.Setenv("BALANCE_CACHE_TTL_SECONDS", "45")

	cfg := Load()
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.Address())
	}
	if cfg.LowStockThreshold != 12 {
		t.Fatalf("expected threshold 12, got %d", cfg.LowStockThreshold)
	}
	if cfg.LowStockIntervalMinutes != 3 {
		t.Fatalf("expected interval 3, got %d", cfg.LowStockIntervalMinutes)
	}
	if cfg.BalanceCacheTTLSeconds != 45 {
		t.Fatalf("expected balance TTL 45, got %d", cfg.BalanceCacheTTLSeconds)
	}
}

func TestLoadFallsBackOnInvalidInts(t *testing.T) {
	t.Setenv("LOW_STOCK_THRESHOLD", "not-a-number")
	t.Setenv("LOW_STOCK_INTERVAL_MINUTES", "-4")

	cfg := Load()
	if cfg.LowStockThreshold != 5 {
		t.Fatalf("expected default threshold 5, got %d", cfg.LowStockThreshold)
	}
	if cfg.LowStockIntervalMinutes != 10 {
		t.Fatalf("expected default interval 10, got %d", cfg.LowStockIntervalMinutes)
	}
}
