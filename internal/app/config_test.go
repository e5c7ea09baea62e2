package app

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "SEARCH_TIMEOUT_SECONDS", "DANMU_REGISTRY_FILE", "DANMU_API_URL",
		"DANMU_DEFAULT_PROVIDER", "DANMU_CACHE_SECONDS", "REDIS_URL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	if cfg.HTTPAddr != ":8091" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.RequestTimeout)
	}
	if cfg.DefaultProvider != "netlify" {
		t.Fatalf("unexpected default provider %q", cfg.DefaultProvider)
	}
	if cfg.CacheSeconds != 7200 {
		t.Fatalf("unexpected cache seconds %d", cfg.CacheSeconds)
	}
	if cfg.RateLimitRPS != 50 || cfg.RateLimitBurst != 100 {
		t.Fatalf("unexpected rate limit %v/%d", cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DANMU_CACHE_SECONDS", "0")
	t.Setenv("DANMU_API_URL", "https://danmu.example.com/")
	t.Setenv("SEARCH_TIMEOUT_SECONDS", "-3")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg := LoadConfig()
	if cfg.CacheSeconds != 0 {
		t.Fatalf("expected zero cache seconds to be kept, got %d", cfg.CacheSeconds)
	}
	if cfg.DanmuAPIURL != "https://danmu.example.com" {
		t.Fatalf("unexpected api url %q", cfg.DanmuAPIURL)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Fatalf("invalid timeout must fall back, got %s", cfg.RequestTimeout)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Fatalf("unexpected rps %v", cfg.RateLimitRPS)
	}
}

func TestGetEnvNonNegativeIntRejectsGarbage(t *testing.T) {
	t.Setenv("DANMU_TEST_INT", "abc")
	if got := getEnvNonNegativeInt("DANMU_TEST_INT", 9); got != 9 {
		t.Fatalf("expected fallback, got %d", got)
	}
	t.Setenv("DANMU_TEST_INT", "-1")
	if got := getEnvNonNegativeInt("DANMU_TEST_INT", 9); got != 9 {
		t.Fatalf("expected fallback for negative, got %d", got)
	}
}
