package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort == "" {
		t.Fatalf("expected default server port")
	}
	if cfg.PostgresURL == "" {
		t.Fatalf("expected default postgres url")
	}
	if cfg.WindowCapacity != 20 || cfg.WindowTailLen != 5 {
		t.Fatalf("unexpected window defaults: %d/%d", cfg.WindowCapacity, cfg.WindowTailLen)
	}
	if cfg.SpeedLimitKmh != 60.0 || cfg.HighHeartRateBPM != 120.0 {
		t.Fatalf("unexpected risk defaults: %+v", cfg)
	}
	if cfg.PersistQueueCapacity != 1024 {
		t.Fatalf("unexpected queue default: %d", cfg.PersistQueueCapacity)
	}
	if cfg.BroadcastMinIntervalMs != 100 {
		t.Fatalf("unexpected broadcast default: %d", cfg.BroadcastMinIntervalMs)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("POSTGRES_URL", "postgres://example")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INGEST_API_KEY", "device-key")
	t.Setenv("SPEED_LIMIT_KMH", "45")
	t.Setenv("CRASH_GRACE_SAMPLES", "8")

	cfg := Load()
	if cfg.ServerPort != ":9000" {
		t.Fatalf("expected override port")
	}
	if cfg.PostgresURL != "postgres://example" {
		t.Fatalf("expected override postgres")
	}
	if cfg.RedisAddr != "redis:6379" {
		t.Fatalf("expected override redis")
	}
	if cfg.JWTSecret != "secret" {
		t.Fatalf("expected override secret")
	}
	if cfg.IngestAPIKey != "device-key" {
		t.Fatalf("expected override api key")
	}
	if cfg.SpeedLimitKmh != 45 {
		t.Fatalf("expected override speed limit")
	}
	if cfg.CrashGraceSamples != 8 {
		t.Fatalf("expected override grace samples")
	}
}
