package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ServerPort != ":5000" {
		t.Fatalf("unexpected server port %q", cfg.ServerPort)
	}
	if cfg.PostgresURL == "" || cfg.RedisAddr == "" || cfg.JWTSecret == "" {
		t.Fatalf("expected defaults to be set")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("REDIS_PASSWORD", "hunter2")

	cfg := Load()
	if cfg.ServerPort != ":9999" {
		t.Fatalf("unexpected server port %q", cfg.ServerPort)
	}
	if cfg.RedisPassword != "hunter2" {
		t.Fatalf("unexpected redis password %q", cfg.RedisPassword)
	}
}
