package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "")
	t.Setenv("API_V1_STR", "/api/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.APIPrefix != "/api" {
		t.Errorf("expected prefix /api, got %q", cfg.Server.APIPrefix)
	}
	if cfg.JWT.AccessExpireMinutes != 60*24*7 {
		t.Errorf("expected 7 day access tokens, got %d minutes", cfg.JWT.AccessExpireMinutes)
	}
	if cfg.JWT.RefreshExpireMinutes != 60*24*30 {
		t.Errorf("expected 30 day refresh tokens, got %d minutes", cfg.JWT.RefreshExpireMinutes)
	}
	if cfg.RateLimit.PerMinute != 60 {
		t.Errorf("expected 60 requests per minute, got %d", cfg.RateLimit.PerMinute)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without SECRET_KEY")
	}
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("SECRET_KEY", "x")
	t.Setenv("REDIS_DB", "not-a-number")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.DB != 0 {
		t.Errorf("expected fallback 0, got %d", cfg.Redis.DB)
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "ems", SSLMode: "disable"}
	if got, want := c.DSN(), "postgres://u:p@db:5432/ems?sslmode=disable"; got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	c.URL = "postgres://override"
	if got := c.DSN(); got != "postgres://override" {
		t.Errorf("DSN with URL = %q", got)
	}
}

func TestOrigins(t *testing.T) {
	s := ServerConfig{CORSAllowedOrigins: " http://a.test , ,http://b.test"}
	got := s.Origins()
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("unexpected origins %v", got)
	}
}
