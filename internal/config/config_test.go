package config

import (
	"os"
	"testing"
	"time"
)

func setEnv(t *testing.T, key, val string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, val)
	t.Cleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "DATABASE_URL", "postgres://localhost/cliniq")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if !cfg.IsDev() {
		t.Error("expected development default")
	}
	if cfg.VisitCodeTTL() != 15*time.Minute {
		t.Errorf("expected 15m TTL, got %s", cfg.VisitCodeTTL())
	}
	if cfg.StaffBurstFactor != 2 {
		t.Errorf("expected staff burst factor 2, got %d", cfg.StaffBurstFactor)
	}
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	setEnv(t, "DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Error("expected error for missing DATABASE_URL")
	}
}

func TestValidate_ProductionRequiresAuthSecret(t *testing.T) {
	cfg := &Config{Env: "production"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without AUTH_SECRET in production")
	}
	cfg.AuthSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_DevAllowsEmptySecret(t *testing.T) {
	cfg := &Config{Env: "development"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidate_BadTimezone(t *testing.T) {
	cfg := &Config{Env: "development", ClinicTimezone: "Not/AZone"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid timezone")
	}
}

func TestVisitCodeTTL_ZeroFallsBack(t *testing.T) {
	cfg := &Config{}
	if cfg.VisitCodeTTL() != 15*time.Minute {
		t.Errorf("expected fallback 15m, got %s", cfg.VisitCodeTTL())
	}
}
