package config

import (
	"testing"
	"time"
)

func TestParseTTL(t *testing.T) {
	d, err := ParseTTL("14d")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if d != 14*24*time.Hour {
		t.Fatalf("expected 336h, got %v", d)
	}

	d, err = ParseTTL("1h")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if d != time.Hour {
		t.Fatalf("expected 1h, got %v", d)
	}

	if _, err := ParseTTL("later"); err == nil {
		t.Fatalf("expected error for garbage input")
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if cfg.Security.AccessTokenTTL != time.Hour {
		t.Fatalf("access ttl default: %v", cfg.Security.AccessTokenTTL)
	}
	if cfg.Security.RefreshTokenTTL != 14*24*time.Hour {
		t.Fatalf("refresh ttl default: %v", cfg.Security.RefreshTokenTTL)
	}
	if cfg.Security.VerifyTokenTTL != 24*time.Hour {
		t.Fatalf("verify ttl default: %v", cfg.Security.VerifyTokenTTL)
	}
	if cfg.Security.ResetTokenTTL != time.Hour {
		t.Fatalf("reset ttl default: %v", cfg.Security.ResetTokenTTL)
	}
	if cfg.Security.BcryptCost != 12 {
		t.Fatalf("bcrypt cost default: %d", cfg.Security.BcryptCost)
	}
	if cfg.HTTP.Port != 3001 {
		t.Fatalf("port default: %d", cfg.HTTP.Port)
	}
}
