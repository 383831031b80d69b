package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	for _, name := range []string{"APP_ENV", "PORT", "STORAGE_BACKEND", "SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT",
		"IDEMPOTENCY_TTL_SECONDS", "IDEMPOTENCY_TTL", "WALLET_LOCK_TTL_SECONDS", "WALLET_LOCK_TTL"} {
		t.Setenv(name, "")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/custody")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("OPERATOR_JWT_SECRET", "secret")
	t.Setenv("MASTER_KEY", strings.Repeat("ab", 32))
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendPostgres {
		t.Fatalf("expected postgres backend, got %s", cfg.Backend)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
	if cfg.IdempotencyTTL != 24*time.Hour || cfg.WalletLockTTL != 30*time.Second {
		t.Fatalf("unexpected ttls %s %s", cfg.IdempotencyTTL, cfg.WalletLockTTL)
	}
	if len(cfg.MasterKey) != 32 {
		t.Fatalf("expected 32 byte master key, got %d", len(cfg.MasterKey))
	}
	if !cfg.IsDev() {
		t.Fatal("expected development environment by default")
	}
}

func TestLoadDurations(t *testing.T) {
	setRequired(t)
	t.Setenv("SHUTDOWN_TIMEOUT_SECONDS", "3")
	t.Setenv("WALLET_LOCK_TTL", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ShutdownPeriod != 3*time.Second {
		t.Fatalf("expected 3s shutdown, got %s", cfg.ShutdownPeriod)
	}
	if cfg.WalletLockTTL != 90*time.Second {
		t.Fatalf("expected 90s wallet lock, got %s", cfg.WalletLockTTL)
	}

	t.Setenv("IDEMPOTENCY_TTL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed duration")
	}
}

func TestLoadBoltBackendNeedsNoDatabase(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE_BACKEND", "BOLT")
	t.Setenv("BOLT_PATH", "/var/lib/custody/custody.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendBolt || cfg.BoltPath != "/var/lib/custody/custody.db" {
		t.Fatalf("unexpected backend config %s %s", cfg.Backend, cfg.BoltPath)
	}

	t.Setenv("STORAGE_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadRejectsBadSecrets(t *testing.T) {
	setRequired(t)
	t.Setenv("MASTER_KEY", "zz")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for non-hex master key")
	}

	t.Setenv("MASTER_KEY", "abcd")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short master key")
	}

	t.Setenv("MASTER_KEY", strings.Repeat("ab", 32))
	t.Setenv("OPERATOR_JWT_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without operator secret")
	}

	t.Setenv("OPERATOR_JWT_SECRET", "secret")
	t.Setenv("STORAGE_BACKEND", "sqlite")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
