package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName        = "custody"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultBackend        = BackendPostgres
	defaultBoltPath       = "custody.db"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultWalletLockTTL  = 30 * time.Second
	minMasterKeyBytes     = 32
)

// Storage backends selectable through STORAGE_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	Backend        string
	BoltPath       string
	OperatorSecret string
	MasterKey      []byte
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	WalletLockTTL  time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		Backend:        strings.ToLower(getEnv("STORAGE_BACKEND", defaultBackend)),
		BoltPath:       getEnv("BOLT_PATH", defaultBoltPath),
		OperatorSecret: os.Getenv("OPERATOR_JWT_SECRET"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv("IDEMPOTENCY_TTL", defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.WalletLockTTL, err = durationEnv("WALLET_LOCK_TTL", defaultWalletLockTTL); err != nil {
		return Config{}, err
	}

	switch cfg.Backend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set for the %s backend", BackendPostgres)
		}
	case BackendBolt:
		if cfg.BoltPath == "" {
			return Config{}, fmt.Errorf("BOLT_PATH must be set for the %s backend", BackendBolt)
		}
	default:
		return Config{}, fmt.Errorf("invalid STORAGE_BACKEND %q", cfg.Backend)
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	if cfg.OperatorSecret == "" {
		return Config{}, fmt.Errorf("OPERATOR_JWT_SECRET must be set")
	}

	key, err := hex.DecodeString(os.Getenv("MASTER_KEY"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid MASTER_KEY: %w", err)
	}
	if len(key) < minMasterKeyBytes {
		return Config{}, fmt.Errorf("MASTER_KEY must be at least %d hex-encoded bytes", minMasterKeyBytes)
	}
	cfg.MasterKey = key

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// durationEnv reads NAME_SECONDS as whole seconds, falling back to NAME as a
// Go duration string.
func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(name + "_SECONDS"); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s_SECONDS: %w", name, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(name); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return d, nil
	}
	return fallback, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
