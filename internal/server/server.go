package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tegro-money/custody/internal/config"
	"github.com/tegro-money/custody/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, b Backends, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	svcs, err := NewServices(b, cfg.MasterKey, logger)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	err = routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		Cache:    cache,
		Logger:   logger,
		Checks:   healthChecks(b, cache),
		Wallets:  svcs.Wallets,
		Receipts: svcs.Receipts,
		Deposits: svcs.Deposits,
		Payments: svcs.Payments,
	})
	if err != nil {
		return nil, err
	}
	return &Server{app: app, cfg: cfg}, nil
}

// App exposes the underlying Fiber application, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func healthChecks(b Backends, cache *redis.Client) []routes.HealthCheck {
	var checks []routes.HealthCheck
	if b.DB != nil {
		checks = append(checks, routes.HealthCheck{Name: "postgres", Ping: b.DB.Ping})
	}
	if b.Bolt != nil {
		checks = append(checks, routes.HealthCheck{Name: "bolt", Ping: b.Bolt.Ping})
	}
	if cache != nil {
		checks = append(checks, routes.HealthCheck{Name: "redis", Ping: func(ctx context.Context) error {
			return cache.Ping(ctx).Err()
		}})
	}
	return checks
}
