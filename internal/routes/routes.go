package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/tegro-money/custody/internal/config"
	"github.com/tegro-money/custody/internal/deposits"
	"github.com/tegro-money/custody/internal/middleware"
	"github.com/tegro-money/custody/internal/payments"
	"github.com/tegro-money/custody/internal/receipts"
	"github.com/tegro-money/custody/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	Cache    *redis.Client
	Logger   *slog.Logger
	Checks   []HealthCheck
	Wallets  *wallet.Service
	Receipts *receipts.Service
	Deposits *deposits.Service
	Payments *payments.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Wallets == nil || d.Receipts == nil || d.Deposits == nil || d.Payments == nil {
		return fmt.Errorf("wallet, receipt, deposit and payment services are required")
	}
	if d.Cache == nil && !d.Cfg.IsDev() {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
	}
	if d.Cfg.OperatorSecret == "" {
		return fmt.Errorf("operator secret is required")
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d.Checks)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api/v1", middleware.OperatorAuth([]byte(d.Cfg.OperatorSecret)))
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"operator":   middleware.OperatorFrom(c),
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	writes := middleware.RateLimit(d.Cache, "ops", 30, d.Logger)
	RegisterWalletRoutes(api, wallet.NewHandler(d.Wallets), writes)
	RegisterReceiptRoutes(api, receipts.NewHandler(d.Receipts), writes)
	RegisterDepositRoutes(api, deposits.NewHandler(d.Deposits), writes)
	RegisterPaymentRoutes(api, payments.NewHandler(d.Payments), writes)
	return nil
}

// RegisterWalletRoutes wires balance and deposit-address endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, writes fiber.Handler) {
	r.Get("/wallets/:userId", h.Overview)
	r.Get("/wallets/:userId/address", h.Address)
	r.Post("/inbound", writes, h.CreditInbound)
}

// RegisterReceiptRoutes wires receipt inspection and retirement.
func RegisterReceiptRoutes(r fiber.Router, h *receipts.Handler, writes fiber.Handler) {
	r.Get("/receipts/:id", h.Get)
	r.Get("/receipts/:id/activations", h.Activations)
	r.Delete("/receipts/:id", writes, h.Retire)
	r.Get("/users/:userId/receipts", h.ListByIssuer)
}

// RegisterDepositRoutes wires deposit queries and settlement.
func RegisterDepositRoutes(r fiber.Router, h *deposits.Handler, writes fiber.Handler) {
	r.Get("/deposits/due", h.Due)
	r.Post("/deposits/settle", writes, h.Settle)
	r.Get("/deposits/:id", h.Get)
	r.Get("/users/:userId/deposits", h.ListByUser)
}

// RegisterPaymentRoutes wires operator transfers between users.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, writes fiber.Handler) {
	r.Post("/transfers", writes, h.Transfer)
}
