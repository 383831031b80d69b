package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type balanceResponse struct {
	Currency     string `json:"currency"`
	Active       string `json:"active"`
	Frozen       string `json:"frozen"`
	Withdrawable string `json:"withdrawable"`
}

type inboundRequest struct {
	Address  string `json:"address"`
	Currency string `json:"currency"`
	Amount   string `json:"amount"`
}

// Overview returns the balances of a user.
func (h *Handler) Overview(c *fiber.Ctx) error {
	user, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	overview, err := h.service.Overview(c.UserContext(), user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	balances := make([]balanceResponse, 0, len(overview.Balances))
	for _, b := range overview.Balances {
		balances = append(balances, balanceResponse{
			Currency:     b.Currency.Ticker(),
			Active:       b.Active.Decimal().String(),
			Frozen:       b.Frozen.Decimal().String(),
			Withdrawable: b.Withdrawable.Decimal().String(),
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id":  overview.User,
		"balances": balances,
		"as_of":    overview.AsOf,
	})
}

// Address returns the deposit address of a user.
func (h *Handler) Address(c *fiber.Ctx) error {
	user, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	addr, err := h.service.DepositAddress(c.UserContext(), user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"user_id":    addr.User,
		"address":    addr.Address,
		"created_at": addr.CreatedAt,
	})
}

// CreditInbound books an on-chain deposit reported by the chain watcher.
func (h *Handler) CreditInbound(c *fiber.Ctx) error {
	var req inboundRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	cur, err := coins.ParseCurrency(req.Currency)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := coins.Parse(cur, req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.CreditInbound(c.UserContext(), req.Address, amount)
	if err != nil {
		switch {
		case errors.Is(err, ErrAddressNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		case errors.Is(err, ledger.ErrInvalidAmount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user_id":  user,
		"currency": cur.Ticker(),
		"amount":   amount.Decimal().String(),
	})
}
