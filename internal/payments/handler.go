package payments

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tegro-money/custody/internal/coins"
	"github.com/tegro-money/custody/internal/ledger"
)

// Handler exposes operator transfers.
type Handler struct {
	service *Service
}

// NewHandler builds a payments handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	From      string `json:"from_user_id"`
	To        string `json:"to_user_id"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	Reference string `json:"reference"`
}

// Transfer moves funds between two users.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	from, err := uuid.Parse(req.From)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid from_user_id")
	}
	to, err := uuid.Parse(req.To)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid to_user_id")
	}
	cur, err := coins.ParseCurrency(req.Currency)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := coins.Parse(cur, req.Amount)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{From: from, To: to, Amount: amount, Reference: req.Reference})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientFunds):
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrSameAccount):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"currency":     cur.Ticker(),
		"amount":       amount.Decimal().String(),
		"from_active":  res.From.Active.Decimal().String(),
		"to_active":    res.To.Active.Decimal().String(),
		"completed_at": res.CompletedAt,
	})
}
