package receipts

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tegro-money/custody/internal/ledger"
)

// Handler exposes read and retirement endpoints for operators.
type Handler struct {
	service *Service
}

// NewHandler builds a receipts HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type receiptResponse struct {
	ID          uuid.UUID  `json:"id"`
	IssueTime   time.Time  `json:"issue_time"`
	Issuer      uuid.UUID  `json:"issuer_id"`
	Currency    string     `json:"currency"`
	Amount      string     `json:"amount"`
	Activations int        `json:"activations_left"`
	Remaining   string     `json:"remaining"`
	Recipient   *uuid.UUID `json:"recipient_id,omitempty"`
	IsActive    bool       `json:"is_active"`
}

func toResponse(r Receipt) receiptResponse {
	return receiptResponse{
		ID:          r.ID,
		IssueTime:   r.IssueTime,
		Issuer:      r.Issuer,
		Currency:    r.Coins.Currency.Ticker(),
		Amount:      r.Coins.Decimal().String(),
		Activations: r.Activations,
		Remaining:   r.Remaining().Decimal().String(),
		Recipient:   r.Recipient,
		IsActive:    r.IsActive,
	}
}

// Get returns one receipt.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid receipt id")
	}
	r, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(r))
}

// ListByIssuer returns every receipt a user issued.
func (h *Handler) ListByIssuer(c *fiber.Ctx) error {
	issuer, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	list, err := h.service.ListByIssuer(c.UserContext(), issuer)
	if err != nil {
		return httpError(err)
	}
	out := make([]receiptResponse, 0, len(list))
	for _, r := range list {
		out = append(out, toResponse(r))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"receipts": out})
}

// Activations lists who redeemed a receipt.
func (h *Handler) Activations(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid receipt id")
	}
	list, err := h.service.Activations(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	out := make([]fiber.Map, 0, len(list))
	for _, a := range list {
		out = append(out, fiber.Map{"user_id": a.User, "activated_at": a.ActivatedAt})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"receipt_id": id, "activations": out})
}

// Retire deactivates a receipt and releases its remaining reservation.
func (h *Handler) Retire(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid receipt id")
	}
	released, err := h.service.Delete(c.UserContext(), id)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"receipt_id": id,
		"currency":   released.Currency.Ticker(),
		"released":   released.Decimal().String(),
	})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownReceipt):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidRecipient), errors.Is(err, ErrReceiptIssuerActivation):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrReceiptNotActive):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ErrInvalidActivations), errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
