package deposits

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handler exposes deposit queries and the settlement trigger.
type Handler struct {
	service *Service
}

// NewHandler builds a deposits HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type depositResponse struct {
	ID           uuid.UUID  `json:"id"`
	Issuer       uuid.UUID  `json:"issuer_id"`
	Months       int        `json:"months"`
	YieldPercent int        `json:"yield_percent"`
	FinishDate   time.Time  `json:"finish_date"`
	Currency     string     `json:"currency"`
	Amount       string     `json:"amount"`
	IsPaid       bool       `json:"is_paid"`
	PaidDate     *time.Time `json:"paid_date,omitempty"`
}

func toResponse(d Deposit) depositResponse {
	return depositResponse{
		ID:           d.ID,
		Issuer:       d.Issuer,
		Months:       d.Period.Months,
		YieldPercent: d.Period.YieldPercent,
		FinishDate:   d.FinishDate,
		Currency:     d.Coins.Currency.Ticker(),
		Amount:       d.Coins.Decimal().String(),
		IsPaid:       d.IsPaid,
		PaidDate:     d.PaidDate,
	}
}

func toResponses(list []Deposit) []depositResponse {
	out := make([]depositResponse, 0, len(list))
	for _, d := range list {
		out = append(out, toResponse(d))
	}
	return out
}

// Get returns one deposit.
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid deposit id")
	}
	d, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, ErrUnknownDeposit) {
			return fiber.NewError(http.StatusNotFound, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(toResponse(d))
}

// ListByUser returns every deposit of a user.
func (h *Handler) ListByUser(c *fiber.Ctx) error {
	user, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}
	list, err := h.service.ListByUser(c.UserContext(), user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"deposits": toResponses(list)})
}

// Due lists deposits whose term has ended and that are not yet paid.
func (h *Handler) Due(c *fiber.Ctx) error {
	list, err := h.service.Due(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"deposits": toResponses(list)})
}

// Settle pays every due deposit and reports per-deposit failures.
func (h *Handler) Settle(c *fiber.Ctx) error {
	report, err := h.service.SettleDue(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	paid := make([]fiber.Map, 0, len(report.Paid))
	for _, p := range report.Paid {
		paid = append(paid, fiber.Map{
			"id":        p.Deposit.ID,
			"principal": p.Deposit.Coins.Decimal().String(),
			"profit":    p.Profit.Decimal().String(),
			"currency":  p.Deposit.Coins.Currency.Ticker(),
		})
	}
	failed := make(map[string]string, len(report.Failed))
	for id, ferr := range report.Failed {
		failed[id.String()] = ferr.Error()
	}
	status := http.StatusOK
	if len(failed) > 0 {
		status = http.StatusMultiStatus
	}
	return c.Status(status).JSON(fiber.Map{"paid": paid, "failed": failed})
}
