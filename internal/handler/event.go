package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/booking"
	"github.com/iliyamo/ticket-inventory/internal/waitlist"
)

// EventHandler serves the purchase path, the waitlist and event
// administration.
type EventHandler struct {
	engine   *booking.Engine
	waitlist *waitlist.Manager
	logger   logrus.FieldLogger
}

// NewEventHandler wires the booking engine and waitlist manager.
func NewEventHandler(engine *booking.Engine, wl *waitlist.Manager, logger logrus.FieldLogger) *EventHandler {
	if engine == nil || wl == nil {
		panic("nil dependency passed to NewEventHandler")
	}
	return &EventHandler{engine: engine, waitlist: wl, logger: logger}
}

type purchaseBody struct {
	LineItems    []booking.LineItem `json:"line_items" validate:"required,min=1,max=10,dive"`
	DiscountCode string             `json:"discount_code" validate:"max=64"`
}

// Purchase handles POST /v1/events/:id/purchase.  The whole order is
// issued or nothing is; a sold-out event answers 409 capacity_exceeded so
// the client can offer the waitlist.
func (h *EventHandler) Purchase(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var body purchaseBody
	if err := bind(c, &body); err != nil {
		return writeError(c, h.logger, err)
	}
	res, err := h.engine.Purchase(c.Request().Context(), booking.PurchaseRequest{
		EventID:      c.Param("id"),
		UserID:       uid,
		LineItems:    body.LineItems,
		DiscountCode: body.DiscountCode,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// JoinWaitlist handles POST /v1/events/:id/waitlist.
func (h *EventHandler) JoinWaitlist(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	entry, err := h.waitlist.Join(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"position": entry.Position, "entry": entry})
}

// ListWaitlist handles GET /v1/events/:id/waitlist (organizer).
func (h *EventHandler) ListWaitlist(c echo.Context) error {
	entries, err := h.waitlist.List(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"entries": entries})
}

// PromoteNext handles POST /v1/events/:id/waitlist/promote.  It is the
// manual retry for a promotion that failed after a release.
func (h *EventHandler) PromoteNext(c echo.Context) error {
	entry, err := h.waitlist.PromoteNext(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, entry)
}

// ValidateDiscount handles GET /v1/events/:id/discounts/:code.  An optional
// ticket_type_id query parameter also checks type applicability.  No use
// is consumed.
func (h *EventHandler) ValidateDiscount(c echo.Context) error {
	dc, err := h.engine.ValidateDiscountCode(c.Request().Context(),
		c.Param("id"), c.Param("code"), strings.TrimSpace(c.QueryParam("ticket_type_id")))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"valid":                      true,
		"code":                       dc.Code,
		"kind":                       dc.Kind,
		"value":                      dc.Value,
		"remaining_uses":             dc.MaxUses - dc.CurrentUses,
		"valid_to":                   dc.ValidTo,
		"applicable_ticket_type_ids": dc.ApplicableTicketTypeIDs,
	})
}

// Availability handles the public GET /v1/events/:id/availability.
func (h *EventHandler) Availability(c echo.Context) error {
	av, err := h.engine.Availability(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, av)
}

// PublishEvent handles POST /v1/events (organizer).
func (h *EventHandler) PublishEvent(c echo.Context) error {
	var req booking.PublishRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.logger, err)
	}
	ev, err := h.engine.PublishEvent(c.Request().Context(), req)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, ev)
}

// CreateDiscount handles POST /v1/events/:id/discounts (organizer).
func (h *EventHandler) CreateDiscount(c echo.Context) error {
	var req booking.DiscountRequest
	if err := bind(c, &req); err != nil {
		return writeError(c, h.logger, err)
	}
	req.EventID = c.Param("id")
	dc, err := h.engine.CreateDiscountCode(c.Request().Context(), req)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, dc)
}
