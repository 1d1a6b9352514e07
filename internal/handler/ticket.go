package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/lifecycle"
	"github.com/iliyamo/ticket-inventory/internal/middleware"
)

// TicketHandler exposes the ticket lifecycle: check-in, transfer, refunds
// and cancellation.
type TicketHandler struct {
	lifecycle *lifecycle.Controller
	logger    logrus.FieldLogger
}

// NewTicketHandler wires the lifecycle controller.
func NewTicketHandler(ctrl *lifecycle.Controller, logger logrus.FieldLogger) *TicketHandler {
	if ctrl == nil {
		panic("nil controller passed to NewTicketHandler")
	}
	return &TicketHandler{lifecycle: ctrl, logger: logger}
}

type checkInBody struct {
	TicketNumber string `json:"ticket_number" validate:"required,max=64"`
}

// CheckIn handles POST /v1/checkin (staff).  A second scan of the same
// ticket answers 409 already_checked_in together with the unchanged ticket.
func (h *TicketHandler) CheckIn(c echo.Context) error {
	var body checkInBody
	if err := bind(c, &body); err != nil {
		return writeError(c, h.logger, err)
	}
	t, err := h.lifecycle.CheckIn(c.Request().Context(), body.TicketNumber)
	if errors.Is(err, lifecycle.ErrAlreadyCheckedIn) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "already_checked_in", "ticket": t})
	}
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, t)
}

type transferBody struct {
	ToUserID string `json:"to_user_id" validate:"required,max=128"`
}

// Transfer handles POST /v1/tickets/:id/transfer and returns the
// recipient's new ticket.
func (h *TicketHandler) Transfer(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var body transferBody
	if err := bind(c, &body); err != nil {
		return writeError(c, h.logger, err)
	}
	t, err := h.lifecycle.Transfer(c.Request().Context(), c.Param("id"), uid, body.ToUserID)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusCreated, t)
}

type refundBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// RequestRefund handles POST /v1/tickets/:id/refund.
func (h *TicketHandler) RequestRefund(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	var body refundBody
	if err := bind(c, &body); err != nil {
		return writeError(c, h.logger, err)
	}
	t, err := h.lifecycle.RequestRefund(c.Request().Context(), c.Param("id"), uid, body.Reason)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusAccepted, t)
}

// ApproveRefund handles POST /v1/tickets/:id/refund/approve (organizer).
func (h *TicketHandler) ApproveRefund(c echo.Context) error {
	t, err := h.lifecycle.ApproveRefund(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, t)
}

// RejectRefund handles POST /v1/tickets/:id/refund/reject (organizer).
func (h *TicketHandler) RejectRefund(c echo.Context) error {
	t, err := h.lifecycle.RejectRefund(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Cancel handles POST /v1/tickets/:id/cancel (organizer).
func (h *TicketHandler) Cancel(c echo.Context) error {
	t, err := h.lifecycle.CancelTicket(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, t)
}

// CancelEvent handles POST /v1/events/:id/cancel (organizer).
func (h *TicketHandler) CancelEvent(c echo.Context) error {
	cancelled, err := h.lifecycle.CancelEvent(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"cancelled": len(cancelled), "tickets": cancelled})
}

// Get handles GET /v1/tickets/:id.  Customers only see their own tickets;
// staff and organizers see any.
func (h *TicketHandler) Get(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	t, err := h.lifecycle.Ticket(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.logger, err)
	}
	if role := middleware.Role(c); t.OwnerID != uid && role != middleware.RoleStaff && role != middleware.RoleOrganizer {
		return writeError(c, h.logger, lifecycle.ErrNotOwner)
	}
	return c.JSON(http.StatusOK, t)
}

// Mine handles GET /v1/my-tickets.
func (h *TicketHandler) Mine(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	tickets, err := h.lifecycle.Tickets(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tickets": tickets})
}
