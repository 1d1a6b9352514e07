// Package lifecycle applies the state transitions of issued tickets:
// check-in, transfer, refund and cancellation.  Each transition is its own
// transaction over the ticket and, when inventory moves, its event.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/ledger"
	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/notify"
	"github.com/iliyamo/ticket-inventory/internal/repository"
	"github.com/iliyamo/ticket-inventory/internal/stats"
	"github.com/iliyamo/ticket-inventory/internal/waitlist"
)

var (
	// ErrNotOwner is returned when the caller is not the ticket's owner.
	ErrNotOwner = errors.New("caller does not own the ticket")
	// ErrNotTransferable is returned for a transfer of a ticket that is not
	// confirmed or whose type forbids transfers.
	ErrNotTransferable = errors.New("ticket is not transferable")
	// ErrAlreadyCheckedIn is returned, with the unchanged ticket, by a
	// repeated CheckIn.
	ErrAlreadyCheckedIn = errors.New("ticket already checked in")
	// ErrInvalidTransition wraps every move the ticket state machine does
	// not allow.
	ErrInvalidTransition = errors.New("invalid ticket state transition")
	// ErrInvalidRecipient is returned for a transfer to nobody or to the
	// current owner.
	ErrInvalidRecipient = errors.New("invalid transfer recipient")
)

// Promoter advances an event's waitlist after capacity is released.
type Promoter interface {
	PromoteNext(ctx context.Context, eventID string) (*model.WaitlistEntry, error)
}

// Controller runs ticket transitions.
type Controller struct {
	runner   *repository.Runner
	counter  repository.Counter
	notifier notify.Dispatcher
	promoter Promoter
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewController wires a Controller.  now defaults to time.Now when nil.
func NewController(runner *repository.Runner, counter repository.Counter, notifier notify.Dispatcher, promoter Promoter, logger logrus.FieldLogger, now func() time.Time) *Controller {
	if now == nil {
		now = time.Now
	}
	return &Controller{
		runner:   runner,
		counter:  counter,
		notifier: notifier,
		promoter: promoter,
		logger:   logger.WithField("component", "lifecycle"),
		now:      now,
	}
}

func invalid(t *model.Ticket, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.Status, to)
}

// CheckIn admits the ticket with the given number.  Checking in twice
// returns the unchanged ticket together with ErrAlreadyCheckedIn.
func (c *Controller) CheckIn(ctx context.Context, ticketNumber string) (*model.Ticket, error) {
	var (
		ticket  *model.Ticket
		already bool
	)
	err := c.runner.Do(ctx, "check_in", func(ctx context.Context, tx repository.Tx) error {
		ticket, already = nil, false
		t, err := tx.GetTicketByNumber(ctx, strings.ToUpper(strings.TrimSpace(ticketNumber)))
		if err != nil {
			return err
		}
		switch t.Status {
		case model.TicketCheckedIn:
			ticket, already = t, true
			return nil
		case model.TicketConfirmed:
		default:
			return invalid(t, model.TicketCheckedIn)
		}
		at := c.now().UTC()
		t.Status = model.TicketCheckedIn
		t.CheckedInAt = &at
		t.UpdatedAt = at
		if err := tx.UpdateTicket(ctx, t); err != nil {
			return err
		}
		ticket = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	if already {
		return ticket, ErrAlreadyCheckedIn
	}
	c.incr(ctx, ticket.EventID, stats.CheckIns)
	c.notify(ctx, notify.TicketCheckedIn, ticket.EventID, ticket.ID, ticket.OwnerID, *ticket.CheckedInAt)
	return ticket, nil
}

// Transfer moves a confirmed ticket from fromUserID to toUserID.  The old
// record becomes TRANSFERRED_AWAY and a new confirmed record is issued in
// the same lineage under a derived number, so the old number stops
// admitting.  The event's sold count does not change.
func (c *Controller) Transfer(ctx context.Context, ticketID, fromUserID, toUserID string) (*model.Ticket, error) {
	if toUserID == "" || toUserID == fromUserID {
		return nil, ErrInvalidRecipient
	}
	var old, fresh *model.Ticket
	err := c.runner.Do(ctx, "transfer", func(ctx context.Context, tx repository.Tx) error {
		old, fresh = nil, nil
		t, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if t.OwnerID != fromUserID {
			return ErrNotOwner
		}
		switch {
		case t.Status == model.TicketCheckedIn:
			return ErrAlreadyCheckedIn
		case t.Status != model.TicketConfirmed:
			return fmt.Errorf("%w: status %s", ErrNotTransferable, t.Status)
		case !t.Transferable:
			return ErrNotTransferable
		}

		at := c.now().UTC()
		t.Status = model.TicketTransferredAway
		t.UpdatedAt = at
		if err := tx.UpdateTicket(ctx, t); err != nil {
			return err
		}
		n := &model.Ticket{
			ID:            uuid.NewString(),
			EventID:       t.EventID,
			TicketTypeID:  t.TicketTypeID,
			OwnerID:       toUserID,
			LineageID:     t.LineageID,
			Generation:    t.Generation + 1,
			TicketNumber:  TransferNumber(t.TicketNumber, t.Generation+1),
			PurchaseID:    t.PurchaseID,
			Status:        model.TicketConfirmed,
			PurchasePrice: t.PurchasePrice,
			Currency:      t.Currency,
			PurchasedAt:   t.PurchasedAt,
			Transferable:  true,
			UpdatedAt:     at,
		}
		if err := tx.InsertTicket(ctx, n); err != nil {
			return err
		}
		old, fresh = t, n
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"event_id":   old.EventID,
		"ticket_id":  old.ID,
		"new_ticket": fresh.ID,
		"from":       fromUserID,
		"to":         toUserID,
	}).Info("ticket transferred")
	c.incr(ctx, old.EventID, stats.Transfers)
	c.notify(ctx, notify.TicketTransferred, old.EventID, old.ID, fromUserID, old.UpdatedAt)
	c.notify(ctx, notify.TicketTransferReceived, fresh.EventID, fresh.ID, toUserID, fresh.UpdatedAt)
	return fresh, nil
}

// TransferNumber derives the ticket number of the generation-th transfer
// from any number in the lineage: <base>-T<generation>.
func TransferNumber(number string, generation int) string {
	if i := strings.Index(number, "-T"); i >= 0 {
		number = number[:i]
	}
	return fmt.Sprintf("%s-T%d", number, generation)
}

// RequestRefund moves the caller's confirmed ticket to REFUND_REQUESTED.
// The ticket keeps its inventory unit until the refund is approved.
func (c *Controller) RequestRefund(ctx context.Context, ticketID, userID, reason string) (*model.Ticket, error) {
	t, err := c.transition(ctx, "refund_request", ticketID, func(t *model.Ticket) error {
		if t.OwnerID != userID {
			return ErrNotOwner
		}
		switch t.Status {
		case model.TicketCheckedIn:
			return ErrAlreadyCheckedIn
		case model.TicketConfirmed:
		default:
			return invalid(t, model.TicketRefundRequested)
		}
		t.Status = model.TicketRefundRequested
		t.RefundReason = strings.TrimSpace(reason)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.notify(ctx, notify.TicketRefundRequested, t.EventID, t.ID, t.OwnerID, t.UpdatedAt)
	return t, nil
}

// RejectRefund returns a refund-requested ticket to CONFIRMED.
func (c *Controller) RejectRefund(ctx context.Context, ticketID string) (*model.Ticket, error) {
	t, err := c.transition(ctx, "refund_reject", ticketID, func(t *model.Ticket) error {
		if t.Status != model.TicketRefundRequested {
			return invalid(t, model.TicketConfirmed)
		}
		t.Status = model.TicketConfirmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.notify(ctx, notify.TicketRefundRejected, t.EventID, t.ID, t.OwnerID, t.UpdatedAt)
	return t, nil
}

// ApproveRefund completes a refund: the ticket becomes REFUNDED and its
// unit goes back to the event in the same transaction.  The waitlist is
// advanced afterwards; if that fails the event keeps a pending promotion
// that the sweeper retries.
func (c *Controller) ApproveRefund(ctx context.Context, ticketID string) (*model.Ticket, error) {
	t, err := c.release(ctx, "refund_approve", ticketID, func(t *model.Ticket) error {
		if t.Status != model.TicketRefundRequested {
			return invalid(t, model.TicketRefunded)
		}
		t.Status = model.TicketRefunded
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.incr(ctx, t.EventID, stats.Refunds)
	c.notify(ctx, notify.TicketRefunded, t.EventID, t.ID, t.OwnerID, t.UpdatedAt)
	c.promote(ctx, t.EventID)
	return t, nil
}

// CancelTicket cancels a single non-terminal ticket.  A ticket that still
// holds inventory gives its unit back and the waitlist is advanced.
func (c *Controller) CancelTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	var held bool
	t, err := c.release(ctx, "cancel_ticket", ticketID, func(t *model.Ticket) error {
		if t.Terminal() || t.Status == model.TicketTransferredAway {
			return invalid(t, model.TicketCancelled)
		}
		held = t.HoldsInventory()
		t.Status = model.TicketCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.notify(ctx, notify.TicketCancelled, t.EventID, t.ID, t.OwnerID, t.UpdatedAt)
	if held {
		c.promote(ctx, t.EventID)
	}
	return t, nil
}

// CancelEvent cancels the event and every ticket that is not already
// terminal, releasing their units, and expires the waitlist.  Nobody is
// promoted.  It returns the cancelled tickets.
func (c *Controller) CancelEvent(ctx context.Context, eventID string) ([]*model.Ticket, error) {
	var cancelled []*model.Ticket
	err := c.runner.Do(ctx, "cancel_event", func(ctx context.Context, tx repository.Tx) error {
		cancelled = nil
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := ledger.CheckOpen(ev); err != nil {
			return err
		}
		tickets, err := tx.ListTicketsByEvent(ctx, eventID)
		if err != nil {
			return err
		}
		at := c.now().UTC()
		for _, t := range tickets {
			if t.Terminal() || t.Status == model.TicketTransferredAway {
				continue
			}
			if t.HoldsInventory() {
				ledger.Release(ev, t.TicketTypeID, 1)
			}
			t.Status = model.TicketCancelled
			t.UpdatedAt = at
			if err := tx.UpdateTicket(ctx, t); err != nil {
				return err
			}
			cancelled = append(cancelled, t)
		}
		entries, err := tx.ListWaitlist(ctx, eventID)
		if err != nil {
			return err
		}
		for _, w := range entries {
			if !w.Active() {
				continue
			}
			w.Status = model.WaitlistExpired
			if err := tx.UpdateWaitlistEntry(ctx, w); err != nil {
				return err
			}
		}
		ev.Status = model.EventCancelled
		ev.PendingPromotions = 0
		return tx.UpdateEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{"event_id": eventID, "tickets": len(cancelled)}).Info("event cancelled")
	for _, t := range cancelled {
		c.notify(ctx, notify.TicketCancelled, t.EventID, t.ID, t.OwnerID, t.UpdatedAt)
	}
	return cancelled, nil
}

// Ticket returns one ticket.
func (c *Controller) Ticket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	var out *model.Ticket
	err := c.runner.Do(ctx, "get_ticket", func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.GetTicket(ctx, ticketID)
		return err
	})
	return out, err
}

// Tickets lists the tickets ever owned by ownerID, newest first.  Records
// that were transferred away are included so the owner sees the history.
func (c *Controller) Tickets(ctx context.Context, ownerID string) ([]*model.Ticket, error) {
	var out []*model.Ticket
	err := c.runner.Do(ctx, "list_tickets", func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.ListTicketsByOwner(ctx, ownerID)
		return err
	})
	return out, err
}

// transition applies apply to one ticket without touching inventory.
func (c *Controller) transition(ctx context.Context, name, ticketID string, apply func(*model.Ticket) error) (*model.Ticket, error) {
	var out *model.Ticket
	err := c.runner.Do(ctx, name, func(ctx context.Context, tx repository.Tx) error {
		out = nil
		t, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		if err := apply(t); err != nil {
			return err
		}
		t.UpdatedAt = c.now().UTC()
		if err := tx.UpdateTicket(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// release is transition for moves that may give the ticket's unit back.
// The unit is released only when the ticket held one before apply and no
// longer does after; an open event then owes one promotion.
func (c *Controller) release(ctx context.Context, name, ticketID string, apply func(*model.Ticket) error) (*model.Ticket, error) {
	var out *model.Ticket
	err := c.runner.Do(ctx, name, func(ctx context.Context, tx repository.Tx) error {
		out = nil
		t, err := tx.GetTicket(ctx, ticketID)
		if err != nil {
			return err
		}
		held := t.HoldsInventory()
		if err := apply(t); err != nil {
			return err
		}
		t.UpdatedAt = c.now().UTC()
		if err := tx.UpdateTicket(ctx, t); err != nil {
			return err
		}
		if held && !t.HoldsInventory() {
			ev, err := tx.GetEvent(ctx, t.EventID)
			if err != nil {
				return err
			}
			ledger.Release(ev, t.TicketTypeID, 1)
			if ev.Status == model.EventOpen {
				ev.PendingPromotions++
			}
			if err := tx.UpdateEvent(ctx, ev); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	return out, err
}

func (c *Controller) promote(ctx context.Context, eventID string) {
	_, err := c.promoter.PromoteNext(ctx, eventID)
	if err == nil || errors.Is(err, waitlist.ErrEmpty) {
		return
	}
	c.logger.WithError(err).WithField("event_id", eventID).
		Warn("waitlist promotion failed; left for the sweeper")
}

func (c *Controller) notify(ctx context.Context, typ, eventID, ticketID, userID string, at time.Time) {
	err := c.notifier.Dispatch(ctx, notify.Notification{
		Type:      typ,
		EventID:   eventID,
		TicketID:  ticketID,
		UserID:    userID,
		Timestamp: at,
	})
	if err != nil {
		c.logger.WithError(err).WithField("type", typ).Warn("notification dispatch failed")
	}
}

func (c *Controller) incr(ctx context.Context, eventID, name string) {
	if err := c.counter.Incr(ctx, stats.Key(eventID, name), 1); err != nil {
		c.logger.WithError(err).WithField("counter", name).Warn("counter increment failed")
	}
}
