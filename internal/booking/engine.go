// Package booking is the purchase path: it reserves capacity, applies a
// discount code and issues ticket records in one store transaction.  It
// also owns the organizer operations that create the documents a purchase
// reads (event inventory and discount codes).
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/discount"
	"github.com/iliyamo/ticket-inventory/internal/ledger"
	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/notify"
	"github.com/iliyamo/ticket-inventory/internal/repository"
	"github.com/iliyamo/ticket-inventory/internal/stats"
)

// MaxTicketsPerPurchase bounds the summed quantity of one purchase.
const MaxTicketsPerPurchase = 10

var (
	// ErrCapacityExceeded is ledger.ErrCapacityExceeded, re-exported for
	// callers of the engine.
	ErrCapacityExceeded = ledger.ErrCapacityExceeded
	// ErrInvalidRequest wraps every input validation failure.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEventClosed is returned for purchases against a cancelled event.
	ErrEventClosed = ledger.ErrEventClosed
)

// LineItem asks for Quantity units of one ticket type, or of the event's
// undifferentiated capacity when TicketTypeID is empty.
type LineItem struct {
	TicketTypeID string `json:"ticket_type_id,omitempty"`
	Quantity     int    `json:"quantity" validate:"min=1,max=10"`
	UnitPrice    int64  `json:"unit_price" validate:"min=0"`
}

// PurchaseRequest is the input of Purchase.  Payment is already
// authorized by the time it reaches the engine.
type PurchaseRequest struct {
	EventID      string
	UserID       string
	LineItems    []LineItem
	DiscountCode string
}

// PurchaseResult is what a committed purchase produced.
type PurchaseResult struct {
	Purchase *model.Purchase `json:"purchase"`
	Tickets  []*model.Ticket `json:"tickets"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTicketNumbers replaces the random ticket number generator.
func WithTicketNumbers(gen func() (string, error)) Option {
	return func(e *Engine) { e.newNumber = gen }
}

// Engine runs purchases and inventory administration.
type Engine struct {
	runner    *repository.Runner
	counter   repository.Counter
	notifier  notify.Dispatcher
	logger    logrus.FieldLogger
	now       func() time.Time
	newNumber func() (string, error)
}

// NewEngine wires an Engine.  counter and notifier receive post-commit side
// effects only; their failures never affect a purchase.
func NewEngine(runner *repository.Runner, counter repository.Counter, notifier notify.Dispatcher, logger logrus.FieldLogger, opts ...Option) *Engine {
	e := &Engine{
		runner:    runner,
		counter:   counter,
		notifier:  notifier,
		logger:    logger.WithField("component", "booking"),
		now:       time.Now,
		newNumber: NewTicketNumber,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

type line struct {
	typeID    string
	quantity  int
	unitPrice int64
	currency  string
}

// Purchase reserves capacity for every line item and issues one ticket per
// unit, atomically.  It returns ErrCapacityExceeded, a *discount.InvalidError,
// ErrEventClosed, ErrInvalidRequest, repository.ErrNotFound or
// repository.ErrTransientConflict; on any error nothing was written.
func (e *Engine) Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error) {
	if err := checkPurchase(req); err != nil {
		return nil, err
	}
	code := discount.Normalize(req.DiscountCode)

	var result *PurchaseResult
	var discounted bool
	err := e.runner.Do(ctx, "purchase", func(ctx context.Context, tx repository.Tx) error {
		result, discounted = nil, false
		now := e.now().UTC()

		ev, err := tx.GetEvent(ctx, req.EventID)
		if err != nil {
			return err
		}
		if err := ledger.CheckOpen(ev); err != nil {
			return err
		}
		lines, err := resolve(ev, req.LineItems)
		if err != nil {
			return err
		}

		var dc *model.DiscountCode
		if code != "" {
			dc, err = tx.GetDiscountCode(ctx, ev.ID, code)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return err
			}
			typeIDs := make([]string, len(lines))
			for i, l := range lines {
				typeIDs[i] = l.typeID
			}
			if err := discount.Validate(dc, code, typeIDs, now); err != nil {
				return err
			}
		}

		counts := make(map[string]int, len(lines))
		for _, l := range lines {
			counts[l.typeID] += l.quantity
		}
		if err := ledger.ReserveAll(ev, counts); err != nil {
			return err
		}

		p := &model.Purchase{
			ID:        uuid.NewString(),
			EventID:   ev.ID,
			UserID:    req.UserID,
			CreatedAt: now,
		}
		tickets := make([]*model.Ticket, 0, len(lines))
		for _, l := range lines {
			price := l.unitPrice
			if dc != nil && dc.AppliesTo(l.typeID) {
				price = discount.Apply(dc, price)
			}
			for i := 0; i < l.quantity; i++ {
				number, err := e.newNumber()
				if err != nil {
					return err
				}
				id := uuid.NewString()
				t := &model.Ticket{
					ID:            id,
					EventID:       ev.ID,
					TicketTypeID:  l.typeID,
					OwnerID:       req.UserID,
					LineageID:     id,
					TicketNumber:  number,
					PurchaseID:    p.ID,
					Status:        model.TicketConfirmed,
					PurchasePrice: price,
					Currency:      l.currency,
					PurchasedAt:   now,
					Transferable:  true,
					UpdatedAt:     now,
				}
				if err := tx.InsertTicket(ctx, t); err != nil {
					return err
				}
				tickets = append(tickets, t)
				p.TicketIDs = append(p.TicketIDs, t.ID)
				p.TotalPrice += price
			}
		}

		if dc != nil {
			discount.Consume(dc)
			if err := tx.UpdateDiscountCode(ctx, dc); err != nil {
				return err
			}
			p.DiscountCode = dc.Code
			discounted = true
		}
		if err := tx.InsertPurchase(ctx, p); err != nil {
			return err
		}
		if err := tx.UpdateEvent(ctx, ev); err != nil {
			return err
		}
		result = &PurchaseResult{Purchase: p, Tickets: tickets}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"event_id":    req.EventID,
		"user_id":     req.UserID,
		"purchase_id": result.Purchase.ID,
		"tickets":     len(result.Tickets),
	}).Info("purchase committed")

	e.incr(ctx, req.EventID, stats.Purchases, 1)
	e.incr(ctx, req.EventID, stats.TicketsSold, int64(len(result.Tickets)))
	if discounted {
		e.incr(ctx, req.EventID, stats.DiscountsApplied, 1)
	}
	for _, t := range result.Tickets {
		e.notify(ctx, notify.Notification{
			Type:      notify.TicketIssued,
			EventID:   t.EventID,
			TicketID:  t.ID,
			UserID:    t.OwnerID,
			Timestamp: t.PurchasedAt,
		})
	}
	return result, nil
}

func checkPurchase(req PurchaseRequest) error {
	if req.EventID == "" || req.UserID == "" {
		return fmt.Errorf("%w: event and user are required", ErrInvalidRequest)
	}
	if len(req.LineItems) == 0 {
		return fmt.Errorf("%w: no line items", ErrInvalidRequest)
	}
	total := 0
	for _, li := range req.LineItems {
		if li.Quantity < 1 {
			return fmt.Errorf("%w: quantity must be at least 1", ErrInvalidRequest)
		}
		if li.UnitPrice < 0 {
			return fmt.Errorf("%w: negative unit price", ErrInvalidRequest)
		}
		total += li.Quantity
	}
	if total > MaxTicketsPerPurchase {
		return fmt.Errorf("%w: at most %d tickets per purchase", ErrInvalidRequest, MaxTicketsPerPurchase)
	}
	return nil
}

// resolve fixes each line's price.  A typed line is priced by its type
// record; a caller-supplied price must match it.
func resolve(ev *model.EventInventory, items []LineItem) ([]line, error) {
	out := make([]line, 0, len(items))
	for _, li := range items {
		l := line{typeID: li.TicketTypeID, quantity: li.Quantity, unitPrice: li.UnitPrice}
		if li.TicketTypeID != "" {
			tt := ev.TicketType(li.TicketTypeID)
			if tt == nil {
				return nil, fmt.Errorf("%w: %w: %s", ErrInvalidRequest, ledger.ErrUnknownTicketType, li.TicketTypeID)
			}
			if li.UnitPrice != 0 && li.UnitPrice != tt.UnitPrice {
				return nil, fmt.Errorf("%w: unit price %d does not match %s price %d",
					ErrInvalidRequest, li.UnitPrice, tt.ID, tt.UnitPrice)
			}
			l.unitPrice, l.currency = tt.UnitPrice, tt.Currency
		}
		out = append(out, l)
	}
	return out, nil
}

func (e *Engine) incr(ctx context.Context, eventID, name string, delta int64) {
	if err := e.counter.Incr(ctx, stats.Key(eventID, name), delta); err != nil {
		e.logger.WithError(err).WithField("counter", name).Warn("counter increment failed")
	}
}

func (e *Engine) notify(ctx context.Context, n notify.Notification) {
	if err := e.notifier.Dispatch(ctx, n); err != nil {
		e.logger.WithError(err).WithField("type", n.Type).Warn("notification dispatch failed")
	}
}
