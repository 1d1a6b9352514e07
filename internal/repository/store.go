package repository

import (
	"context"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

// Tx is the set of document reads and writes available inside one store
// transaction.  Every Update* call is conditional on the document's Version
// being the one observed by the read; a mismatch makes the commit fail with
// ErrConflict.  Documents returned by reads are private copies.
type Tx interface {
	GetEvent(ctx context.Context, eventID string) (*model.EventInventory, error)
	InsertEvent(ctx context.Context, ev *model.EventInventory) error
	UpdateEvent(ctx context.Context, ev *model.EventInventory) error

	GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error)
	GetTicketByNumber(ctx context.Context, ticketNumber string) (*model.Ticket, error)
	ListTicketsByEvent(ctx context.Context, eventID string) ([]*model.Ticket, error)
	ListTicketsByOwner(ctx context.Context, ownerID string) ([]*model.Ticket, error)
	InsertTicket(ctx context.Context, t *model.Ticket) error
	UpdateTicket(ctx context.Context, t *model.Ticket) error

	InsertPurchase(ctx context.Context, p *model.Purchase) error

	GetDiscountCode(ctx context.Context, eventID, code string) (*model.DiscountCode, error)
	InsertDiscountCode(ctx context.Context, d *model.DiscountCode) error
	UpdateDiscountCode(ctx context.Context, d *model.DiscountCode) error

	// GetWaitlistEntry returns the most recent entry of userID for the event.
	GetWaitlistEntry(ctx context.Context, eventID, userID string) (*model.WaitlistEntry, error)
	// NextWaiting returns the WAITING entry with the smallest position.
	NextWaiting(ctx context.Context, eventID string) (*model.WaitlistEntry, error)
	ListWaitlist(ctx context.Context, eventID string) ([]*model.WaitlistEntry, error)
	InsertWaitlistEntry(ctx context.Context, w *model.WaitlistEntry) error
	UpdateWaitlistEntry(ctx context.Context, w *model.WaitlistEntry) error

	// NextSequence atomically advances the named counter and returns the new
	// value.  Values start at 1 and are never handed out twice.
	NextSequence(ctx context.Context, name string) (int64, error)
}

// TxFunc is a transaction body.  It may run several times and must not
// have side effects outside tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is a transactional document store with optimistic concurrency.
type Store interface {
	// RunInTx runs fn once.  All writes commit together if fn returns nil
	// and nothing fn read was changed concurrently; otherwise nothing is
	// written.  A lost race is reported as ErrConflict.
	RunInTx(ctx context.Context, fn TxFunc) error
	// PendingPromotionEvents lists events whose released capacity has not
	// been offered to the waitlist yet.
	PendingPromotionEvents(ctx context.Context) ([]string, error)
}

// Counter is an atomic increment primitive for non-critical numbers such as
// analytics.  It is never used for inventory.
type Counter interface {
	Incr(ctx context.Context, key string, delta int64) error
}

// NopCounter discards increments.
type NopCounter struct{}

// Incr implements Counter.
func (NopCounter) Incr(context.Context, string, int64) error { return nil }

// WaitlistSequence names the per-event position counter.
func WaitlistSequence(eventID string) string { return "waitlist:" + eventID }
