// Package notify carries post-commit notifications from the booking core to
// an external dispatcher.  Delivery is best effort: a failed dispatch is
// logged and never undoes the state change that produced it.
package notify

import (
	"context"
	"time"
)

// Notification types.
const (
	TicketIssued           = "ticket.issued"
	TicketCheckedIn        = "ticket.checked_in"
	TicketTransferred      = "ticket.transferred"
	TicketTransferReceived = "ticket.transfer_received"
	TicketRefundRequested  = "ticket.refund_requested"
	TicketRefunded         = "ticket.refunded"
	TicketRefundRejected   = "ticket.refund_rejected"
	TicketCancelled        = "ticket.cancelled"
	WaitlistPromoted       = "waitlist.promoted"
)

// Notification is the message put on the queue.  Exactly one of TicketID
// and WaitlistEntryID is set.
type Notification struct {
	Type            string    `json:"type"`
	EventID         string    `json:"event_id"`
	TicketID        string    `json:"ticket_id,omitempty"`
	WaitlistEntryID string    `json:"waitlist_entry_id,omitempty"`
	UserID          string    `json:"user_id"`
	Timestamp       time.Time `json:"timestamp"`
}

// Dispatcher hands a notification to whatever delivers it.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Nop drops every notification.
type Nop struct{}

// Dispatch implements Dispatcher.
func (Nop) Dispatch(context.Context, Notification) error { return nil }
