package model

import "time"

// Ticket statuses.  Refunded and cancelled are terminal.
const (
	TicketConfirmed       = "CONFIRMED"
	TicketCheckedIn       = "CHECKED_IN"
	TicketRefundRequested = "REFUND_REQUESTED"
	TicketRefunded        = "REFUNDED"
	TicketTransferredAway = "TRANSFERRED_AWAY"
	TicketCancelled       = "CANCELLED"
)

// Ticket is one issued admission unit.
//
// Fields:
//
//	ID             – unique identifier of this record.
//	LineageID      – id of the first ticket in a transfer chain; equals ID for a purchased ticket.
//	TicketNumber   – human-presentable check-in key, unique across the store.
//	Generation     – number of transfers that led to this record.
//	PurchaseID     – registration summary that issued the lineage.
//	CheckedInAt    – set once by check-in, nil otherwise.
//	RefundReason   – free text supplied with a refund request.
type Ticket struct {
	ID            string     `json:"id"`
	EventID       string     `json:"event_id"`
	TicketTypeID  string     `json:"ticket_type_id,omitempty"`
	OwnerID       string     `json:"owner_id"`
	LineageID     string     `json:"lineage_id"`
	TicketNumber  string     `json:"ticket_number"`
	Generation    int        `json:"generation"`
	PurchaseID    string     `json:"purchase_id"`
	Status        string     `json:"status"`
	PurchasePrice int64      `json:"purchase_price"`
	Currency      string     `json:"currency,omitempty"`
	PurchasedAt   time.Time  `json:"purchased_at"`
	CheckedInAt   *time.Time `json:"checked_in_at,omitempty"`
	Transferable  bool       `json:"transferable"`
	RefundReason  string     `json:"refund_reason,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
	Version       int64      `json:"-"`
}

// HoldsInventory reports whether the ticket currently accounts for one unit
// of its event's sold count.  A transferred-away ticket does not: its
// successor in the lineage carries the unit.
func (t *Ticket) HoldsInventory() bool {
	switch t.Status {
	case TicketConfirmed, TicketCheckedIn, TicketRefundRequested:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (t *Ticket) Terminal() bool {
	return t.Status == TicketRefunded || t.Status == TicketCancelled
}
