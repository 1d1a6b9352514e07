package model

import "time"

// EventInventory is the authoritative capacity document for one event.  It
// is created when an event is published and is only mutated through the
// ledger inside a store transaction.
//
// Fields:
//
//	ID                – event identifier.
//	Capacity          – fixed number of admission units, always positive.
//	SoldCount         – units currently held by issued tickets; never exceeds Capacity.
//	TicketTypes       – optional finer partition of the capacity, in display order.
//	PendingPromotions – releases whose waitlist promotion has not run yet.
//	Status            – OPEN or CANCELLED.
//	Version           – optimistic concurrency token maintained by the store.
type EventInventory struct {
	ID                string       `json:"id"`
	Capacity          int          `json:"capacity"`
	SoldCount         int          `json:"sold_count"`
	TicketTypes       []TicketType `json:"ticket_types"`
	PendingPromotions int          `json:"pending_promotions"`
	Status            string       `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
	Version           int64        `json:"-"`
}

// Event statuses.
const (
	EventOpen      = "OPEN"
	EventCancelled = "CANCELLED"
)

// TicketType is a priced sub-partition of an event's capacity.  A zero
// Capacity means the type is bounded only by the event capacity.
type TicketType struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	UnitPrice     int64  `json:"unit_price"`
	Currency      string `json:"currency"`
	Capacity      int    `json:"capacity"`
	TypeSoldCount int    `json:"type_sold_count"`
}

// TicketType returns a pointer into ev.TicketTypes so callers can mutate the
// counters in place, or nil when the event has no type with that id.
func (ev *EventInventory) TicketType(id string) *TicketType {
	for i := range ev.TicketTypes {
		if ev.TicketTypes[i].ID == id {
			return &ev.TicketTypes[i]
		}
	}
	return nil
}

// Remaining reports how many units can still be sold at the event level.
func (ev *EventInventory) Remaining() int {
	return ev.Capacity - ev.SoldCount
}

// Clone returns a deep copy, so a store can hand out documents without
// sharing the ticket type slice.
func (ev *EventInventory) Clone() *EventInventory {
	cp := *ev
	cp.TicketTypes = append([]TicketType(nil), ev.TicketTypes...)
	return &cp
}

// Purchase is the registration summary written alongside the tickets of
// one successful purchase.
type Purchase struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	UserID       string    `json:"user_id"`
	TicketIDs    []string  `json:"ticket_ids"`
	TotalPrice   int64     `json:"total_price"`
	DiscountCode string    `json:"discount_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
