// Package ledger owns the capacity arithmetic of an event inventory
// document.  It never talks to the store: callers load the document inside
// their transaction, apply Reserve or Release, and write the document back
// in that same transaction.
package ledger

import (
	"errors"
	"fmt"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

// ErrCapacityExceeded is returned when a reservation does not fit.  It is a
// business condition; callers offer the waitlist.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrUnknownTicketType is returned for a ticket type id the event does not
// define.
var ErrUnknownTicketType = errors.New("unknown ticket type")

// ErrInvalidQuantity is returned for non-positive quantities.
var ErrInvalidQuantity = errors.New("quantity must be positive")

// ErrEventClosed is returned for operations on a cancelled event.
var ErrEventClosed = errors.New("event is not open")

// CheckOpen fails with ErrEventClosed unless ev is open.
func CheckOpen(ev *model.EventInventory) error {
	if ev.Status != model.EventOpen {
		return ErrEventClosed
	}
	return nil
}

// Reserve checks that quantity more units fit the event (and the ticket
// type, when ticketTypeID is non-empty) and increments the counters.  On
// any error ev is left untouched.
func Reserve(ev *model.EventInventory, ticketTypeID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	var tt *model.TicketType
	if ticketTypeID != "" {
		if tt = ev.TicketType(ticketTypeID); tt == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTicketType, ticketTypeID)
		}
	}
	if ev.SoldCount+quantity > ev.Capacity {
		return ErrCapacityExceeded
	}
	if tt != nil && tt.Capacity > 0 && tt.TypeSoldCount+quantity > tt.Capacity {
		return ErrCapacityExceeded
	}
	ev.SoldCount += quantity
	if tt != nil {
		tt.TypeSoldCount += quantity
	}
	return nil
}

// ReserveAll reserves every line at once: the event-level check is made
// against the summed quantity and the type-level check per type, so either
// all counters move or none do.
func ReserveAll(ev *model.EventInventory, lines map[string]int) error {
	total := 0
	for typeID, q := range lines {
		if q <= 0 {
			return ErrInvalidQuantity
		}
		if typeID != "" && ev.TicketType(typeID) == nil {
			return fmt.Errorf("%w: %s", ErrUnknownTicketType, typeID)
		}
		total += q
	}
	if ev.SoldCount+total > ev.Capacity {
		return ErrCapacityExceeded
	}
	for typeID, q := range lines {
		if typeID == "" {
			continue
		}
		tt := ev.TicketType(typeID)
		if tt.Capacity > 0 && tt.TypeSoldCount+q > tt.Capacity {
			return ErrCapacityExceeded
		}
	}
	ev.SoldCount += total
	for typeID, q := range lines {
		if tt := ev.TicketType(typeID); tt != nil {
			tt.TypeSoldCount += q
		}
	}
	return nil
}

// Release gives quantity units back.  It must be paired with exactly one
// earlier Reserve for the same tickets; counters are clamped at zero so a
// double release cannot drive them negative, but it would still be a bug
// in the caller.
func Release(ev *model.EventInventory, ticketTypeID string, quantity int) {
	if quantity <= 0 {
		return
	}
	ev.SoldCount -= quantity
	if ev.SoldCount < 0 {
		ev.SoldCount = 0
	}
	if tt := ev.TicketType(ticketTypeID); tt != nil {
		tt.TypeSoldCount -= quantity
		if tt.TypeSoldCount < 0 {
			tt.TypeSoldCount = 0
		}
	}
}
