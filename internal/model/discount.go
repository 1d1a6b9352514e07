package model

import "time"

// Discount kinds.
const (
	DiscountPercentage  = "PERCENTAGE"
	DiscountFixedAmount = "FIXED_AMOUNT"
)

// DiscountCode is a coupon scoped to one event.  Code is stored trimmed and
// upper-cased.  Value is a percentage (1..100) or an amount in minor units
// depending on Kind.  An empty ApplicableTicketTypeIDs applies to every type.
type DiscountCode struct {
	ID                      string    `json:"id"`
	EventID                 string    `json:"event_id"`
	Code                    string    `json:"code"`
	Kind                    string    `json:"kind"`
	Value                   int64     `json:"value"`
	MaxUses                 int       `json:"max_uses"`
	CurrentUses             int       `json:"current_uses"`
	ValidFrom               time.Time `json:"valid_from"`
	ValidTo                 time.Time `json:"valid_to"`
	ApplicableTicketTypeIDs []string  `json:"applicable_ticket_type_ids"`
	Active                  bool      `json:"active"`
	Version                 int64     `json:"-"`
}

// AppliesTo reports whether the code covers the given ticket type.  An
// untyped purchase ("") is only covered by codes without a type filter.
func (d *DiscountCode) AppliesTo(ticketTypeID string) bool {
	if len(d.ApplicableTicketTypeIDs) == 0 {
		return true
	}
	for _, id := range d.ApplicableTicketTypeIDs {
		if id == ticketTypeID {
			return true
		}
	}
	return false
}
