// Package discount validates coupon codes and computes the price
// adjustment they grant.  Validation is a pure function over a code record
// the caller has already read; consuming a use is a separate step the
// booking engine takes only once the purchase is certain to commit.
package discount

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

// Reasons a code can be rejected.
const (
	ReasonNotFound      = "not-found"
	ReasonInactive      = "inactive"
	ReasonOutsideWindow = "outside-validity-window"
	ReasonExhausted     = "exhausted"
	ReasonNotApplicable = "not-applicable-to-ticket-type"
)

// ErrInvalid matches any *InvalidError through errors.Is.
var ErrInvalid = errors.New("discount code invalid")

// InvalidError carries the rejection reason.
type InvalidError struct {
	Code   string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("discount code %q invalid: %s", e.Code, e.Reason)
}

// Is makes errors.Is(err, ErrInvalid) true for every InvalidError.
func (e *InvalidError) Is(target error) bool { return target == ErrInvalid }

// Invalid builds an *InvalidError.
func Invalid(code, reason string) error {
	return &InvalidError{Code: code, Reason: reason}
}

// Reason extracts the rejection reason from err, or "" when err is not a
// discount rejection.
func Reason(err error) string {
	var ie *InvalidError
	if errors.As(err, &ie) {
		return ie.Reason
	}
	return ""
}

// Normalize is the canonical form codes are stored and looked up in.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks d against the clock and its use budget.  A nil d means
// the lookup found nothing.  ticketTypeIDs lists the types being bought;
// the code must apply to at least one of them.  When ticketTypeIDs is nil
// the applicability check is skipped.
func Validate(d *model.DiscountCode, code string, ticketTypeIDs []string, now time.Time) error {
	if d == nil {
		return Invalid(code, ReasonNotFound)
	}
	if !d.Active {
		return Invalid(d.Code, ReasonInactive)
	}
	if now.Before(d.ValidFrom) || now.After(d.ValidTo) {
		return Invalid(d.Code, ReasonOutsideWindow)
	}
	if d.CurrentUses >= d.MaxUses {
		return Invalid(d.Code, ReasonExhausted)
	}
	if ticketTypeIDs != nil {
		for _, id := range ticketTypeIDs {
			if d.AppliesTo(id) {
				return nil
			}
		}
		return Invalid(d.Code, ReasonNotApplicable)
	}
	return nil
}

// Consume records one use.  It is only called inside the purchase
// transaction after every capacity check has passed.
func Consume(d *model.DiscountCode) {
	d.CurrentUses++
}

// Apply returns the discounted price of one unit.  Prices are integer minor
// units.  A percentage discount amount is floored, and the result never
// goes below zero.
func Apply(d *model.DiscountCode, unitPrice int64) int64 {
	if d == nil || unitPrice <= 0 {
		return unitPrice
	}
	var off int64
	switch d.Kind {
	case model.DiscountPercentage:
		off = unitPrice * d.Value / 100
	case model.DiscountFixedAmount:
		off = d.Value
	}
	if off > unitPrice {
		return 0
	}
	return unitPrice - off
}
