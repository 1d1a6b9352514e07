package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/discount"
	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/repository"
)

var (
	// ErrEventExists is returned by PublishEvent for a taken event ID.
	ErrEventExists = errors.New("event already exists")
	// ErrDiscountExists is returned by CreateDiscountCode when the event
	// already has the code.
	ErrDiscountExists = errors.New("discount code already exists for event")
)

// TicketTypeSpec describes one ticket type of a new event.
type TicketTypeSpec struct {
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required,max=100"`
	UnitPrice int64  `json:"unit_price" validate:"min=0"`
	Currency  string `json:"currency" validate:"omitempty,len=3"`
	Capacity  int    `json:"capacity" validate:"min=0"`
}

// PublishRequest creates the inventory document of an event.  An empty
// EventID gets a generated one.
type PublishRequest struct {
	EventID     string           `json:"event_id"`
	Capacity    int              `json:"capacity" validate:"required,min=1"`
	TicketTypes []TicketTypeSpec `json:"ticket_types" validate:"dive"`
}

// PublishEvent writes a new event inventory record with zeroed counters.
func (e *Engine) PublishEvent(ctx context.Context, req PublishRequest) (*model.EventInventory, error) {
	if req.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidRequest)
	}
	id := req.EventID
	if id == "" {
		id = uuid.NewString()
	}
	types := make([]model.TicketType, 0, len(req.TicketTypes))
	seen := make(map[string]bool, len(req.TicketTypes))
	for _, ts := range req.TicketTypes {
		if ts.Name == "" {
			return nil, fmt.Errorf("%w: ticket type name is required", ErrInvalidRequest)
		}
		if ts.UnitPrice < 0 || ts.Capacity < 0 || ts.Capacity > req.Capacity {
			return nil, fmt.Errorf("%w: ticket type %q has invalid price or capacity", ErrInvalidRequest, ts.Name)
		}
		tid := ts.ID
		if tid == "" {
			tid = uuid.NewString()
		}
		if seen[tid] {
			return nil, fmt.Errorf("%w: duplicate ticket type id %s", ErrInvalidRequest, tid)
		}
		seen[tid] = true
		types = append(types, model.TicketType{
			ID:        tid,
			Name:      ts.Name,
			UnitPrice: ts.UnitPrice,
			Currency:  ts.Currency,
			Capacity:  ts.Capacity,
		})
	}

	var ev *model.EventInventory
	err := e.runner.Do(ctx, "publish_event", func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetEvent(ctx, id); err == nil {
			return ErrEventExists
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		ev = &model.EventInventory{
			ID:          id,
			Capacity:    req.Capacity,
			TicketTypes: append([]model.TicketType(nil), types...),
			Status:      model.EventOpen,
			CreatedAt:   e.now().UTC(),
		}
		return tx.InsertEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	e.logger.WithFields(logrus.Fields{"event_id": id, "capacity": ev.Capacity}).Info("event published")
	return ev, nil
}

// DiscountRequest creates a discount code.
type DiscountRequest struct {
	EventID                 string    `json:"-"`
	Code                    string    `json:"code" validate:"required,max=64"`
	Kind                    string    `json:"kind" validate:"required,oneof=PERCENTAGE FIXED_AMOUNT"`
	Value                   int64     `json:"value" validate:"min=1"`
	MaxUses                 int       `json:"max_uses" validate:"min=1"`
	ValidFrom               time.Time `json:"valid_from" validate:"required"`
	ValidTo                 time.Time `json:"valid_to" validate:"required"`
	ApplicableTicketTypeIDs []string  `json:"applicable_ticket_type_ids"`
}

// CreateDiscountCode stores a new active code for an existing event.
func (e *Engine) CreateDiscountCode(ctx context.Context, req DiscountRequest) (*model.DiscountCode, error) {
	code := discount.Normalize(req.Code)
	switch {
	case code == "":
		return nil, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	case req.Kind != model.DiscountPercentage && req.Kind != model.DiscountFixedAmount:
		return nil, fmt.Errorf("%w: unknown discount kind %q", ErrInvalidRequest, req.Kind)
	case req.Value <= 0 || (req.Kind == model.DiscountPercentage && req.Value > 100):
		return nil, fmt.Errorf("%w: discount value out of range", ErrInvalidRequest)
	case req.MaxUses <= 0:
		return nil, fmt.Errorf("%w: max uses must be positive", ErrInvalidRequest)
	case !req.ValidFrom.Before(req.ValidTo):
		return nil, fmt.Errorf("%w: valid_from must be before valid_to", ErrInvalidRequest)
	}

	var dc *model.DiscountCode
	err := e.runner.Do(ctx, "create_discount", func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, req.EventID)
		if err != nil {
			return err
		}
		for _, id := range req.ApplicableTicketTypeIDs {
			if ev.TicketType(id) == nil {
				return fmt.Errorf("%w: unknown ticket type %s", ErrInvalidRequest, id)
			}
		}
		if _, err := tx.GetDiscountCode(ctx, ev.ID, code); err == nil {
			return ErrDiscountExists
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		dc = &model.DiscountCode{
			ID:                      uuid.NewString(),
			EventID:                 ev.ID,
			Code:                    code,
			Kind:                    req.Kind,
			Value:                   req.Value,
			MaxUses:                 req.MaxUses,
			ValidFrom:               req.ValidFrom.UTC(),
			ValidTo:                 req.ValidTo.UTC(),
			ApplicableTicketTypeIDs: append([]string(nil), req.ApplicableTicketTypeIDs...),
			Active:                  true,
		}
		return tx.InsertDiscountCode(ctx, dc)
	})
	if err != nil {
		return nil, err
	}
	return dc, nil
}

// ValidateDiscountCode reports whether code would be accepted right now.
// When ticketTypeID is non-empty the code must also apply to that type.
// It never consumes a use.
func (e *Engine) ValidateDiscountCode(ctx context.Context, eventID, code, ticketTypeID string) (*model.DiscountCode, error) {
	code = discount.Normalize(code)
	var dc *model.DiscountCode
	err := e.runner.Do(ctx, "validate_discount", func(ctx context.Context, tx repository.Tx) error {
		var err error
		dc, err = tx.GetDiscountCode(ctx, eventID, code)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		var types []string
		if ticketTypeID != "" {
			types = []string{ticketTypeID}
		}
		return discount.Validate(dc, code, types, e.now().UTC())
	})
	if err != nil {
		return nil, err
	}
	return dc, nil
}

// TypeAvailability is the remaining capacity of one ticket type.  Remaining
// is -1 for a type bounded only by the event.
type TypeAvailability struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Currency  string `json:"currency,omitempty"`
	Sold      int    `json:"sold"`
	Remaining int    `json:"remaining"`
}

// Availability is a read-only snapshot of an event's inventory.
type Availability struct {
	EventID     string             `json:"event_id"`
	Status      string             `json:"status"`
	Capacity    int                `json:"capacity"`
	Sold        int                `json:"sold"`
	Remaining   int                `json:"remaining"`
	TicketTypes []TypeAvailability `json:"ticket_types"`
	Waiting     int                `json:"waiting"`
}

// Availability reads the event counters and the number of waiting users.
func (e *Engine) Availability(ctx context.Context, eventID string) (*Availability, error) {
	var out *Availability
	err := e.runner.Do(ctx, "availability", func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		entries, err := tx.ListWaitlist(ctx, eventID)
		if err != nil {
			return err
		}
		a := &Availability{
			EventID:     ev.ID,
			Status:      ev.Status,
			Capacity:    ev.Capacity,
			Sold:        ev.SoldCount,
			Remaining:   ev.Remaining(),
			TicketTypes: make([]TypeAvailability, 0, len(ev.TicketTypes)),
		}
		for _, tt := range ev.TicketTypes {
			rem := -1
			if tt.Capacity > 0 {
				rem = min(tt.Capacity-tt.TypeSoldCount, ev.Remaining())
			}
			a.TicketTypes = append(a.TicketTypes, TypeAvailability{
				ID: tt.ID, Name: tt.Name, UnitPrice: tt.UnitPrice, Currency: tt.Currency,
				Sold: tt.TypeSoldCount, Remaining: rem,
			})
		}
		for _, w := range entries {
			if w.Status == model.WaitlistWaiting {
				a.Waiting++
			}
		}
		out = a
		return nil
	})
	return out, err
}
