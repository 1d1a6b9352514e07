package booking

import (
	"time"

	"github.com/iliyamo/ticket-inventory/internal/discount"
	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/repository"
)

func (s *EngineSuite) TestPublishEvent() {
	ev, err := s.engine.PublishEvent(s.ctx, PublishRequest{
		Capacity:    50,
		TicketTypes: []TicketTypeSpec{{Name: "Early", UnitPrice: 1500, Currency: "USD", Capacity: 10}},
	})
	s.Require().NoError(err)
	s.NotEmpty(ev.ID)
	s.NotEmpty(ev.TicketTypes[0].ID)
	s.Equal(model.EventOpen, ev.Status)
	s.Equal(now, ev.CreatedAt)

	s.publish(5)
	_, err = s.engine.PublishEvent(s.ctx, PublishRequest{EventID: "ev-1", Capacity: 5})
	s.ErrorIs(err, ErrEventExists)

	_, err = s.engine.PublishEvent(s.ctx, PublishRequest{Capacity: 0})
	s.ErrorIs(err, ErrInvalidRequest)
	_, err = s.engine.PublishEvent(s.ctx, PublishRequest{Capacity: 5, TicketTypes: []TicketTypeSpec{{Name: "Too big", Capacity: 6}}})
	s.ErrorIs(err, ErrInvalidRequest)
	_, err = s.engine.PublishEvent(s.ctx, PublishRequest{Capacity: 5, TicketTypes: []TicketTypeSpec{{ID: "a", Name: "A"}, {ID: "a", Name: "B"}}})
	s.ErrorIs(err, ErrInvalidRequest)
}

func (s *EngineSuite) TestCreateDiscountCode() {
	s.publish(5, TicketTypeSpec{ID: "ga", Name: "General", UnitPrice: 100})
	base := DiscountRequest{
		EventID:   "ev-1",
		Code:      " summer ",
		Kind:      model.DiscountFixedAmount,
		Value:     250,
		MaxUses:   10,
		ValidFrom: now,
		ValidTo:   now.Add(time.Hour),
	}
	dc, err := s.engine.CreateDiscountCode(s.ctx, base)
	s.Require().NoError(err)
	s.Equal("SUMMER", dc.Code)
	s.True(dc.Active)
	s.Zero(dc.CurrentUses)

	_, err = s.engine.CreateDiscountCode(s.ctx, base)
	s.ErrorIs(err, ErrDiscountExists)

	bad := []func(r *DiscountRequest){
		func(r *DiscountRequest) { r.Code = "  " },
		func(r *DiscountRequest) { r.Kind = "BOGO" },
		func(r *DiscountRequest) { r.Kind, r.Value = model.DiscountPercentage, 101 },
		func(r *DiscountRequest) { r.MaxUses = 0 },
		func(r *DiscountRequest) { r.ValidTo = r.ValidFrom },
		func(r *DiscountRequest) { r.Code, r.ApplicableTicketTypeIDs = "OTHER", []string{"vip"} },
	}
	for i, mutate := range bad {
		r := base
		mutate(&r)
		_, err := s.engine.CreateDiscountCode(s.ctx, r)
		s.ErrorIs(err, ErrInvalidRequest, "case %d", i)
	}

	r := base
	r.EventID = "ghost"
	_, err = s.engine.CreateDiscountCode(s.ctx, r)
	s.ErrorIs(err, repository.ErrNotFound)
}

func (s *EngineSuite) TestValidateDiscountCode() {
	s.publish(5, TicketTypeSpec{ID: "vip", Name: "VIP", UnitPrice: 100}, TicketTypeSpec{ID: "ga", Name: "GA", UnitPrice: 50})
	s.code("VIP20", 1, "vip")

	dc, err := s.engine.ValidateDiscountCode(s.ctx, "ev-1", "vip20", "")
	s.Require().NoError(err)
	s.Equal(int64(20), dc.Value)

	_, err = s.engine.ValidateDiscountCode(s.ctx, "ev-1", "VIP20", "ga")
	s.Equal(discount.ReasonNotApplicable, discount.Reason(err))

	_, err = s.engine.ValidateDiscountCode(s.ctx, "ev-1", "MISSING", "")
	s.Equal(discount.ReasonNotFound, discount.Reason(err))

	// validation never consumes
	for i := 0; i < 3; i++ {
		_, err = s.engine.ValidateDiscountCode(s.ctx, "ev-1", "VIP20", "vip")
		s.NoError(err)
	}
	s.Zero(s.uses("VIP20"))
}

func (s *EngineSuite) TestAvailability() {
	s.publish(10,
		TicketTypeSpec{ID: "vip", Name: "VIP", UnitPrice: 100, Capacity: 3},
		TicketTypeSpec{ID: "ga", Name: "GA", UnitPrice: 50},
	)
	_, err := s.engine.Purchase(s.ctx, PurchaseRequest{
		EventID: "ev-1", UserID: "u-1",
		LineItems: []LineItem{{TicketTypeID: "vip", Quantity: 2}, {TicketTypeID: "ga", Quantity: 7}},
	})
	s.Require().NoError(err)

	a, err := s.engine.Availability(s.ctx, "ev-1")
	s.Require().NoError(err)
	s.Equal(10, a.Capacity)
	s.Equal(9, a.Sold)
	s.Equal(1, a.Remaining)
	s.Equal(1, a.TicketTypes[0].Remaining)
	s.Equal(-1, a.TicketTypes[1].Remaining)
	s.Zero(a.Waiting)

	_, err = s.engine.Availability(s.ctx, "ghost")
	s.ErrorIs(err, repository.ErrNotFound)
}
