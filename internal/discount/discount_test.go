package discount

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func code() *model.DiscountCode {
	return &model.DiscountCode{
		ID:        "dc-1",
		EventID:   "ev-1",
		Code:      "SPRING",
		Kind:      model.DiscountPercentage,
		Value:     15,
		MaxUses:   2,
		ValidFrom: now.Add(-time.Hour),
		ValidTo:   now.Add(time.Hour),
		Active:    true,
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(d *model.DiscountCode)
		types  []string
		reason string
	}{
		{name: "valid", mutate: func(*model.DiscountCode) {}},
		{name: "inactive", mutate: func(d *model.DiscountCode) { d.Active = false }, reason: ReasonInactive},
		{name: "not started", mutate: func(d *model.DiscountCode) { d.ValidFrom = now.Add(time.Minute) }, reason: ReasonOutsideWindow},
		{name: "ended", mutate: func(d *model.DiscountCode) { d.ValidTo = now.Add(-time.Minute) }, reason: ReasonOutsideWindow},
		{name: "exhausted", mutate: func(d *model.DiscountCode) { d.CurrentUses = 2 }, reason: ReasonExhausted},
		{
			name:   "type filter miss",
			mutate: func(d *model.DiscountCode) { d.ApplicableTicketTypeIDs = []string{"vip"} },
			types:  []string{"ga", ""},
			reason: ReasonNotApplicable,
		},
		{
			name:   "type filter hit",
			mutate: func(d *model.DiscountCode) { d.ApplicableTicketTypeIDs = []string{"vip"} },
			types:  []string{"ga", "vip"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := code()
			tc.mutate(d)
			err := Validate(d, "spring", tc.types, now)
			if tc.reason == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalid))
			assert.Equal(t, tc.reason, Reason(err))
		})
	}
}

func TestValidateMissing(t *testing.T) {
	err := Validate(nil, "GHOST", nil, now)
	assert.Equal(t, ReasonNotFound, Reason(err))
	assert.Contains(t, err.Error(), "GHOST")
}

func TestValidateDoesNotConsume(t *testing.T) {
	d := code()
	assert.NoError(t, Validate(d, "SPRING", nil, now))
	assert.Zero(t, d.CurrentUses)
	Consume(d)
	Consume(d)
	assert.Equal(t, ReasonExhausted, Reason(Validate(d, "SPRING", nil, now)))
}

func TestApply(t *testing.T) {
	pct := &model.DiscountCode{Kind: model.DiscountPercentage, Value: 15}
	// 15% of 999 is 149.85, floored to 149
	assert.Equal(t, int64(850), Apply(pct, 999))
	assert.Equal(t, int64(0), Apply(&model.DiscountCode{Kind: model.DiscountPercentage, Value: 100}, 999))

	fixed := &model.DiscountCode{Kind: model.DiscountFixedAmount, Value: 300}
	assert.Equal(t, int64(700), Apply(fixed, 1000))
	assert.Equal(t, int64(0), Apply(fixed, 200))

	assert.Equal(t, int64(1000), Apply(nil, 1000))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "EARLY-BIRD", Normalize("  early-Bird "))
}
