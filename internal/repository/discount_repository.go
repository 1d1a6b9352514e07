package repository

import (
	"context"
	"encoding/json"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

const discountColumns = `id, event_id, code, kind, value, max_uses, current_uses, valid_from, valid_to,
                         applicable_types, active, version`

// GetDiscountCode returns the code record of an event.  code must already
// be normalised by the caller.
func (m *mysqlTx) GetDiscountCode(ctx context.Context, eventID, code string) (*model.DiscountCode, error) {
	q := `SELECT ` + discountColumns + ` FROM discount_codes WHERE event_id = ? AND code = ?`
	var (
		d     model.DiscountCode
		types string
	)
	err := m.tx.QueryRowContext(ctx, q, eventID, code).Scan(
		&d.ID, &d.EventID, &d.Code, &d.Kind, &d.Value, &d.MaxUses, &d.CurrentUses, &d.ValidFrom, &d.ValidTo,
		&types, &d.Active, &d.Version,
	)
	if err != nil {
		return nil, translate(err)
	}
	if types != "" {
		if err := json.Unmarshal([]byte(types), &d.ApplicableTicketTypeIDs); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

// InsertDiscountCode creates a code.  The (event_id, code) unique key turns
// a concurrent duplicate into ErrConflict.
func (m *mysqlTx) InsertDiscountCode(ctx context.Context, d *model.DiscountCode) error {
	types, err := json.Marshal(d.ApplicableTicketTypeIDs)
	if err != nil {
		return err
	}
	const q = `INSERT INTO discount_codes (id, event_id, code, kind, value, max_uses, current_uses, valid_from, valid_to,
                                           applicable_types, active, version)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	_, err = m.tx.ExecContext(ctx, q,
		d.ID, d.EventID, d.Code, d.Kind, d.Value, d.MaxUses, d.CurrentUses, d.ValidFrom, d.ValidTo,
		string(types), d.Active,
	)
	if err != nil {
		return translate(err)
	}
	d.Version = 1
	return nil
}

// UpdateDiscountCode writes the use counter and kill-switch back.
func (m *mysqlTx) UpdateDiscountCode(ctx context.Context, d *model.DiscountCode) error {
	const q = `UPDATE discount_codes SET current_uses = ?, active = ?, version = version + 1
               WHERE id = ? AND version = ?`
	res, err := m.tx.ExecContext(ctx, q, d.CurrentUses, d.Active, d.ID, d.Version)
	if err := expectOne(res, err); err != nil {
		return err
	}
	d.Version++
	return nil
}
