package repository

import (
	"context"
	"encoding/json"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

// GetEvent loads an event inventory document together with its ticket
// types in display order.
func (m *mysqlTx) GetEvent(ctx context.Context, eventID string) (*model.EventInventory, error) {
	const q = `SELECT id, capacity, sold_count, pending_promotions, status, created_at, version
               FROM events WHERE id = ?`
	var ev model.EventInventory
	err := m.tx.QueryRowContext(ctx, q, eventID).Scan(
		&ev.ID, &ev.Capacity, &ev.SoldCount, &ev.PendingPromotions, &ev.Status, &ev.CreatedAt, &ev.Version,
	)
	if err != nil {
		return nil, translate(err)
	}
	const typesQ = `SELECT id, name, unit_price, currency, capacity, type_sold_count
                    FROM ticket_types WHERE event_id = ? ORDER BY sort_order`
	rows, err := m.tx.QueryContext(ctx, typesQ, eventID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	ev.TicketTypes = make([]model.TicketType, 0)
	for rows.Next() {
		var tt model.TicketType
		if err := rows.Scan(&tt.ID, &tt.Name, &tt.UnitPrice, &tt.Currency, &tt.Capacity, &tt.TypeSoldCount); err != nil {
			return nil, err
		}
		ev.TicketTypes = append(ev.TicketTypes, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &ev, nil
}

// InsertEvent creates the event row and one ticket_types row per type.
func (m *mysqlTx) InsertEvent(ctx context.Context, ev *model.EventInventory) error {
	const q = `INSERT INTO events (id, capacity, sold_count, pending_promotions, status, created_at, version)
               VALUES (?, ?, ?, ?, ?, ?, 1)`
	if _, err := m.tx.ExecContext(ctx, q, ev.ID, ev.Capacity, ev.SoldCount, ev.PendingPromotions, ev.Status, ev.CreatedAt); err != nil {
		return translate(err)
	}
	if len(ev.TicketTypes) > 0 {
		query := `INSERT INTO ticket_types (id, event_id, name, unit_price, currency, capacity, type_sold_count, sort_order) VALUES `
		args := make([]any, 0, len(ev.TicketTypes)*8)
		for i, tt := range ev.TicketTypes {
			if i > 0 {
				query += ","
			}
			query += "(?, ?, ?, ?, ?, ?, ?, ?)"
			args = append(args, tt.ID, ev.ID, tt.Name, tt.UnitPrice, tt.Currency, tt.Capacity, tt.TypeSoldCount, i)
		}
		if _, err := m.tx.ExecContext(ctx, query, args...); err != nil {
			return translate(err)
		}
	}
	ev.Version = 1
	return nil
}

// UpdateEvent writes the counters back.  The event row's version guards
// the ticket type rows too, since they are only ever written through here.
func (m *mysqlTx) UpdateEvent(ctx context.Context, ev *model.EventInventory) error {
	const q = `UPDATE events
               SET capacity = ?, sold_count = ?, pending_promotions = ?, status = ?, version = version + 1
               WHERE id = ? AND version = ?`
	res, err := m.tx.ExecContext(ctx, q, ev.Capacity, ev.SoldCount, ev.PendingPromotions, ev.Status, ev.ID, ev.Version)
	if err := expectOne(res, err); err != nil {
		return err
	}
	const typeQ = `UPDATE ticket_types SET type_sold_count = ? WHERE id = ? AND event_id = ?`
	for _, tt := range ev.TicketTypes {
		if _, err := m.tx.ExecContext(ctx, typeQ, tt.TypeSoldCount, tt.ID, ev.ID); err != nil {
			return translate(err)
		}
	}
	ev.Version++
	return nil
}

// InsertPurchase writes the registration summary of a purchase.  Ticket ids
// are stored as a JSON array.
func (m *mysqlTx) InsertPurchase(ctx context.Context, p *model.Purchase) error {
	ids, err := json.Marshal(p.TicketIDs)
	if err != nil {
		return err
	}
	const q = `INSERT INTO purchases (id, event_id, user_id, ticket_ids, total_price, discount_code, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = m.tx.ExecContext(ctx, q, p.ID, p.EventID, p.UserID, string(ids), p.TotalPrice, nullString(p.DiscountCode), p.CreatedAt)
	return translate(err)
}

// NextSequence uses LAST_INSERT_ID(expr) so the increment and the read are
// one statement; the row lock it takes is held until the transaction ends.
func (m *mysqlTx) NextSequence(ctx context.Context, name string) (int64, error) {
	const q = `INSERT INTO sequences (name, value) VALUES (?, LAST_INSERT_ID(1))
               ON DUPLICATE KEY UPDATE value = LAST_INSERT_ID(value + 1)`
	res, err := m.tx.ExecContext(ctx, q, name)
	if err != nil {
		return 0, translate(err)
	}
	return res.LastInsertId()
}
