package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

// ticketColumns is the column list shared by every ticket SELECT so that
// scanTicket can be reused.
const ticketColumns = `id, event_id, ticket_type_id, owner_id, lineage_id, ticket_number, generation,
                       purchase_id, status, purchase_price, currency, purchased_at, checked_in_at,
                       transferable, refund_reason, updated_at, version`

func scanTicket(s scanner) (*model.Ticket, error) {
	var (
		t         model.Ticket
		typeID    sql.NullString
		currency  sql.NullString
		checkedIn sql.NullTime
		reason    sql.NullString
	)
	err := s.Scan(
		&t.ID, &t.EventID, &typeID, &t.OwnerID, &t.LineageID, &t.TicketNumber, &t.Generation,
		&t.PurchaseID, &t.Status, &t.PurchasePrice, &currency, &t.PurchasedAt, &checkedIn,
		&t.Transferable, &reason, &t.UpdatedAt, &t.Version,
	)
	if err != nil {
		return nil, err
	}
	t.TicketTypeID = typeID.String
	t.Currency = currency.String
	t.RefundReason = reason.String
	if checkedIn.Valid {
		at := checkedIn.Time.UTC()
		t.CheckedInAt = &at
	}
	return &t, nil
}

// GetTicket returns a ticket by id, or ErrNotFound.
func (m *mysqlTx) GetTicket(ctx context.Context, ticketID string) (*model.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`
	t, err := scanTicket(m.tx.QueryRowContext(ctx, q, ticketID))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

// GetTicketByNumber looks a ticket up by its check-in key.
func (m *mysqlTx) GetTicketByNumber(ctx context.Context, ticketNumber string) (*model.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_number = ?`
	t, err := scanTicket(m.tx.QueryRowContext(ctx, q, ticketNumber))
	if err != nil {
		return nil, translate(err)
	}
	return t, nil
}

// ListTicketsByEvent returns all tickets of an event, oldest first.
func (m *mysqlTx) ListTicketsByEvent(ctx context.Context, eventID string) ([]*model.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE event_id = ? ORDER BY purchased_at, ticket_number`
	return m.listTickets(ctx, q, eventID)
}

// ListTicketsByOwner returns all tickets currently or formerly owned by
// ownerID, newest first.
func (m *mysqlTx) ListTicketsByOwner(ctx context.Context, ownerID string) ([]*model.Ticket, error) {
	q := `SELECT ` + ticketColumns + ` FROM tickets WHERE owner_id = ? ORDER BY purchased_at DESC, ticket_number`
	return m.listTickets(ctx, q, ownerID)
}

func (m *mysqlTx) listTickets(ctx context.Context, q string, arg any) ([]*model.Ticket, error) {
	rows, err := m.tx.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make([]*model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertTicket creates a ticket row.  A duplicate ticket number surfaces as
// ErrConflict through translate, which makes the caller retry with a fresh
// number.
func (m *mysqlTx) InsertTicket(ctx context.Context, t *model.Ticket) error {
	const q = `INSERT INTO tickets (id, event_id, ticket_type_id, owner_id, lineage_id, ticket_number, generation,
                                    purchase_id, status, purchase_price, currency, purchased_at, checked_in_at,
                                    transferable, refund_reason, updated_at, version)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`
	var checkedIn sql.NullTime
	if t.CheckedInAt != nil {
		checkedIn = sql.NullTime{Time: *t.CheckedInAt, Valid: true}
	}
	_, err := m.tx.ExecContext(ctx, q,
		t.ID, t.EventID, nullString(t.TicketTypeID), t.OwnerID, t.LineageID, t.TicketNumber, t.Generation,
		t.PurchaseID, t.Status, t.PurchasePrice, nullString(t.Currency), t.PurchasedAt, checkedIn,
		t.Transferable, nullString(t.RefundReason), t.UpdatedAt,
	)
	if err != nil {
		return translate(err)
	}
	t.Version = 1
	return nil
}

// UpdateTicket writes the mutable ticket fields, conditional on Version.
func (m *mysqlTx) UpdateTicket(ctx context.Context, t *model.Ticket) error {
	const q = `UPDATE tickets
               SET owner_id = ?, status = ?, checked_in_at = ?, transferable = ?, refund_reason = ?,
                   updated_at = ?, version = version + 1
               WHERE id = ? AND version = ?`
	var checkedIn sql.NullTime
	if t.CheckedInAt != nil {
		checkedIn = sql.NullTime{Time: *t.CheckedInAt, Valid: true}
	}
	res, err := m.tx.ExecContext(ctx, q,
		t.OwnerID, t.Status, checkedIn, t.Transferable, nullString(t.RefundReason), t.UpdatedAt,
		t.ID, t.Version,
	)
	if err := expectOne(res, err); err != nil {
		return err
	}
	t.Version++
	return nil
}
