package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/ticket-inventory/internal/model"
)

const waitlistColumns = `id, event_id, user_id, position, status, joined_at, promoted_at, version`

func scanWaitlistEntry(s scanner) (*model.WaitlistEntry, error) {
	var (
		w        model.WaitlistEntry
		promoted sql.NullTime
	)
	if err := s.Scan(&w.ID, &w.EventID, &w.UserID, &w.Position, &w.Status, &w.JoinedAt, &promoted, &w.Version); err != nil {
		return nil, err
	}
	if promoted.Valid {
		at := promoted.Time.UTC()
		w.PromotedAt = &at
	}
	return &w, nil
}

// GetWaitlistEntry returns the user's latest entry for the event.
func (m *mysqlTx) GetWaitlistEntry(ctx context.Context, eventID, userID string) (*model.WaitlistEntry, error) {
	q := `SELECT ` + waitlistColumns + ` FROM waitlist_entries
          WHERE event_id = ? AND user_id = ? ORDER BY position DESC LIMIT 1`
	w, err := scanWaitlistEntry(m.tx.QueryRowContext(ctx, q, eventID, userID))
	if err != nil {
		return nil, translate(err)
	}
	return w, nil
}

// NextWaiting returns the head of the queue.
func (m *mysqlTx) NextWaiting(ctx context.Context, eventID string) (*model.WaitlistEntry, error) {
	q := `SELECT ` + waitlistColumns + ` FROM waitlist_entries
          WHERE event_id = ? AND status = 'WAITING' ORDER BY position ASC LIMIT 1`
	w, err := scanWaitlistEntry(m.tx.QueryRowContext(ctx, q, eventID))
	if err != nil {
		return nil, translate(err)
	}
	return w, nil
}

// ListWaitlist returns every entry of the event in position order.
func (m *mysqlTx) ListWaitlist(ctx context.Context, eventID string) ([]*model.WaitlistEntry, error) {
	q := `SELECT ` + waitlistColumns + ` FROM waitlist_entries WHERE event_id = ? ORDER BY position ASC`
	rows, err := m.tx.QueryContext(ctx, q, eventID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()
	out := make([]*model.WaitlistEntry, 0)
	for rows.Next() {
		w, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertWaitlistEntry creates an entry.  (event_id, position) is unique.
func (m *mysqlTx) InsertWaitlistEntry(ctx context.Context, w *model.WaitlistEntry) error {
	const q = `INSERT INTO waitlist_entries (id, event_id, user_id, position, status, joined_at, promoted_at, version)
               VALUES (?, ?, ?, ?, ?, ?, NULL, 1)`
	if _, err := m.tx.ExecContext(ctx, q, w.ID, w.EventID, w.UserID, w.Position, w.Status, w.JoinedAt); err != nil {
		return translate(err)
	}
	w.Version = 1
	return nil
}

// UpdateWaitlistEntry writes the status change of an entry.
func (m *mysqlTx) UpdateWaitlistEntry(ctx context.Context, w *model.WaitlistEntry) error {
	const q = `UPDATE waitlist_entries SET status = ?, promoted_at = ?, version = version + 1
               WHERE id = ? AND version = ?`
	var promoted sql.NullTime
	if w.PromotedAt != nil {
		promoted = sql.NullTime{Time: *w.PromotedAt, Valid: true}
	}
	res, err := m.tx.ExecContext(ctx, q, w.Status, promoted, w.ID, w.Version)
	if err := expectOne(res, err); err != nil {
		return err
	}
	w.Version++
	return nil
}
