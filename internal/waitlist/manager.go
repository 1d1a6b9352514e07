// Package waitlist keeps the per-event queue of users waiting for capacity.
// Order is the store-assigned position, never the join time.
package waitlist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/ledger"
	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/notify"
	"github.com/iliyamo/ticket-inventory/internal/repository"
	"github.com/iliyamo/ticket-inventory/internal/stats"
)

var (
	// ErrAlreadyWaiting is returned when the user holds a waiting or
	// promoted entry for the event.
	ErrAlreadyWaiting = errors.New("user already on the waitlist")
	// ErrEmpty is returned by PromoteNext when nobody is waiting.
	ErrEmpty = errors.New("waitlist is empty")
)

// maxSweepPromotions bounds the promotions one sweep makes per event.
const maxSweepPromotions = 100

// Manager runs joins and promotions.
type Manager struct {
	runner   *repository.Runner
	counter  repository.Counter
	notifier notify.Dispatcher
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewManager wires a Manager.  now defaults to time.Now when nil.
func NewManager(runner *repository.Runner, counter repository.Counter, notifier notify.Dispatcher, logger logrus.FieldLogger, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		runner:   runner,
		counter:  counter,
		notifier: notifier,
		logger:   logger.WithField("component", "waitlist"),
		now:      now,
	}
}

// Join appends userID to the event's queue.  The position comes from the
// event's sequence, advanced in the same transaction as the insert, so two
// joiners can never share one.  The event document is written back so a
// concurrent cancellation conflicts with the join instead of missing it.
func (m *Manager) Join(ctx context.Context, eventID, userID string) (*model.WaitlistEntry, error) {
	var entry *model.WaitlistEntry
	err := m.runner.Do(ctx, "waitlist_join", func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := ledger.CheckOpen(ev); err != nil {
			return err
		}
		prev, err := tx.GetWaitlistEntry(ctx, eventID, userID)
		switch {
		case err == nil && prev.Active():
			return ErrAlreadyWaiting
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return err
		}
		pos, err := tx.NextSequence(ctx, repository.WaitlistSequence(eventID))
		if err != nil {
			return err
		}
		entry = &model.WaitlistEntry{
			ID:       uuid.NewString(),
			EventID:  eventID,
			UserID:   userID,
			Position: pos,
			Status:   model.WaitlistWaiting,
			JoinedAt: m.now().UTC(),
		}
		if err := tx.InsertWaitlistEntry(ctx, entry); err != nil {
			return err
		}
		return tx.UpdateEvent(ctx, ev)
	})
	if err != nil {
		return nil, err
	}
	m.logger.WithFields(logrus.Fields{
		"event_id": eventID,
		"user_id":  userID,
		"position": entry.Position,
	}).Info("joined waitlist")
	m.incr(ctx, eventID, stats.WaitlistJoins)
	return entry, nil
}

// PromoteNext marks the waiting entry with the smallest position as
// promoted and notifies its user.  It does not reserve inventory; the user
// still has to purchase.  Each success settles one pending promotion of the
// event; an empty queue settles all of them and returns ErrEmpty.  A
// cancelled event promotes nobody and returns ledger.ErrEventClosed.
func (m *Manager) PromoteNext(ctx context.Context, eventID string) (*model.WaitlistEntry, error) {
	w, _, err := m.promote(ctx, eventID)
	return w, err
}

func (m *Manager) promote(ctx context.Context, eventID string) (*model.WaitlistEntry, int, error) {
	var (
		entry   *model.WaitlistEntry
		pending int
		closed  bool
	)
	err := m.runner.Do(ctx, "waitlist_promote", func(ctx context.Context, tx repository.Tx) error {
		entry, pending, closed = nil, 0, false
		ev, err := tx.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if err := ledger.CheckOpen(ev); err != nil {
			closed = true
			if ev.PendingPromotions == 0 {
				return nil
			}
			ev.PendingPromotions = 0
			return tx.UpdateEvent(ctx, ev)
		}
		w, err := tx.NextWaiting(ctx, eventID)
		if errors.Is(err, repository.ErrNotFound) {
			if ev.PendingPromotions == 0 {
				return nil
			}
			ev.PendingPromotions = 0
			return tx.UpdateEvent(ctx, ev)
		}
		if err != nil {
			return err
		}
		at := m.now().UTC()
		w.Status = model.WaitlistPromoted
		w.PromotedAt = &at
		if err := tx.UpdateWaitlistEntry(ctx, w); err != nil {
			return err
		}
		if ev.PendingPromotions > 0 {
			ev.PendingPromotions--
			if err := tx.UpdateEvent(ctx, ev); err != nil {
				return err
			}
		}
		entry, pending = w, ev.PendingPromotions
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if closed {
		return nil, 0, ledger.ErrEventClosed
	}
	if entry == nil {
		return nil, 0, ErrEmpty
	}

	m.logger.WithFields(logrus.Fields{
		"event_id": eventID,
		"user_id":  entry.UserID,
		"position": entry.Position,
	}).Info("waitlist entry promoted")
	m.incr(ctx, eventID, stats.Promotions)
	if err := m.notifier.Dispatch(ctx, notify.Notification{
		Type:            notify.WaitlistPromoted,
		EventID:         eventID,
		WaitlistEntryID: entry.ID,
		UserID:          entry.UserID,
		Timestamp:       *entry.PromotedAt,
	}); err != nil {
		m.logger.WithError(err).Warn("notification dispatch failed")
	}
	return entry, pending, nil
}

// List returns every entry of the event in position order.
func (m *Manager) List(ctx context.Context, eventID string) ([]*model.WaitlistEntry, error) {
	var out []*model.WaitlistEntry
	err := m.runner.Do(ctx, "waitlist_list", func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetEvent(ctx, eventID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListWaitlist(ctx, eventID)
		return err
	})
	return out, err
}

// SweepPending retries the promotions owed by every event with released
// but not yet offered capacity.  It returns how many entries it promoted.
func (m *Manager) SweepPending(ctx context.Context) (int, error) {
	ids, err := m.runner.Store().PendingPromotionEvents(ctx)
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, id := range ids {
		for i := 0; i < maxSweepPromotions; i++ {
			_, pending, err := m.promote(ctx, id)
			if errors.Is(err, ErrEmpty) || errors.Is(err, ledger.ErrEventClosed) {
				break
			}
			if err != nil {
				m.logger.WithError(err).WithField("event_id", id).Error("promotion sweep failed")
				break
			}
			promoted++
			if pending == 0 {
				break
			}
		}
		if ctx.Err() != nil {
			return promoted, ctx.Err()
		}
	}
	return promoted, nil
}

func (m *Manager) incr(ctx context.Context, eventID, name string) {
	if err := m.counter.Incr(ctx, stats.Key(eventID, name), 1); err != nil {
		m.logger.WithError(err).WithField("counter", name).Warn("counter increment failed")
	}
}
