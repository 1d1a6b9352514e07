package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/repository"
)

func seed(t *testing.T, s *Store, ev *model.EventInventory) {
	t.Helper()
	require.NoError(t, s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.InsertEvent(ctx, ev)
	}))
}

func readEvent(t *testing.T, s *Store, id string) *model.EventInventory {
	t.Helper()
	var ev *model.EventInventory
	require.NoError(t, s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		ev, err = tx.GetEvent(ctx, id)
		return err
	}))
	return ev
}

func TestGetMissing(t *testing.T) {
	s := New()
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.GetTicket(ctx, "nope")
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInterleavedWriterConflicts(t *testing.T) {
	s := New()
	seed(t, s, &model.EventInventory{ID: "ev-1", Capacity: 10, Status: model.EventOpen})
	ctx := context.Background()

	err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, "ev-1")
		if err != nil {
			return err
		}
		// another writer commits between our read and our commit
		require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, other repository.Tx) error {
			e, err := other.GetEvent(ctx, "ev-1")
			if err != nil {
				return err
			}
			e.SoldCount = 3
			return other.UpdateEvent(ctx, e)
		}))
		ev.SoldCount++
		return tx.UpdateEvent(ctx, ev)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, 3, readEvent(t, s, "ev-1").SoldCount)
}

func TestReadOnlyDependencyConflicts(t *testing.T) {
	s := New()
	seed(t, s, &model.EventInventory{ID: "ev-1", Capacity: 10, Status: model.EventOpen})
	seed(t, s, &model.EventInventory{ID: "ev-2", Capacity: 10, Status: model.EventOpen})
	ctx := context.Background()

	// a write decided on a stale read of another document must not commit
	err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetEvent(ctx, "ev-1"); err != nil {
			return err
		}
		require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, other repository.Tx) error {
			e, _ := other.GetEvent(ctx, "ev-1")
			e.Status = model.EventCancelled
			return other.UpdateEvent(ctx, e)
		}))
		ev2, err := tx.GetEvent(ctx, "ev-2")
		if err != nil {
			return err
		}
		ev2.SoldCount = 1
		return tx.UpdateEvent(ctx, ev2)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Zero(t, readEvent(t, s, "ev-2").SoldCount)
}

func TestDuplicateTicketNumber(t *testing.T) {
	s := New()
	ctx := context.Background()
	insert := func(id string) error {
		return s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.InsertTicket(ctx, &model.Ticket{ID: id, EventID: "ev-1", TicketNumber: "AAAA-BBBB-CCCC"})
		})
	}
	require.NoError(t, insert("t-1"))
	assert.ErrorIs(t, insert("t-2"), repository.ErrConflict)

	err := s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.GetTicket(ctx, "t-2")
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFailedBodyWritesNothing(t *testing.T) {
	s := New()
	boom := errors.New("capacity exceeded")
	err := s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		if err := tx.InsertEvent(ctx, &model.EventInventory{ID: "ev-1", Capacity: 1}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	err = s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := tx.GetEvent(ctx, "ev-1")
		return err
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReadsArePrivateCopies(t *testing.T) {
	s := New()
	seed(t, s, &model.EventInventory{
		ID: "ev-1", Capacity: 10, Status: model.EventOpen,
		TicketTypes: []model.TicketType{{ID: "ga", Name: "General"}},
	})
	require.NoError(t, s.RunInTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		ev, err := tx.GetEvent(ctx, "ev-1")
		if err != nil {
			return err
		}
		ev.SoldCount = 9
		ev.TicketTypes[0].TypeSoldCount = 9
		return nil
	}))
	ev := readEvent(t, s, "ev-1")
	assert.Zero(t, ev.SoldCount)
	assert.Zero(t, ev.TicketTypes[0].TypeSoldCount)
}

func TestNextSequence(t *testing.T) {
	s := New()
	ctx := context.Background()
	next := func(name string) int64 {
		var v int64
		require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			v, err = tx.NextSequence(ctx, name)
			return err
		}))
		return v
	}
	a := repository.WaitlistSequence("ev-1")
	assert.Equal(t, int64(1), next(a))
	assert.Equal(t, int64(2), next(a))
	assert.Equal(t, int64(1), next(repository.WaitlistSequence("ev-2")))
	assert.Equal(t, int64(3), next(a))
}

func TestWaitlistOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	joined := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	// inserted out of order, with clocks that disagree with positions
	for i, pos := range []int64{3, 1, 2} {
		w := &model.WaitlistEntry{
			ID: "w" + string(rune('a'+i)), EventID: "ev-1", UserID: "u" + string(rune('a'+i)),
			Position: pos, Status: model.WaitlistWaiting, JoinedAt: joined.Add(-time.Duration(pos) * time.Minute),
		}
		require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.InsertWaitlistEntry(ctx, w)
		}))
	}
	require.NoError(t, s.RunInTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		head, err := tx.NextWaiting(ctx, "ev-1")
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), head.Position)
		all, err := tx.ListWaitlist(ctx, "ev-1")
		if err != nil {
			return err
		}
		require.Len(t, all, 3)
		for i, w := range all {
			assert.Equal(t, int64(i+1), w.Position)
		}
		return nil
	}))
}

func TestPendingPromotionEvents(t *testing.T) {
	s := New()
	seed(t, s, &model.EventInventory{ID: "ev-b", Capacity: 1, Status: model.EventOpen, PendingPromotions: 1})
	seed(t, s, &model.EventInventory{ID: "ev-a", Capacity: 1, Status: model.EventOpen, PendingPromotions: 2})
	seed(t, s, &model.EventInventory{ID: "ev-c", Capacity: 1, Status: model.EventOpen})
	seed(t, s, &model.EventInventory{ID: "ev-d", Capacity: 1, Status: model.EventCancelled, PendingPromotions: 1})

	ids, err := s.PendingPromotionEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ev-a", "ev-b"}, ids)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := New().RunInTx(ctx, func(context.Context, repository.Tx) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}
