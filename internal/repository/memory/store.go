// Package memory is an in-process implementation of repository.Store.  It
// keeps every document under a string key with a version number, records
// the versions a transaction observed and validates them at commit, so it
// behaves like the MySQL store under concurrent writers: a transaction that
// lost a race fails with repository.ErrConflict and must be re-run.
//
// It backs the test suites and APP_ENV=dev when no database is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/repository"
)

var _ repository.Store = (*Store)(nil)

// key prefixes
const (
	pEvent     = "event/"
	pTicket    = "ticket/"
	pTicketNum = "ticketnum/"
	pPurchase  = "purchase/"
	pDiscount  = "discount/"
	pWaitlist  = "waitlist/"
	pWaitUser  = "waituser/"
	pSequence  = "seq/"
)

type doc struct {
	version int64
	val     any
}

// Store holds committed documents.  mu only guards the map; it is never
// held while a transaction body runs.
type Store struct {
	mu   sync.Mutex
	docs map[string]doc
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[string]doc)}
}

// RunInTx implements repository.Store.
func (s *Store) RunInTx(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		s:      s,
		reads:  make(map[string]int64),
		writes: make(map[string]any),
		fresh:  make(map[string]bool),
	}
	if err := fn(ctx, t); err != nil {
		return err
	}
	return s.commit(t)
}

// PendingPromotionEvents implements repository.Store.
func (s *Store) PendingPromotionEvents(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0)
	for k, d := range s.docs {
		if !strings.HasPrefix(k, pEvent) {
			continue
		}
		ev := d.val.(*model.EventInventory)
		if ev.PendingPromotions > 0 && ev.Status == model.EventOpen {
			ids = append(ids, ev.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range t.reads {
		if s.docs[k].version != v {
			return repository.ErrConflict
		}
	}
	for k := range t.fresh {
		if _, ok := s.docs[k]; ok {
			return repository.ErrConflict
		}
	}
	for k, v := range t.writes {
		s.docs[k] = doc{version: s.docs[k].version + 1, val: clone(v)}
	}
	return nil
}

// get returns a private copy of the committed value and its version.
func (s *Store) get(key string) (any, int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[key]
	if !ok {
		return nil, 0, false
	}
	return clone(d.val), d.version, true
}

// scan returns copies of every committed document under prefix.
func (s *Store) scan(prefix string) map[string]doc {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]doc)
	for k, d := range s.docs {
		if strings.HasPrefix(k, prefix) {
			out[k] = doc{version: d.version, val: clone(d.val)}
		}
	}
	return out
}

func clone(v any) any {
	switch x := v.(type) {
	case *model.EventInventory:
		return x.Clone()
	case *model.Ticket:
		cp := *x
		if x.CheckedInAt != nil {
			at := *x.CheckedInAt
			cp.CheckedInAt = &at
		}
		return &cp
	case *model.WaitlistEntry:
		cp := *x
		if x.PromotedAt != nil {
			at := *x.PromotedAt
			cp.PromotedAt = &at
		}
		return &cp
	case *model.DiscountCode:
		cp := *x
		cp.ApplicableTicketTypeIDs = append([]string(nil), x.ApplicableTicketTypeIDs...)
		return &cp
	case *model.Purchase:
		cp := *x
		cp.TicketIDs = append([]string(nil), x.TicketIDs...)
		return &cp
	default:
		// strings and int64 are values already
		return v
	}
}
