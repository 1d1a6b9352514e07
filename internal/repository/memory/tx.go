package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/iliyamo/ticket-inventory/internal/model"
	"github.com/iliyamo/ticket-inventory/internal/repository"
)

var _ repository.Tx = (*tx)(nil)

// tx buffers writes and remembers the version of every key it looked at.
// Absent keys are remembered as version 0.
type tx struct {
	s      *Store
	reads  map[string]int64
	writes map[string]any
	fresh  map[string]bool
}

func (t *tx) read(key string) (any, bool) {
	if v, ok := t.writes[key]; ok {
		return clone(v), true
	}
	v, ver, ok := t.s.get(key)
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = ver
	}
	return v, ok
}

func (t *tx) update(key string, val any, version int64) {
	if _, seen := t.reads[key]; !seen {
		t.reads[key] = version
	}
	t.writes[key] = clone(val)
}

func (t *tx) insert(key string, val any) error {
	if _, ok := t.writes[key]; ok {
		return repository.ErrConflict
	}
	t.fresh[key] = true
	t.writes[key] = clone(val)
	return nil
}

// list returns the values under prefix, with this transaction's own writes
// laid over the committed state.
func (t *tx) list(prefix string) []any {
	merged := make(map[string]any)
	for k, d := range t.s.scan(prefix) {
		if _, seen := t.reads[k]; !seen {
			t.reads[k] = d.version
		}
		merged[k] = d.val
	}
	for k, v := range t.writes {
		if strings.HasPrefix(k, prefix) {
			merged[k] = clone(v)
		}
	}
	out := make([]any, 0, len(merged))
	for _, v := range merged {
		out = append(out, v)
	}
	return out
}

func (t *tx) GetEvent(_ context.Context, eventID string) (*model.EventInventory, error) {
	v, ok := t.read(pEvent + eventID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	ev := v.(*model.EventInventory)
	ev.Version = t.reads[pEvent+eventID]
	return ev, nil
}

func (t *tx) InsertEvent(_ context.Context, ev *model.EventInventory) error {
	if err := t.insert(pEvent+ev.ID, ev); err != nil {
		return err
	}
	ev.Version = 1
	return nil
}

func (t *tx) UpdateEvent(_ context.Context, ev *model.EventInventory) error {
	t.update(pEvent+ev.ID, ev, ev.Version)
	return nil
}

func (t *tx) GetTicket(_ context.Context, ticketID string) (*model.Ticket, error) {
	v, ok := t.read(pTicket + ticketID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	tk := v.(*model.Ticket)
	tk.Version = t.reads[pTicket+ticketID]
	return tk, nil
}

func (t *tx) GetTicketByNumber(ctx context.Context, ticketNumber string) (*model.Ticket, error) {
	v, ok := t.read(pTicketNum + ticketNumber)
	if !ok {
		return nil, repository.ErrNotFound
	}
	return t.GetTicket(ctx, v.(string))
}

func (t *tx) ListTicketsByEvent(_ context.Context, eventID string) ([]*model.Ticket, error) {
	out := t.tickets(func(tk *model.Ticket) bool { return tk.EventID == eventID })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.Before(out[j].PurchasedAt)
		}
		return out[i].TicketNumber < out[j].TicketNumber
	})
	return out, nil
}

func (t *tx) ListTicketsByOwner(_ context.Context, ownerID string) ([]*model.Ticket, error) {
	out := t.tickets(func(tk *model.Ticket) bool { return tk.OwnerID == ownerID })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.After(out[j].PurchasedAt)
		}
		return out[i].TicketNumber < out[j].TicketNumber
	})
	return out, nil
}

func (t *tx) tickets(keep func(*model.Ticket) bool) []*model.Ticket {
	out := make([]*model.Ticket, 0)
	for _, v := range t.list(pTicket) {
		tk := v.(*model.Ticket)
		if keep(tk) {
			tk.Version = t.reads[pTicket+tk.ID]
			out = append(out, tk)
		}
	}
	return out
}

func (t *tx) InsertTicket(_ context.Context, tk *model.Ticket) error {
	if err := t.insert(pTicketNum+tk.TicketNumber, tk.ID); err != nil {
		return err
	}
	if err := t.insert(pTicket+tk.ID, tk); err != nil {
		return err
	}
	tk.Version = 1
	return nil
}

func (t *tx) UpdateTicket(_ context.Context, tk *model.Ticket) error {
	t.update(pTicket+tk.ID, tk, tk.Version)
	return nil
}

func (t *tx) InsertPurchase(_ context.Context, p *model.Purchase) error {
	return t.insert(pPurchase+p.ID, p)
}

func (t *tx) GetDiscountCode(_ context.Context, eventID, code string) (*model.DiscountCode, error) {
	key := pDiscount + eventID + "/" + code
	v, ok := t.read(key)
	if !ok {
		return nil, repository.ErrNotFound
	}
	d := v.(*model.DiscountCode)
	d.Version = t.reads[key]
	return d, nil
}

func (t *tx) InsertDiscountCode(_ context.Context, d *model.DiscountCode) error {
	if err := t.insert(pDiscount+d.EventID+"/"+d.Code, d); err != nil {
		return err
	}
	d.Version = 1
	return nil
}

func (t *tx) UpdateDiscountCode(_ context.Context, d *model.DiscountCode) error {
	t.update(pDiscount+d.EventID+"/"+d.Code, d, d.Version)
	return nil
}

func (t *tx) GetWaitlistEntry(_ context.Context, eventID, userID string) (*model.WaitlistEntry, error) {
	v, ok := t.read(pWaitUser + eventID + "/" + userID)
	if !ok {
		return nil, repository.ErrNotFound
	}
	key := pWaitlist + eventID + "/" + v.(string)
	ev, ok := t.read(key)
	if !ok {
		return nil, repository.ErrNotFound
	}
	w := ev.(*model.WaitlistEntry)
	w.Version = t.reads[key]
	return w, nil
}

func (t *tx) NextWaiting(ctx context.Context, eventID string) (*model.WaitlistEntry, error) {
	all, _ := t.ListWaitlist(ctx, eventID)
	for _, w := range all {
		if w.Status == model.WaitlistWaiting {
			return w, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (t *tx) ListWaitlist(_ context.Context, eventID string) ([]*model.WaitlistEntry, error) {
	prefix := pWaitlist + eventID + "/"
	out := make([]*model.WaitlistEntry, 0)
	for _, v := range t.list(prefix) {
		w := v.(*model.WaitlistEntry)
		w.Version = t.reads[prefix+w.ID]
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (t *tx) InsertWaitlistEntry(_ context.Context, w *model.WaitlistEntry) error {
	if err := t.insert(pWaitlist+w.EventID+"/"+w.ID, w); err != nil {
		return err
	}
	// the user index is overwritten on rejoin, so it is read-checked rather
	// than insert-checked
	idx := pWaitUser + w.EventID + "/" + w.UserID
	t.read(idx)
	t.writes[idx] = w.ID
	w.Version = 1
	return nil
}

func (t *tx) UpdateWaitlistEntry(_ context.Context, w *model.WaitlistEntry) error {
	t.update(pWaitlist+w.EventID+"/"+w.ID, w, w.Version)
	return nil
}

func (t *tx) NextSequence(_ context.Context, name string) (int64, error) {
	key := pSequence + name
	var cur int64
	if v, ok := t.read(key); ok {
		cur = v.(int64)
	}
	cur++
	t.writes[key] = cur
	return cur, nil
}
