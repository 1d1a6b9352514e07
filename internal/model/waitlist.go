package model

import "time"

// Waitlist entry statuses.
const (
	WaitlistWaiting  = "WAITING"
	WaitlistPromoted = "PROMOTED"
	WaitlistExpired  = "EXPIRED"
)

// WaitlistEntry is a user's place in an event's queue.  Position comes from
// a per-event sequence owned by the store and is never reused; promotion
// order is ascending Position, never JoinedAt.
type WaitlistEntry struct {
	ID         string     `json:"id"`
	EventID    string     `json:"event_id"`
	UserID     string     `json:"user_id"`
	Position   int64      `json:"position"`
	Status     string     `json:"status"`
	JoinedAt   time.Time  `json:"joined_at"`
	PromotedAt *time.Time `json:"promoted_at,omitempty"`
	Version    int64      `json:"-"`
}

// Active reports whether the entry still blocks the user from joining again.
func (w *WaitlistEntry) Active() bool {
	return w.Status == WaitlistWaiting || w.Status == WaitlistPromoted
}
