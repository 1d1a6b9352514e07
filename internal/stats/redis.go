// Package stats keeps per-event analytics counters in Redis.  The numbers
// are informational only and play no part in inventory decisions.
package stats

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticket-inventory/internal/repository"
)

var _ repository.Counter = (*RedisCounter)(nil)

// Counter names.
const (
	TicketsSold      = "tickets_sold"
	Purchases        = "purchases"
	DiscountsApplied = "discounts_applied"
	CheckIns         = "check_ins"
	Transfers        = "transfers"
	Refunds          = "refunds"
	Promotions       = "waitlist_promotions"
	WaitlistJoins    = "waitlist_joins"
)

// Names lists every counter in reporting order.
var Names = []string{TicketsSold, Purchases, DiscountsApplied, CheckIns, Transfers, Refunds, Promotions, WaitlistJoins}

// Key is the Redis key of a per-event counter.
func Key(eventID, name string) string {
	return fmt.Sprintf("stats:event:%s:%s", eventID, name)
}

// RedisCounter increments counters with INCRBY.
type RedisCounter struct {
	rdb redis.Cmdable
}

// NewRedisCounter returns a counter backed by rdb.  A nil rdb yields a
// counter that discards increments.
func NewRedisCounter(rdb redis.Cmdable) repository.Counter {
	if rdb == nil {
		return repository.NopCounter{}
	}
	return &RedisCounter{rdb: rdb}
}

// Incr implements repository.Counter.
func (r *RedisCounter) Incr(ctx context.Context, key string, delta int64) error {
	return r.rdb.IncrBy(ctx, key, delta).Err()
}

// Snapshot reads the named counters of one event, or all of them when no
// name is given.  Missing counters read as zero.
func Snapshot(ctx context.Context, rdb redis.Cmdable, eventID string, names ...string) (map[string]int64, error) {
	if len(names) == 0 {
		names = Names
	}
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = Key(eventID, n)
	}
	vals, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(names))
	for i, n := range names {
		var v int64
		if s, ok := vals[i].(string); ok {
			_, _ = fmt.Sscan(s, &v)
		}
		out[n] = v
	}
	return out, nil
}
