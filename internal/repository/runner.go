package repository

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
)

const maxBackoff = time.Second

// Runner re-runs a transaction body on ErrConflict with exponential backoff
// and gives up after MaxAttempts, so a hot event cannot livelock its
// writers.
type Runner struct {
	store       Store
	maxAttempts int
	baseBackoff time.Duration
	logger      logrus.FieldLogger
}

// NewRunner wraps store.  Non-positive values fall back to 5 attempts and a
// 10ms initial backoff.
func NewRunner(store Store, maxAttempts int, baseBackoff time.Duration, logger logrus.FieldLogger) *Runner {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	if baseBackoff <= 0 {
		baseBackoff = 10 * time.Millisecond
	}
	return &Runner{store: store, maxAttempts: maxAttempts, baseBackoff: baseBackoff, logger: logger}
}

// Store exposes the wrapped store for non-transactional reads.
func (r *Runner) Store() Store { return r.store }

// Do runs fn inside a transaction.  name is used for logs and error
// wrapping.  Errors other than ErrConflict are returned as is, which keeps
// business errors from the body typed for the caller.
func (r *Runner) Do(ctx context.Context, name string, fn TxFunc) error {
	backoff := r.baseBackoff
	for attempt := 1; ; attempt++ {
		err := r.store.RunInTx(ctx, fn)
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		if attempt >= r.maxAttempts {
			r.logger.WithFields(logrus.Fields{"tx": name, "attempts": attempt}).
				Error("transaction retries exhausted")
			return fmt.Errorf("%s: %w", name, ErrTransientConflict)
		}
		r.logger.WithFields(logrus.Fields{"tx": name, "attempt": attempt}).
			Debug("transaction conflict, retrying")

		// half fixed, half random
		wait := backoff/2 + rand.N(backoff/2+1)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
