// Package repository defines the transactional document store the booking
// core runs on, the bounded retry loop around it, and the MySQL
// implementation.  The sentinel errors below let the domain packages tell a
// missing document from a lost optimistic-concurrency race:
// ErrConflict means another writer changed something this transaction read
// and the whole body must be re-run, while ErrTransientConflict is what the
// caller finally sees once the retry budget is spent.
package repository

import "errors"

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned by a transaction whose read set was modified by a
// concurrent writer before commit.  Runner re-runs the body on it.
var ErrConflict = errors.New("concurrent modification")

// ErrTransientConflict is returned when a transaction still conflicts after
// the configured number of attempts.  It is retryable by the end caller and
// handlers translate it into HTTP 503.
var ErrTransientConflict = errors.New("transaction retries exhausted")
