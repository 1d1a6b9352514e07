package notify

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const dispatchTimeout = 5 * time.Second

// Async decouples callers from a slow or unavailable dispatcher.
// Notifications are buffered and handed to next by a single worker; when
// the buffer is full the notification is dropped with a warning.
type Async struct {
	next   Dispatcher
	logger logrus.FieldLogger
	queue  chan Notification
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	// mu orders enqueues before the close; closed is guarded by it.
	mu     sync.RWMutex
	closed bool
}

// NewAsync starts the worker.  Call Close to drain and stop it.
func NewAsync(next Dispatcher, buffer int, logger logrus.FieldLogger) *Async {
	if buffer <= 0 {
		buffer = 256
	}
	a := &Async{
		next:   next,
		logger: logger.WithField("component", "notify"),
		queue:  make(chan Notification, buffer),
		done:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Dispatch enqueues n and never blocks.  It always returns nil.
func (a *Async) Dispatch(_ context.Context, n Notification) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.drop(n, "dispatcher closed")
		return nil
	}
	select {
	case a.queue <- n:
	default:
		a.drop(n, "buffer full")
	}
	return nil
}

// Close stops accepting notifications, delivers what is buffered and waits
// for the worker to exit.
func (a *Async) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.done)
		a.mu.Unlock()
	})
	a.wg.Wait()
}

func (a *Async) run() {
	defer a.wg.Done()
	for {
		select {
		case n := <-a.queue:
			a.send(n)
		case <-a.done:
			for {
				select {
				case n := <-a.queue:
					a.send(n)
				default:
					return
				}
			}
		}
	}
}

func (a *Async) send(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	if err := a.next.Dispatch(ctx, n); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"type":     n.Type,
			"event_id": n.EventID,
			"user_id":  n.UserID,
		}).Warn("notification dispatch failed")
	}
}

func (a *Async) drop(n Notification, why string) {
	a.logger.WithFields(logrus.Fields{
		"type":     n.Type,
		"event_id": n.EventID,
		"user_id":  n.UserID,
	}).Warnf("notification dropped: %s", why)
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu  sync.Mutex
	all []Notification
}

// Dispatch implements Dispatcher.
func (r *Recorder) Dispatch(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, n)
	return nil
}

// All returns a copy of what was recorded so far.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.all...)
}

// OfType returns the recorded notifications with the given type.
func (r *Recorder) OfType(typ string) []Notification {
	var out []Notification
	for _, n := range r.All() {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}
