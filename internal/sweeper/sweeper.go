// Package sweeper periodically retries waitlist promotions that were owed
// but not completed right after a refund or cancellation.
package sweeper

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"
)

// Target is what the sweeper drives; *waitlist.Manager implements it.
type Target interface {
	SweepPending(ctx context.Context) (int, error)
}

// Sweeper owns a gocron scheduler with a single duration job.
type Sweeper struct {
	sched  gocron.Scheduler
	target Target
	logger logrus.FieldLogger
}

// Start schedules target every interval.  Runs never overlap; a run that
// outlasts the interval pushes the next one back.  ctx bounds every run.
func Start(ctx context.Context, target Target, interval time.Duration, logger logrus.FieldLogger) (*Sweeper, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	s := &Sweeper{sched: sched, target: target, logger: logger.WithField("component", "sweeper")}
	j, err := sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.RunOnce, ctx),
		gocron.WithName("promotion-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, err
	}
	sched.Start()
	s.logger.WithFields(logrus.Fields{"job": j.ID().String(), "interval": interval.String()}).
		Info("promotion sweeper started")
	return s, nil
}

// RunOnce performs one sweep.
func (s *Sweeper) RunOnce(ctx context.Context) {
	n, err := s.target.SweepPending(ctx)
	if err != nil {
		s.logger.WithError(err).Error("promotion sweep failed")
		return
	}
	if n > 0 {
		s.logger.WithField("promoted", n).Info("promotion sweep done")
	}
}

// Stop shuts the scheduler down and waits for a running sweep.
func (s *Sweeper) Stop() error {
	return s.sched.Shutdown()
}
