// Package schedsvc runs the periodic background jobs.
package schedsvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/academia/core"
)

const jobTimeout = 4 * time.Minute

// OverdueMarker flags unpaid fees past their due date.
type OverdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

type Scheduler struct {
	cron   *cron.Cron
	logger core.Logger
	fees   OverdueMarker
	now    func() time.Time
}

// NewScheduler registers the jobs; they only run once Start is called.
func NewScheduler(conf *core.Config, logger core.Logger, fees OverdueMarker) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		logger: logger,
		fees:   fees,
		now:    func() time.Time { return time.Now().UTC() },
	}
	if _, err := s.cron.AddFunc(conf.Scheduler.FeeOverdueSchedule, s.markOverdueFees); err != nil {
		return nil, errors.Wrapf(err, "scheduling overdue fees job (%q)", conf.Scheduler.FeeOverdueSchedule)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info(fmt.Sprintf("scheduler started with %d job(s)", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop stops the scheduler and waits for the running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for running jobs")
	}
}

func (s *Scheduler) markOverdueFees() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	_, _ = s.MarkOverdueFees(ctx)
}

// MarkOverdueFees flags the PENDING fees whose due date has passed.
func (s *Scheduler) MarkOverdueFees(ctx context.Context) (int64, error) {
	asOf := s.now()
	n, err := s.fees.MarkOverdue(ctx, asOf)
	if err != nil {
		err = errors.Wrap(err, "marking overdue fees")
		s.logger.Error(err.Error(), err)
		return 0, err
	}
	if n > 0 {
		s.logger.Info(fmt.Sprintf("%d fee(s) marked overdue as of %s", n, asOf.Format("2006-01-02")))
	}
	return n, nil
}
