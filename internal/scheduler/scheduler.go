package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vfs-go/internal/cms"
)

// Pruner deletes backup history older than a number of weeks and returns
// the oldest remaining version id. cms.BackupStore satisfies it.
type Pruner interface {
	PruneOlderThan(ageWeeks int) (int64, error)
}

// PruneScheduler runs history pruning on a cron schedule.
type PruneScheduler struct {
	cron     *cron.Cron
	pruner   Pruner
	ageWeeks int
	logger   cms.Logger
	clock    cms.Clock

	mu      sync.Mutex
	runs    int
	lastErr error
}

// New parses schedule (standard five-field cron syntax or descriptors such
// as "@weekly") and returns a stopped scheduler.
func New(pruner Pruner, schedule string, ageWeeks int, logger cms.Logger, clock cms.Clock) (*PruneScheduler, error) {
	if ageWeeks <= 0 {
		return nil, fmt.Errorf("max_age_weeks must be positive to schedule pruning, got %d", ageWeeks)
	}

	s := &PruneScheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		pruner:   pruner,
		ageWeeks: ageWeeks,
		logger:   logger,
		clock:    clock,
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce() }); err != nil {
		return nil, fmt.Errorf("parsing prune schedule %q: %w", schedule, err)
	}
	return s, nil
}

// RunOnce prunes immediately. Failures are logged and returned; the
// schedule keeps running.
func (s *PruneScheduler) RunOnce() error {
	oldest, err := s.pruner.PruneOlderThan(s.ageWeeks)

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("scheduled prune failed", "max_age_weeks", s.ageWeeks, "error", err)
		return err
	}
	s.logger.Info("scheduled prune finished", "max_age_weeks", s.ageWeeks, "oldest_version", oldest)
	return nil
}

// Run starts the schedule and blocks until ctx is done. A job already in
// flight is allowed to finish.
func (s *PruneScheduler) Run(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("prune scheduler started", "next", s.Next().UTC())
	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("prune scheduler stopped")
}

// Next returns the next scheduled run time.
func (s *PruneScheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Schedule.Next(s.clock.Now())
}

// Runs returns how many prunes have run and the error of the last one.
func (s *PruneScheduler) Runs() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastErr
}
