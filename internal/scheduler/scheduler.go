// Package scheduler keeps the event cache warm by refreshing it on a cron
// schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "whatson/internal/log"
	"whatson/internal/model"
)

// Refresher reloads the event list from the remote API.
type Refresher interface {
	Refresh(ctx context.Context) ([]model.Event, error)
}

// Scheduler runs Refresher.Refresh on a standard 5-field cron schedule.
// Overlapping runs are skipped.
type Scheduler struct {
	cron    *cron.Cron
	target  Refresher
	timeout time.Duration

	mu      sync.Mutex
	running bool
	runs    int
}

// New parses schedule and registers the refresh job. timeout bounds each run;
// zero means one minute.
func New(schedule string, loc *time.Location, target Refresher, timeout time.Duration) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		target:  target,
		timeout: timeout,
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running the job in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	appLog.Info("refresh scheduler started", "entries", len(s.cron.Entries()))
}

// Stop halts scheduling and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	appLog.Info("refresh scheduler stopped")
}

// Shutdown implements do.Shutdownable.
func (s *Scheduler) Shutdown() error {
	s.Stop()
	return nil
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Runs reports how many refreshes have completed.
func (s *Scheduler) Runs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs
}

// RunNow performs one refresh synchronously unless one is already running.
// It reports whether a refresh was attempted.
func (s *Scheduler) RunNow(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		appLog.Debug("refresh already running; skipping")
		return false
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.runs++
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	events, err := s.target.Refresh(ctx)
	if err != nil {
		appLog.Error("scheduled refresh failed", err)
		return true
	}
	appLog.Info("scheduled refresh completed",
		"event_count", len(events),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true
}

func (s *Scheduler) tick() {
	s.RunNow(context.Background())
}
