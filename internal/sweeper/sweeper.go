// Package sweeper removes idle experiment sessions on a cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/house-lab/internal/shared"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a sweep every five minutes.
const DefaultSchedule = "@every 5m"

// Lister finds sessions idle for longer than ttl.
type Lister interface {
	ExpiredSessions(ctx context.Context, ttl time.Duration) ([]string, error)
}

// Expirer removes one session if it is still idle for ttl and releases
// whatever is attached to it. It reports whether the session was removed.
type Expirer interface {
	Expire(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
}

// Sweeper periodically expires idle sessions.
type Sweeper struct {
	cron    *cron.Cron
	lister  Lister
	expirer Expirer
	ttl     time.Duration
	ctx     context.Context
}

// New creates a Sweeper. Sweeps run with ctx and stop doing work once it is
// cancelled.
func New(ctx context.Context, lister Lister, expirer Expirer, ttl time.Duration) *Sweeper {
	return &Sweeper{
		cron:    cron.New(),
		lister:  lister,
		expirer: expirer,
		ttl:     ttl,
		ctx:     ctx,
	}
}

// Register schedules the sweep job. An empty schedule uses DefaultSchedule.
func (s *Sweeper) Register(schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.Sweep(s.ctx) }); err != nil {
		return fmt.Errorf("register sweep %q: %w", schedule, err)
	}
	return nil
}

// Start starts the scheduler.
func (s *Sweeper) Start() {
	s.cron.Start()
	slog.Info("Session sweeper started", "ttl", s.ttl)
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("Session sweeper stopped")
}

// Sweep expires every idle session once and returns how many were removed.
func (s *Sweeper) Sweep(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	ids, err := s.lister.ExpiredSessions(ctx, s.ttl)
	if err != nil {
		slog.Error("Sweeper failed to list expired sessions", "error", err)
		return 0
	}
	if len(ids) == 0 {
		return 0
	}

	slog.Info("Sweeper found expired sessions", "count", len(ids))
	removed := 0
	for _, id := range ids {
		ok, err := expireWithRetry(ctx, s.expirer, id, s.ttl)
		if err != nil {
			slog.Warn("Sweeper failed to expire session", "session_id", id, "error", err)
			continue
		}
		if ok {
			removed++
		}
	}
	slog.Info("Sweeper cleanup completed", "removed", removed)
	return removed
}

// expireWithRetry retries with exponential backoff while the database is
// busy.
func expireWithRetry(ctx context.Context, e Expirer, sessionID string, ttl time.Duration) (bool, error) {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		var removed bool
		removed, err = e.Expire(ctx, sessionID, ttl)
		if err == nil {
			return removed, nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("Sweeper: database locked, retrying", "session_id", sessionID, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(delay):
		}
	}
	return false, fmt.Errorf("expire session %s: %w", sessionID, err)
}
