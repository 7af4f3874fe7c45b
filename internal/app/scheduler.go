package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"clockify-sync/internal/domain"
)

// Scheduler runs the full pipeline on a cron schedule.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// NewScheduler registers a sync run on schedule (standard 5-field cron syntax or
// descriptors like @daily) evaluated in the tz location. Each run syncs the
// lookback window ending at the trigger time.
func (a *App) NewScheduler(ctx context.Context, schedule, tz string) (*Scheduler, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_TZ %q: %w", tz, err)
	}
	logger := cronLogger{log: a.log}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	_, err = c.AddFunc(schedule, func() { a.scheduledRun(ctx) })
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_SCHEDULE %q: %w", schedule, err)
	}
	return &Scheduler{cron: c, log: a.log}, nil
}

func (a *App) scheduledRun(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	from, to := a.DefaultWindow()
	res, err := a.RunOnce(ctx, from, to)
	switch {
	case errors.Is(err, domain.ErrSyncRunning):
		a.log.Warn("scheduled sync skipped, another run holds the lock")
	case err != nil:
		a.log.Error("scheduled sync failed", slog.String("error", err.Error()))
	default:
		a.log.Info("scheduled sync completed", slog.String("status", res.Status()), slog.Time("from", from), slog.Time("to", to))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", slog.Int("jobs", len(s.cron.Entries())))
}

// Stop stops triggering runs and waits for a running one to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append([]any{slog.String("error", err.Error())}, keysAndValues...)...)
}
