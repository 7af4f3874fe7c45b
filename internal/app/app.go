package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"clockify-sync/internal/adapter/clockify"
	"clockify-sync/internal/adapter/sqlstore"
	"clockify-sync/internal/classify"
	"clockify-sync/internal/config"
	"clockify-sync/internal/domain"
	"clockify-sync/internal/migrate"
	"clockify-sync/internal/ports"
	"clockify-sync/internal/runlock"
	"clockify-sync/internal/usecase"
)

const lockKey = "sync"

// Store is what the app needs from persistence: sync writes plus reporting reads.
type Store interface {
	ports.Store
	ports.Reporter
}

// App wires adapters and use cases.
type App struct {
	log          *slog.Logger
	uc           *usecase.SyncUseCase
	store        Store
	lock         ports.RunLock
	lookback     time.Duration
	reportWindow time.Duration
	closers      []io.Closer
}

func New(ctx context.Context, log *slog.Logger, cfg config.Config) (*App, error) {
	store, err := sqlstore.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// Run migrations before the store is used
	if err := migrate.Run(ctx, store.DB(), log); err != nil {
		_ = store.Close()
		return nil, err
	}
	classifier, err := loadClassifier(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	client := clockify.NewClient(cfg.Clockify.APIKey, clockify.Options{
		BaseURL:    cfg.Clockify.BaseURL,
		ReportsURL: cfg.Clockify.ReportsURL,
		Timeout:    cfg.Clockify.Timeout,
		PageSize:   cfg.Clockify.PageSize,
		MaxPages:   cfg.Clockify.MaxPages,
		RateLimit:  cfg.Clockify.RateLimit,
	}, log)

	a := &App{
		log:          log,
		store:        store,
		lookback:     cfg.Sync.Lookback,
		reportWindow: cfg.Clockify.ReportWindow,
		closers:      []io.Closer{store},
		uc: &usecase.SyncUseCase{
			Log:            log,
			Clockify:       client,
			Store:          store,
			Classifier:     classifier,
			APIKey:         cfg.Clockify.APIKey,
			ReportPageSize: cfg.Clockify.ReportPageSize,
			ReportMaxPages: cfg.Clockify.ReportMaxPages,
		},
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			_ = a.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		a.lock = runlock.NewRedis(rdb, cfg.Sync.LockTTL, log)
		a.closers = append(a.closers, rdb)
		log.Info("using redis run lock", slog.String("addr", cfg.Redis.Addr))
	} else {
		a.lock = runlock.NewLocal()
	}
	return a, nil
}

// Migrate applies pending migrations and exits without syncing.
func Migrate(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	store, err := sqlstore.Open(ctx, cfg.DB.Driver, cfg.DB.DSN, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()
	return migrate.Run(ctx, store.DB(), log)
}

func loadClassifier(cfg config.Config) (*classify.Classifier, error) {
	switch {
	case cfg.Sync.CategoryRulesFile != "":
		return classify.LoadFile(cfg.Sync.CategoryRulesFile)
	case cfg.Sync.CategoryRules != "":
		return classify.Parse(cfg.Sync.CategoryRules, domain.CategoryProduction)
	}
	return classify.Default(), nil
}

// DefaultWindow is the sync window used when the caller gives none.
func (a *App) DefaultWindow() (from, to time.Time) {
	to = time.Now().UTC()
	return to.Add(-a.lookback), to
}

// RunOnce runs the whole pipeline. It fails with domain.ErrSyncRunning when
// another run holds the lock.
func (a *App) RunOnce(ctx context.Context, from, to time.Time) (usecase.RunResult, error) {
	release, err := a.acquire(ctx)
	if err != nil {
		return usecase.RunResult{}, err
	}
	defer release()
	return a.uc.Run(ctx, from, to)
}

// RunStage runs a single stage under the run lock. from and to apply to the
// time-entry stage, window to the report stage.
func (a *App) RunStage(ctx context.Context, stage usecase.Stage, from, to time.Time, window time.Duration) (usecase.StageResult, error) {
	release, err := a.acquire(ctx)
	if err != nil {
		return usecase.StageResult{Stage: stage}, err
	}
	defer release()

	switch stage {
	case usecase.StageWorkspaces:
		return a.uc.SyncWorkspaces(ctx)
	case usecase.StageUsers:
		return a.uc.SyncUsers(ctx)
	case usecase.StageProjects:
		return a.uc.SyncProjects(ctx)
	case usecase.StageTimeEntries:
		return a.uc.SyncTimeEntries(ctx, from, to)
	case usecase.StageReport:
		if window <= 0 {
			window = a.reportWindow
		}
		return a.uc.SyncDetailedReport(ctx, window)
	}
	return usecase.StageResult{Stage: stage}, fmt.Errorf("unknown stage %q", stage)
}

func (a *App) acquire(ctx context.Context) (func(), error) {
	release, ok, err := a.lock.TryAcquire(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSyncRunning
	}
	return release, nil
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}
