package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clockify-sync/internal/classify"
	"clockify-sync/internal/domain"
	"clockify-sync/internal/ports"
)

// Categorizer derives a project's category from its name.
type Categorizer interface {
	Classify(name string) domain.Category
}

// SyncUseCase coordinates fetching from Clockify and upserting into the Store.
// Stages run sequentially; failures of one workspace or user are logged and
// recorded, and the stage continues with the next one.
type SyncUseCase struct {
	Log        *slog.Logger
	Clockify   ports.ClockifyClient
	Store      ports.Store
	Classifier Categorizer
	APIKey     string

	ReportPageSize int
	ReportMaxPages int

	// Now stamps last-update times; defaults to time.Now.
	Now func() time.Time
}

// Run executes the workspace, user, project and time-entry stages in order.
// Only configuration problems and cancellation are returned as errors;
// stage failures are reported in the result.
func (uc *SyncUseCase) Run(ctx context.Context, from, to time.Time) (RunResult, error) {
	res := RunResult{StartedAt: uc.now()}
	if err := uc.check(); err != nil {
		return res, err
	}
	uc.Log.Info("starting sync run", slog.Time("from", from), slog.Time("to", to))

	stages := []func(context.Context) (StageResult, error){
		uc.SyncWorkspaces,
		uc.SyncUsers,
		uc.SyncProjects,
		func(ctx context.Context) (StageResult, error) { return uc.SyncTimeEntries(ctx, from, to) },
	}
	for _, stage := range stages {
		sr, err := stage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				res.Stages = append(res.Stages, sr)
				res.FinishedAt = uc.now()
				return res, ctx.Err()
			}
			sr.Error = err.Error()
			uc.Log.Error("sync stage failed", slog.String("stage", string(sr.Stage)), slog.String("error", err.Error()))
		}
		res.Stages = append(res.Stages, sr)
	}
	res.FinishedAt = uc.now()
	uc.Log.Info("sync run completed", slog.String("status", res.Status()), slog.Duration("dur", res.FinishedAt.Sub(res.StartedAt)))
	return res, nil
}

// SyncWorkspaces fetches all workspaces and upserts those with an id and a name.
func (uc *SyncUseCase) SyncWorkspaces(ctx context.Context) (StageResult, error) {
	res := StageResult{Stage: StageWorkspaces}
	if err := uc.check(); err != nil {
		return res, err
	}
	remote, err := uc.Clockify.ListWorkspaces(ctx)
	if err != nil {
		uc.logFailure(res.Stage, "", "", err)
		return res, fmt.Errorf("list workspaces: %w", err)
	}
	res.Fetched = len(remote)
	for _, w := range remote {
		if w.ID == "" || w.Name == "" {
			res.Dropped++
			uc.Log.Debug("dropping workspace without id or name", slog.String("workspace", w.ID))
			continue
		}
		_, created, err := uc.Store.UpsertWorkspace(ctx, domain.Workspace{ID: w.ID, Name: w.Name})
		if err != nil {
			res.fail(w.ID, "", err)
			uc.logFailure(res.Stage, w.ID, "", err)
			continue
		}
		res.count(created)
	}
	uc.logStage(res)
	return res, nil
}

// SyncUsers fetches the users of every local workspace. It requires at
// least one workspace and writes nothing otherwise.
func (uc *SyncUseCase) SyncUsers(ctx context.Context) (StageResult, error) {
	res := StageResult{Stage: StageUsers}
	if err := uc.check(); err != nil {
		return res, err
	}
	workspaces, err := uc.requireWorkspaces(ctx)
	if err != nil {
		return res, err
	}
	for _, ws := range workspaces {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		users, err := uc.Clockify.ListUsers(ctx, ws.ID)
		if err != nil {
			res.fail(ws.ID, "", err)
			uc.logFailure(res.Stage, ws.ID, "", err)
			continue
		}
		res.Fetched += len(users)
		for _, u := range users {
			if u.ID == "" || u.Email == "" {
				res.Dropped++
				uc.Log.Debug("dropping user without id or email", slog.String("workspace", ws.ID), slog.String("user", u.ID))
				continue
			}
			_, created, err := uc.Store.UpsertUser(ctx, domain.User{ID: u.ID, Name: u.Name, Email: u.Email, WorkspaceID: ws.ID})
			if err != nil {
				res.fail(ws.ID, u.ID, err)
				uc.logFailure(res.Stage, ws.ID, u.ID, err)
				break
			}
			res.count(created)
		}
	}
	uc.logStage(res)
	return res, nil
}

// SyncProjects fetches the projects of every local workspace and assigns
// each a category from its name.
func (uc *SyncUseCase) SyncProjects(ctx context.Context) (StageResult, error) {
	res := StageResult{Stage: StageProjects}
	if err := uc.check(); err != nil {
		return res, err
	}
	workspaces, err := uc.Store.ListWorkspaces(ctx)
	if err != nil {
		return res, fmt.Errorf("list local workspaces: %w", err)
	}
	for _, ws := range workspaces {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		projects, err := uc.Clockify.ListProjects(ctx, ws.ID)
		if err != nil {
			res.fail(ws.ID, "", err)
			uc.logFailure(res.Stage, ws.ID, "", err)
			continue
		}
		res.Fetched += len(projects)
		for _, p := range projects {
			if p.ID == "" || p.Name == "" {
				res.Dropped++
				uc.Log.Debug("dropping project without id or name", slog.String("workspace", ws.ID), slog.String("project", p.ID))
				continue
			}
			_, created, err := uc.Store.UpsertProject(ctx, domain.Project{
				ID:          p.ID,
				Name:        p.Name,
				WorkspaceID: ws.ID,
				Category:    uc.classifier().Classify(p.Name),
			})
			if err != nil {
				res.fail(ws.ID, "", err)
				uc.logFailure(res.Stage, ws.ID, "", err)
				break
			}
			res.count(created)
		}
	}
	uc.logStage(res)
	return res, nil
}

// SyncTimeEntries fetches the entries of every local user in [from, to].
// An entry whose project is not stored locally keeps a null project.
func (uc *SyncUseCase) SyncTimeEntries(ctx context.Context, from, to time.Time) (StageResult, error) {
	res := StageResult{Stage: StageTimeEntries}
	if err := uc.check(); err != nil {
		return res, err
	}
	workspaces, err := uc.Store.ListWorkspaces(ctx)
	if err != nil {
		return res, fmt.Errorf("list local workspaces: %w", err)
	}
	projects := newProjectResolver(uc.Store)
	for _, ws := range workspaces {
		users, err := uc.Store.ListUsers(ctx, ws.ID)
		if err != nil {
			res.fail(ws.ID, "", err)
			uc.logFailure(res.Stage, ws.ID, "", err)
			continue
		}
		for _, u := range users {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			entries, err := uc.Clockify.ListTimeEntries(ctx, ws.ID, u.ID, from, to)
			if err != nil {
				res.fail(ws.ID, u.ID, err)
				uc.logFailure(res.Stage, ws.ID, u.ID, err)
				continue
			}
			res.Fetched += len(entries)
			for _, e := range entries {
				if e.ID == "" {
					res.Dropped++
					uc.Log.Debug("dropping time entry without id", slog.String("workspace", ws.ID), slog.String("user", u.ID))
					continue
				}
				projectID, err := projects.resolve(ctx, e.ProjectID)
				if err != nil {
					res.fail(ws.ID, u.ID, err)
					uc.logFailure(res.Stage, ws.ID, u.ID, err)
					break
				}
				_, created, err := uc.Store.UpsertTimeEntry(ctx, domain.TimeEntry{
					ID:              e.ID,
					UserID:          u.ID,
					ProjectID:       projectID,
					Description:     e.Description,
					Start:           parseTimestamp(e.TimeInterval.Start),
					End:             parseTimestamp(e.TimeInterval.End),
					Duration:        e.TimeInterval.Duration,
					DurationSeconds: durationSeconds(e.TimeInterval.Duration),
					UpdatedAt:       uc.now(),
				})
				if err != nil {
					res.fail(ws.ID, u.ID, err)
					uc.logFailure(res.Stage, ws.ID, u.ID, err)
					break
				}
				res.count(created)
			}
		}
	}
	uc.logStage(res)
	return res, nil
}

func (uc *SyncUseCase) check() error {
	if uc.Clockify == nil || uc.Store == nil || uc.Log == nil {
		return errors.New("usecase not initialized: missing dependencies")
	}
	if strings.TrimSpace(uc.APIKey) == "" {
		return &domain.ConfigError{Setting: "CLOCKIFY_API_KEY", Reason: "is not set"}
	}
	return nil
}

func (uc *SyncUseCase) requireWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	workspaces, err := uc.Store.ListWorkspaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("list local workspaces: %w", err)
	}
	if len(workspaces) == 0 {
		return nil, domain.ErrNoWorkspaces
	}
	return workspaces, nil
}

func (uc *SyncUseCase) classifier() Categorizer {
	if uc.Classifier == nil {
		uc.Classifier = classify.Default()
	}
	return uc.Classifier
}

func (uc *SyncUseCase) now() time.Time {
	if uc.Now != nil {
		return uc.Now().UTC()
	}
	return time.Now().UTC()
}

func (uc *SyncUseCase) logFailure(stage Stage, workspace, user string, err error) {
	attrs := []any{slog.String("stage", string(stage)), slog.String("error", err.Error())}
	if workspace != "" {
		attrs = append(attrs, slog.String("workspace", workspace))
	}
	if user != "" {
		attrs = append(attrs, slog.String("user", user))
	}
	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		attrs = append(attrs, slog.Int("status", remote.StatusCode), slog.String("body", remote.Body))
	}
	uc.Log.Error("sync unit skipped", attrs...)
}

func (uc *SyncUseCase) logStage(res StageResult) {
	uc.Log.Info("sync stage completed",
		slog.String("stage", string(res.Stage)),
		slog.Int("fetched", res.Fetched),
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("dropped", res.Dropped),
		slog.Int("failed", len(res.Failed)),
	)
}

// projectResolver maps a remote project id to a local one, caching lookups
// for the duration of a stage.
type projectResolver struct {
	store ports.Store
	known map[string]bool
}

func newProjectResolver(store ports.Store) *projectResolver {
	return &projectResolver{store: store, known: make(map[string]bool)}
}

func (r *projectResolver) resolve(ctx context.Context, id string) (*string, error) {
	if id == "" {
		return nil, nil
	}
	exists, ok := r.known[id]
	if !ok {
		var err error
		if exists, err = r.store.ProjectExists(ctx, id); err != nil {
			return nil, fmt.Errorf("resolve project %q: %w", id, err)
		}
		r.known[id] = exists
	}
	if !exists {
		return nil, nil
	}
	return &id, nil
}

// seen reports whether id is known to exist locally without a lookup.
func (r *projectResolver) seen(id string) bool {
	return r.known[id]
}

func (r *projectResolver) remember(id string) {
	r.known[id] = true
}
