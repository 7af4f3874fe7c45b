package ports

import (
	"context"
	"time"

	"clockify-sync/internal/domain"
)

// ClockifyClient defines the read operations used against the Clockify API.
type ClockifyClient interface {
	ListWorkspaces(ctx context.Context) ([]domain.RemoteWorkspace, error)
	ListUsers(ctx context.Context, workspaceID string) ([]domain.RemoteUser, error)
	ListProjects(ctx context.Context, workspaceID string) ([]domain.RemoteProject, error)
	ListTimeEntries(ctx context.Context, workspaceID, userID string, start, end time.Time) ([]domain.RemoteTimeEntry, error)
	GetDetailedReport(ctx context.Context, workspaceID string, start, end time.Time, page, pageSize int) (domain.DetailedReport, error)
}

// Store persists synced rows keyed by their remote identifiers.
// Every Upsert* returns the stored row and whether it was newly created.
type Store interface {
	UpsertWorkspace(ctx context.Context, w domain.Workspace) (domain.Workspace, bool, error)
	UpsertUser(ctx context.Context, u domain.User) (domain.User, bool, error)
	UpsertProject(ctx context.Context, p domain.Project) (domain.Project, bool, error)
	UpsertTimeEntry(ctx context.Context, e domain.TimeEntry) (domain.TimeEntry, bool, error)

	// GetOrCreate* insert the row only when its key is absent and never
	// overwrite an existing row.
	GetOrCreateUser(ctx context.Context, u domain.User) (domain.User, bool, error)
	GetOrCreateProject(ctx context.Context, p domain.Project) (domain.Project, bool, error)

	ListWorkspaces(ctx context.Context) ([]domain.Workspace, error)
	ListUsers(ctx context.Context, workspaceID string) ([]domain.User, error)
	ListProjects(ctx context.Context, workspaceID string) ([]domain.Project, error)
	ProjectExists(ctx context.Context, id string) (bool, error)
}

// TimeEntryFilter narrows the reporting query. Zero values mean "any".
type TimeEntryFilter struct {
	WorkspaceID string
	UserID      string
	ProjectID   string
	Category    string
	Search      string
	From        time.Time
	To          time.Time
	Page        int
	PageSize    int
}

// TimeEntryPage is one page of the reporting query.
type TimeEntryPage struct {
	Items    []domain.TimeEntryRow `json:"items"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// Reporter serves read-only reporting queries over synced rows.
type Reporter interface {
	QueryTimeEntries(ctx context.Context, f TimeEntryFilter) (TimeEntryPage, error)
}

// RunLock serializes sync runs. TryAcquire returns ok=false when another
// holder has the lock; release must be called once when ok is true.
type RunLock interface {
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}
