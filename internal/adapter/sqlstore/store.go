package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"clockify-sync/internal/domain"
)

const (
	TableWorkspaces  = "clockify_workspaces"
	TableUsers       = "clockify_users"
	TableProjects    = "clockify_projects"
	TableTimeEntries = "clockify_time_entries"
)

// Store implements ports.Store and ports.Reporter on top of MySQL,
// PostgreSQL or embedded SQLite.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	log     *slog.Logger
	now     func() time.Time
}

// Open connects to the database for the given driver (mysql, postgres or
// sqlite). For sqlite the DSN is a file path or a file: URI.
// Example MySQL DSN: user:pass@tcp(host:3306)/dbname?parseTime=true
func Open(ctx context.Context, driver, dsn string, log *slog.Logger) (*Store, error) {
	d, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if dsn == "" {
		return nil, fmt.Errorf("sqlstore: DSN is required for %s", d)
	}
	if d == SQLite && !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	db, err := sqlx.Open(string(d), dsn)
	if err != nil {
		return nil, err
	}
	if d == SQLite {
		// Single writer connection: serializes writes and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	c, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(c); err != nil {
		db.Close()
		return nil, err
	}
	if d == SQLite {
		for _, pragma := range []string{"PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON", "PRAGMA journal_mode=WAL"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("sqlstore: %s: %w", pragma, err)
			}
		}
	}
	return New(db, log), nil
}

// New wraps an existing connection. The dialect is taken from the driver name.
func New(db *sqlx.DB, log *slog.Logger) *Store {
	return &Store{db: db, dialect: Dialect(db.DriverName()), log: log, now: time.Now}
}

// DB exposes the underlying connection for migrations and tests.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// UpsertWorkspace inserts or overwrites a workspace by its remote id.
func (s *Store) UpsertWorkspace(ctx context.Context, w domain.Workspace) (domain.Workspace, bool, error) {
	now := timeArg(s.now())
	created, err := s.writeRow(ctx, "workspace", TableWorkspaces, w.ID, true,
		[]string{"id", "name", "created_at", "updated_at"},
		[]string{"name", "updated_at"},
		w.ID, w.Name, now, now)
	if err != nil {
		return domain.Workspace{}, false, err
	}
	got, err := s.getWorkspace(ctx, w.ID)
	return got, created, err
}

// UpsertUser inserts or overwrites a user. A user seen under a different
// workspace moves there.
func (s *Store) UpsertUser(ctx context.Context, u domain.User) (domain.User, bool, error) {
	return s.writeUser(ctx, u, true)
}

// GetOrCreateUser inserts the user only when its id is unknown.
func (s *Store) GetOrCreateUser(ctx context.Context, u domain.User) (domain.User, bool, error) {
	return s.writeUser(ctx, u, false)
}

func (s *Store) writeUser(ctx context.Context, u domain.User, overwrite bool) (domain.User, bool, error) {
	now := timeArg(s.now())
	created, err := s.writeRow(ctx, "user", TableUsers, u.ID, overwrite,
		[]string{"id", "name", "email", "workspace_id", "created_at", "updated_at"},
		[]string{"name", "email", "workspace_id", "updated_at"},
		u.ID, u.Name, u.Email, u.WorkspaceID, now, now)
	if err != nil {
		return domain.User{}, false, err
	}
	got, err := s.getUser(ctx, u.ID)
	return got, created, err
}

// UpsertProject inserts or overwrites a project by its remote id.
func (s *Store) UpsertProject(ctx context.Context, p domain.Project) (domain.Project, bool, error) {
	return s.writeProject(ctx, p, true)
}

// GetOrCreateProject inserts the project only when its id is unknown.
func (s *Store) GetOrCreateProject(ctx context.Context, p domain.Project) (domain.Project, bool, error) {
	return s.writeProject(ctx, p, false)
}

func (s *Store) writeProject(ctx context.Context, p domain.Project, overwrite bool) (domain.Project, bool, error) {
	now := timeArg(s.now())
	created, err := s.writeRow(ctx, "project", TableProjects, p.ID, overwrite,
		[]string{"id", "name", "workspace_id", "category", "created_at", "updated_at"},
		[]string{"name", "workspace_id", "category", "updated_at"},
		p.ID, p.Name, p.WorkspaceID, string(p.Category), now, now)
	if err != nil {
		return domain.Project{}, false, err
	}
	got, err := s.getProject(ctx, p.ID)
	return got, created, err
}

// UpsertTimeEntry inserts or overwrites a time entry. UpdatedAt is written
// as given; callers stamp it.
func (s *Store) UpsertTimeEntry(ctx context.Context, e domain.TimeEntry) (domain.TimeEntry, bool, error) {
	var project, seconds any
	if e.ProjectID != nil {
		project = *e.ProjectID
	}
	if e.DurationSeconds != nil {
		seconds = *e.DurationSeconds
	}
	updated := e.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	created, err := s.writeRow(ctx, "time entry", TableTimeEntries, e.ID, true,
		[]string{"id", "user_id", "project_id", "description", "start_at", "end_at", "duration", "duration_seconds", "updated_at"},
		[]string{"user_id", "project_id", "description", "start_at", "end_at", "duration", "duration_seconds", "updated_at"},
		e.ID, e.UserID, project, e.Description, nullableTime(e.Start), nullableTime(e.End), e.Duration, seconds, timeArg(updated))
	if err != nil {
		return domain.TimeEntry{}, false, err
	}
	got, err := s.getTimeEntry(ctx, e.ID)
	return got, created, err
}

// writeRow runs one upsert (or insert-if-absent) in its own transaction and
// reports whether the write inserted a new row. Uniqueness of id is what
// keeps concurrent writers from creating duplicates.
//
// The created flag comes from the write itself: RETURNING (xmax = 0) on
// Postgres upserts and the affected row count on MySQL, where an insert
// counts 1 and an update 2 or 0. SQLite serializes writers, so a count
// read inside the write transaction is exact there.
func (s *Store) writeRow(ctx context.Context, entity, table, id string, overwrite bool, cols, updateCols []string, args ...any) (created bool, err error) {
	if id == "" {
		return false, &domain.StoreWriteError{Entity: entity, ID: id, Err: errors.New("empty id")}
	}
	defer func() {
		if err != nil {
			err = &domain.StoreWriteError{Entity: entity, ID: id, Err: err}
		}
	}()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	q := insertIgnoreSQL(s.dialect, table, cols)
	if overwrite {
		q = upsertSQL(s.dialect, table, cols, updateCols)
	}
	switch {
	case s.dialect == SQLite:
		var existing int
		if err = tx.QueryRowxContext(ctx, s.db.Rebind("SELECT COUNT(*) FROM "+table+" WHERE id = ?"), id).Scan(&existing); err != nil {
			return false, err
		}
		if existing > 0 && !overwrite {
			return false, tx.Commit()
		}
		if _, err = tx.ExecContext(ctx, s.db.Rebind(q), args...); err != nil {
			return false, err
		}
		created = existing == 0
	case s.dialect == Postgres && overwrite:
		if err = tx.QueryRowxContext(ctx, s.db.Rebind(q+" RETURNING (xmax = 0)"), args...).Scan(&created); err != nil {
			return false, err
		}
	default:
		res, execErr := tx.ExecContext(ctx, s.db.Rebind(q), args...)
		if err = execErr; err != nil {
			return false, err
		}
		n, raErr := res.RowsAffected()
		if err = raErr; err != nil {
			return false, err
		}
		created = n == 1
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return created, nil
}

type workspaceRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	CreatedAt dbTime `db:"created_at"`
	UpdatedAt dbTime `db:"updated_at"`
}

func (r workspaceRow) toDomain() domain.Workspace {
	return domain.Workspace{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt.Time, UpdatedAt: r.UpdatedAt.Time}
}

type userRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Email       string `db:"email"`
	WorkspaceID string `db:"workspace_id"`
	CreatedAt   dbTime `db:"created_at"`
	UpdatedAt   dbTime `db:"updated_at"`
}

func (r userRow) toDomain() domain.User {
	return domain.User{ID: r.ID, Name: r.Name, Email: r.Email, WorkspaceID: r.WorkspaceID,
		CreatedAt: r.CreatedAt.Time, UpdatedAt: r.UpdatedAt.Time}
}

type projectRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	WorkspaceID string `db:"workspace_id"`
	Category    string `db:"category"`
	CreatedAt   dbTime `db:"created_at"`
	UpdatedAt   dbTime `db:"updated_at"`
}

func (r projectRow) toDomain() domain.Project {
	return domain.Project{ID: r.ID, Name: r.Name, WorkspaceID: r.WorkspaceID, Category: domain.Category(r.Category),
		CreatedAt: r.CreatedAt.Time, UpdatedAt: r.UpdatedAt.Time}
}

type timeEntryRow struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	ProjectID       sql.NullString `db:"project_id"`
	Description     sql.NullString `db:"description"`
	Start           dbTime         `db:"start_at"`
	End             dbTime         `db:"end_at"`
	Duration        sql.NullString `db:"duration"`
	DurationSeconds sql.NullInt64  `db:"duration_seconds"`
	UpdatedAt       dbTime         `db:"updated_at"`
}

func (r timeEntryRow) toDomain() domain.TimeEntry {
	e := domain.TimeEntry{
		ID:          r.ID,
		UserID:      r.UserID,
		Description: r.Description.String,
		Start:       r.Start.ptr(),
		End:         r.End.ptr(),
		Duration:    r.Duration.String,
		UpdatedAt:   r.UpdatedAt.Time,
	}
	if r.ProjectID.Valid {
		p := r.ProjectID.String
		e.ProjectID = &p
	}
	if r.DurationSeconds.Valid {
		sec := r.DurationSeconds.Int64
		e.DurationSeconds = &sec
	}
	return e
}

const (
	workspaceCols = "id, name, created_at, updated_at"
	userCols      = "id, name, email, workspace_id, created_at, updated_at"
	projectCols   = "id, name, workspace_id, category, created_at, updated_at"
	entryCols     = "id, user_id, project_id, description, start_at, end_at, duration, duration_seconds, updated_at"
)

func (s *Store) getWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	var r workspaceRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind("SELECT "+workspaceCols+" FROM "+TableWorkspaces+" WHERE id = ?"), id)
	return r.toDomain(), err
}

func (s *Store) getUser(ctx context.Context, id string) (domain.User, error) {
	var r userRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind("SELECT "+userCols+" FROM "+TableUsers+" WHERE id = ?"), id)
	return r.toDomain(), err
}

func (s *Store) getProject(ctx context.Context, id string) (domain.Project, error) {
	var r projectRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind("SELECT "+projectCols+" FROM "+TableProjects+" WHERE id = ?"), id)
	return r.toDomain(), err
}

func (s *Store) getTimeEntry(ctx context.Context, id string) (domain.TimeEntry, error) {
	var r timeEntryRow
	err := s.db.GetContext(ctx, &r, s.db.Rebind("SELECT "+entryCols+" FROM "+TableTimeEntries+" WHERE id = ?"), id)
	return r.toDomain(), err
}

// GetTimeEntry returns one time entry by its remote id.
func (s *Store) GetTimeEntry(ctx context.Context, id string) (domain.TimeEntry, error) {
	return s.getTimeEntry(ctx, id)
}

// ListWorkspaces returns all local workspaces ordered by id.
func (s *Store) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	var rows []workspaceRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+workspaceCols+" FROM "+TableWorkspaces+" ORDER BY id"); err != nil {
		return nil, err
	}
	out := make([]domain.Workspace, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ListUsers returns the users of a workspace, or all users when workspaceID is empty.
func (s *Store) ListUsers(ctx context.Context, workspaceID string) ([]domain.User, error) {
	q := "SELECT " + userCols + " FROM " + TableUsers
	var args []any
	if workspaceID != "" {
		q += " WHERE workspace_id = ?"
		args = append(args, workspaceID)
	}
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q+" ORDER BY id"), args...); err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ListProjects returns the projects of a workspace, or all projects when workspaceID is empty.
func (s *Store) ListProjects(ctx context.Context, workspaceID string) ([]domain.Project, error) {
	q := "SELECT " + projectCols + " FROM " + TableProjects
	var args []any
	if workspaceID != "" {
		q += " WHERE workspace_id = ?"
		args = append(args, workspaceID)
	}
	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q+" ORDER BY id"), args...); err != nil {
		return nil, err
	}
	out := make([]domain.Project, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ProjectExists reports whether a project with the remote id is stored.
func (s *Store) ProjectExists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM "+TableProjects+" WHERE id = ?"), id); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of rows in one of the store's tables.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	switch table {
	case TableWorkspaces, TableUsers, TableProjects, TableTimeEntries:
	default:
		return 0, fmt.Errorf("sqlstore: unknown table %q", table)
	}
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table)
	return n, err
}
