package sqlstore

import (
	"context"
	"database/sql"
	"strings"

	"clockify-sync/internal/domain"
	"clockify-sync/internal/ports"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type reportRow struct {
	timeEntryRow
	UserName      string         `db:"user_name"`
	UserEmail     string         `db:"user_email"`
	ProjectName   sql.NullString `db:"project_name"`
	Category      sql.NullString `db:"category"`
	WorkspaceID   string         `db:"workspace_id"`
	WorkspaceName string         `db:"workspace_name"`
}

// QueryTimeEntries lists time entries joined with user, project and
// workspace names, most recently updated first.
func (s *Store) QueryTimeEntries(ctx context.Context, f ports.TimeEntryFilter) (ports.TimeEntryPage, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}

	from := ` FROM ` + TableTimeEntries + ` e
JOIN ` + TableUsers + ` u ON u.id = e.user_id
JOIN ` + TableWorkspaces + ` w ON w.id = u.workspace_id
LEFT JOIN ` + TableProjects + ` p ON p.id = e.project_id`

	var (
		where []string
		args  []any
	)
	if f.WorkspaceID != "" {
		where = append(where, "w.id = ?")
		args = append(args, f.WorkspaceID)
	}
	if f.UserID != "" {
		where = append(where, "e.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ProjectID != "" {
		where = append(where, "e.project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Category != "" {
		where = append(where, "p.category = ?")
		args = append(args, f.Category)
	}
	if f.Search != "" {
		where = append(where, "LOWER(e.description) LIKE ?")
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
	}
	if !f.From.IsZero() {
		where = append(where, "e.start_at >= ?")
		args = append(args, timeArg(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "e.start_at < ?")
		args = append(args, timeArg(f.To))
	}
	if len(where) > 0 {
		from += "\nWHERE " + strings.Join(where, " AND ")
	}

	page := ports.TimeEntryPage{Page: f.Page, PageSize: f.PageSize, Items: []domain.TimeEntryRow{}}
	if err := s.db.GetContext(ctx, &page.Total, s.db.Rebind("SELECT COUNT(*)"+from), args...); err != nil {
		return page, err
	}

	q := `SELECT e.id, e.user_id, e.project_id, e.description, e.start_at, e.end_at, e.duration, e.duration_seconds, e.updated_at,
  u.name AS user_name, u.email AS user_email, p.name AS project_name, p.category AS category,
  w.id AS workspace_id, w.name AS workspace_name` + from + `
ORDER BY e.updated_at DESC, e.id
LIMIT ? OFFSET ?`
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	var rows []reportRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return page, err
	}
	for _, r := range rows {
		item := domain.TimeEntryRow{
			TimeEntry:     r.timeEntryRow.toDomain(),
			UserName:      r.UserName,
			UserEmail:     r.UserEmail,
			WorkspaceID:   r.WorkspaceID,
			WorkspaceName: r.WorkspaceName,
		}
		if r.ProjectName.Valid {
			name := r.ProjectName.String
			item.ProjectName = &name
		}
		if r.Category.Valid {
			c := r.Category.String
			item.Category = &c
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}
