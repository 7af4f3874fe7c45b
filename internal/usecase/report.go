package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/sosodev/duration"

	"clockify-sync/internal/domain"
)

const (
	// DefaultReportWindow is how far back the detailed report reaches.
	DefaultReportWindow   = 4 * 7 * 24 * time.Hour
	DefaultReportPageSize = 1000
	DefaultReportMaxPages = 100

	unknownProjectName = "Unknown"
)

// SyncDetailedReport ingests each workspace's detailed report over the
// trailing window. Users and projects referenced by report rows are created
// as stubs when absent and are never overwritten.
func (uc *SyncUseCase) SyncDetailedReport(ctx context.Context, window time.Duration) (StageResult, error) {
	res := StageResult{Stage: StageReport}
	if err := uc.check(); err != nil {
		return res, err
	}
	if window <= 0 {
		window = DefaultReportWindow
	}
	workspaces, err := uc.requireWorkspaces(ctx)
	if err != nil {
		return res, err
	}

	end := uc.now()
	start := end.Add(-window)
	pageSize := uc.ReportPageSize
	if pageSize <= 0 {
		pageSize = DefaultReportPageSize
	}
	maxPages := uc.ReportMaxPages
	if maxPages <= 0 {
		maxPages = DefaultReportMaxPages
	}
	uc.Log.Info("syncing detailed report", slog.Time("start", start), slog.Time("end", end), slog.Int("workspaces", len(workspaces)))

	projects := newProjectResolver(uc.Store)
	for _, ws := range workspaces {
		seen := 0
		for page := 1; page <= maxPages; page++ {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			report, err := uc.Clockify.GetDetailedReport(ctx, ws.ID, start, end, page, pageSize)
			if err != nil {
				res.fail(ws.ID, "", err)
				uc.logFailure(res.Stage, ws.ID, "", err)
				break
			}
			res.Fetched += len(report.Entries)
			seen += len(report.Entries)
			if err := uc.ingestReport(ctx, ws.ID, report.Entries, projects, &res); err != nil {
				res.fail(ws.ID, "", err)
				uc.logFailure(res.Stage, ws.ID, "", err)
				break
			}
			if len(report.Entries) < pageSize || (report.TotalCount > 0 && seen >= report.TotalCount) {
				break
			}
			if page == maxPages {
				uc.Log.Warn("detailed report page cap reached", slog.String("workspace", ws.ID), slog.Int("pages", maxPages))
			}
		}
	}
	uc.logStage(res)
	return res, nil
}

func (uc *SyncUseCase) ingestReport(ctx context.Context, workspaceID string, entries []domain.ReportEntry, projects *projectResolver, res *StageResult) error {
	for _, e := range entries {
		if e.ID == "" || e.UserID == "" {
			res.Dropped++
			uc.Log.Debug("dropping report entry without id or user", slog.String("workspace", workspaceID), slog.String("entry", e.ID))
			continue
		}
		if _, _, err := uc.Store.GetOrCreateUser(ctx, domain.User{
			ID:          e.UserID,
			Name:        e.UserName,
			Email:       e.UserEmail,
			WorkspaceID: workspaceID,
		}); err != nil {
			return err
		}

		var projectID *string
		if e.ProjectID != "" {
			name := e.ProjectName
			if name == "" {
				name = unknownProjectName
			}
			if !projects.seen(e.ProjectID) {
				if _, _, err := uc.Store.GetOrCreateProject(ctx, domain.Project{
					ID:          e.ProjectID,
					Name:        name,
					WorkspaceID: workspaceID,
					Category:    uc.classifier().Classify(name),
				}); err != nil {
					return err
				}
				projects.remember(e.ProjectID)
			}
			id := e.ProjectID
			projectID = &id
		}

		secs := e.DurationSeconds
		_, created, err := uc.Store.UpsertTimeEntry(ctx, domain.TimeEntry{
			ID:              e.ID,
			UserID:          e.UserID,
			ProjectID:       projectID,
			Description:     e.Description,
			Start:           parseTimestamp(e.Start),
			End:             parseTimestamp(e.End),
			Duration:        duration.Format(time.Duration(secs) * time.Second),
			DurationSeconds: &secs,
			UpdatedAt:       uc.now(),
		})
		if err != nil {
			return err
		}
		res.count(created)
	}
	return nil
}
