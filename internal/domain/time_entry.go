package domain

import "time"

// TimeEntry represents a Clockify time entry stored locally.
// ProjectID is nil when the remote project is not known locally.
type TimeEntry struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	ProjectID       *string    `json:"project_id"`
	Description     string     `json:"description"`
	Start           *time.Time `json:"start"`
	End             *time.Time `json:"end"`
	Duration        string     `json:"duration"`         // ISO-8601 as returned by Clockify, e.g. PT1H30M
	DurationSeconds *int64     `json:"duration_seconds"` // derived from Duration when parseable
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TimeEntryRow is a time entry joined with the display names used by reports.
type TimeEntryRow struct {
	TimeEntry
	UserName      string  `json:"user_name"`
	UserEmail     string  `json:"user_email"`
	ProjectName   *string `json:"project_name"`
	Category      *string `json:"category"`
	WorkspaceID   string  `json:"workspace_id"`
	WorkspaceName string  `json:"workspace_name"`
}
