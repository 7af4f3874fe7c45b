package domain

// Shapes returned by the remote time-tracking API. Values are kept as the
// API sends them; parsing and validation happen in the sync use case.

type RemoteWorkspace struct {
	ID   string
	Name string
}

type RemoteUser struct {
	ID    string
	Name  string
	Email string
}

type RemoteProject struct {
	ID   string
	Name string
}

// TimeInterval mirrors Clockify's timeInterval object. Start and End are
// RFC3339 strings and may be empty for running or malformed entries.
type TimeInterval struct {
	Start    string
	End      string
	Duration string
}

type RemoteTimeEntry struct {
	ID           string
	Description  string
	ProjectID    string
	TimeInterval TimeInterval
}

// ReportEntry is one row of the detailed report, with the user and project
// display names denormalized into it.
type ReportEntry struct {
	ID              string
	Description     string
	UserID          string
	UserName        string
	UserEmail       string
	ProjectID       string
	ProjectName     string
	Start           string
	End             string
	DurationSeconds int64
}

// DetailedReport is one page of the detailed report.
type DetailedReport struct {
	Entries    []ReportEntry
	TotalCount int
}
