package usecase

import "time"

// Stage names one step of the pipeline.
type Stage string

const (
	StageWorkspaces  Stage = "workspaces"
	StageUsers       Stage = "users"
	StageProjects    Stage = "projects"
	StageTimeEntries Stage = "time-entries"
	StageReport      Stage = "report"
)

// UnitFailure is a workspace (or a user within one) whose records were
// skipped because a remote call or a store write failed.
type UnitFailure struct {
	Workspace string `json:"workspace"`
	User      string `json:"user,omitempty"`
	Error     string `json:"error"`
}

// StageResult summarises one stage. Dropped counts remote records that
// lacked a required field.
type StageResult struct {
	Stage   Stage         `json:"stage"`
	Fetched int           `json:"fetched"`
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Dropped int           `json:"dropped"`
	Failed  []UnitFailure `json:"failed,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// Synced is the number of rows written by the stage.
func (r StageResult) Synced() int { return r.Created + r.Updated }

func (r *StageResult) count(created bool) {
	if created {
		r.Created++
	} else {
		r.Updated++
	}
}

func (r *StageResult) fail(workspace, user string, err error) {
	r.Failed = append(r.Failed, UnitFailure{Workspace: workspace, User: user, Error: err.Error()})
}

// RunResult collects the stage results of one run.
type RunResult struct {
	Stages     []StageResult `json:"stages"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Status is "ok" when nothing was skipped, "partial" when units were
// skipped, and "error" when a whole stage failed.
func (r RunResult) Status() string {
	status := "ok"
	for _, s := range r.Stages {
		if s.Error != "" {
			return "error"
		}
		if len(s.Failed) > 0 {
			status = "partial"
		}
	}
	return status
}

// Stage returns the result for the named stage, if it ran.
func (r RunResult) Stage(name Stage) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return StageResult{}, false
}
