package clockify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"clockify-sync/internal/domain"
)

const (
	DefaultBaseURL  = "https://api.clockify.me/api/v1"
	DefaultTimeout  = 10 * time.Second
	DefaultPageSize = 200
	DefaultMaxPages = 50
)

// Options tunes the client. Zero values fall back to the defaults above.
type Options struct {
	BaseURL    string
	ReportsURL string // defaults to BaseURL
	Timeout    time.Duration
	PageSize   int
	MaxPages   int
	RateLimit  float64 // requests per second, <= 0 disables pacing
}

// Client implements ports.ClockifyClient using the Clockify REST API v1.
type Client struct {
	baseURL    string
	reportsURL string
	apiKey     string
	http       *http.Client
	limiter    *rate.Limiter
	pageSize   int
	maxPages   int
	log        *slog.Logger
}

func NewClient(apiKey string, opts Options, log *slog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.ReportsURL == "" {
		opts.ReportsURL = opts.BaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), int(opts.RateLimit)+1)
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		reportsURL: strings.TrimRight(opts.ReportsURL, "/"),
		apiKey:     apiKey,
		http:       &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
		pageSize:   opts.PageSize,
		maxPages:   opts.MaxPages,
		log:        log,
	}
}

// ListWorkspaces fetches all workspaces visible to the API key.
// GET /workspaces
func (c *Client) ListWorkspaces(ctx context.Context) ([]domain.RemoteWorkspace, error) {
	var raw []rawWorkspace
	if err := c.getJSON(ctx, "list workspaces", "/workspaces", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.RemoteWorkspace, 0, len(raw))
	for _, w := range raw {
		out = append(out, domain.RemoteWorkspace{ID: w.ID, Name: w.Name})
	}
	return out, nil
}

// ListUsers fetches every member of a workspace.
// GET /workspaces/{workspaceId}/users
func (c *Client) ListUsers(ctx context.Context, workspaceID string) ([]domain.RemoteUser, error) {
	p := fmt.Sprintf("/workspaces/%s/users", url.PathEscape(workspaceID))
	raw, err := getPaged[rawUser](ctx, c, "list users", p, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RemoteUser, 0, len(raw))
	for _, u := range raw {
		out = append(out, domain.RemoteUser{ID: u.ID, Name: u.Name, Email: u.Email})
	}
	return out, nil
}

// ListProjects fetches every project of a workspace.
// GET /workspaces/{workspaceId}/projects
func (c *Client) ListProjects(ctx context.Context, workspaceID string) ([]domain.RemoteProject, error) {
	p := fmt.Sprintf("/workspaces/%s/projects", url.PathEscape(workspaceID))
	raw, err := getPaged[rawProject](ctx, c, "list projects", p, nil)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RemoteProject, 0, len(raw))
	for _, pr := range raw {
		out = append(out, domain.RemoteProject{ID: pr.ID, Name: pr.Name})
	}
	return out, nil
}

// ListTimeEntries fetches a user's entries in [start, end]. Zero bounds are
// not sent, leaving the window to the API's defaults.
// GET /workspaces/{workspaceId}/user/{userId}/time-entries?start=...&end=...
func (c *Client) ListTimeEntries(ctx context.Context, workspaceID, userID string, start, end time.Time) ([]domain.RemoteTimeEntry, error) {
	p := fmt.Sprintf("/workspaces/%s/user/%s/time-entries", url.PathEscape(workspaceID), url.PathEscape(userID))
	q := url.Values{}
	if !start.IsZero() {
		q.Set("start", start.UTC().Format(time.RFC3339))
	}
	if !end.IsZero() {
		q.Set("end", end.UTC().Format(time.RFC3339))
	}
	raw, err := getPaged[rawTimeEntry](ctx, c, "list time entries", p, q)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RemoteTimeEntry, 0, len(raw))
	for _, e := range raw {
		out = append(out, domain.RemoteTimeEntry{
			ID:          e.ID,
			Description: e.Description,
			ProjectID:   e.ProjectID,
			TimeInterval: domain.TimeInterval{
				Start:    e.TimeInterval.Start,
				End:      e.TimeInterval.End,
				Duration: e.TimeInterval.Duration,
			},
		})
	}
	return out, nil
}

// GetDetailedReport fetches one page of the workspace's detailed report.
// POST /workspaces/{workspaceId}/reports/detailed
func (c *Client) GetDetailedReport(ctx context.Context, workspaceID string, start, end time.Time, page, pageSize int) (domain.DetailedReport, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 1000
	}
	payload := detailedReportRequest{
		DateRangeStart: start.UTC().Format(time.RFC3339),
		DateRangeEnd:   end.UTC().Format(time.RFC3339),
		ExportType:     "JSON",
	}
	payload.DetailedFilter.Page = page
	payload.DetailedFilter.PageSize = pageSize

	body, err := json.Marshal(payload)
	if err != nil {
		return domain.DetailedReport{}, err
	}
	u := c.reportsURL + fmt.Sprintf("/workspaces/%s/reports/detailed", url.PathEscape(workspaceID))
	var raw rawDetailedReport
	if err := c.do(ctx, "detailed report", http.MethodPost, u, bytes.NewReader(body), &raw); err != nil {
		return domain.DetailedReport{}, err
	}

	out := domain.DetailedReport{Entries: make([]domain.ReportEntry, 0, len(raw.TimeEntries))}
	for _, t := range raw.Totals {
		out.TotalCount += t.EntriesCount
	}
	for _, e := range raw.TimeEntries {
		out.Entries = append(out.Entries, domain.ReportEntry{
			ID:              e.ID,
			Description:     e.Description,
			UserID:          e.UserID,
			UserName:        e.UserName,
			UserEmail:       e.UserEmail,
			ProjectID:       e.ProjectID,
			ProjectName:     e.ProjectName,
			Start:           e.TimeInterval.Start,
			End:             e.TimeInterval.End,
			DurationSeconds: e.TimeInterval.Duration,
		})
	}
	return out, nil
}

// getPaged walks page/page-size until a short page or the page cap.
func getPaged[T any](ctx context.Context, c *Client, op, path string, q url.Values) ([]T, error) {
	var all []T
	for page := 1; page <= c.maxPages; page++ {
		pq := url.Values{}
		for k, v := range q {
			pq[k] = v
		}
		pq.Set("page", strconv.Itoa(page))
		pq.Set("page-size", strconv.Itoa(c.pageSize))

		var batch []T
		if err := c.getJSON(ctx, op, path, pq, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < c.pageSize {
			return all, nil
		}
	}
	c.log.Warn("clockify page cap reached", slog.String("op", op), slog.String("path", path), slog.Int("pages", c.maxPages))
	return all, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return c.do(ctx, op, http.MethodGet, u, nil, out)
}

func (c *Client) do(ctx context.Context, op, method, u string, body io.Reader, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &domain.RemoteUnavailableError{Op: op, Err: err}
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("clockify request", slog.String("method", method), slog.String("url", u))
	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.RemoteUnavailableError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.RemoteError{Op: op, StatusCode: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("clockify %s: decode response: %w", op, err)
	}
	return nil
}

// Raw types mirror the JSON returned by Clockify.

type rawWorkspace struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rawUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type rawProject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type rawTimeEntry struct {
	ID           string `json:"id"`
	Description  string `json:"description"`
	ProjectID    string `json:"projectId"`
	TimeInterval struct {
		Start    string `json:"start"`
		End      string `json:"end"`
		Duration string `json:"duration"`
	} `json:"timeInterval"`
}

type detailedReportRequest struct {
	DateRangeStart string `json:"dateRangeStart"`
	DateRangeEnd   string `json:"dateRangeEnd"`
	DetailedFilter struct {
		Page     int `json:"page"`
		PageSize int `json:"pageSize"`
	} `json:"detailedFilter"`
	ExportType string `json:"exportType"`
}

type rawDetailedReport struct {
	Totals []struct {
		EntriesCount int `json:"entriesCount"`
	} `json:"totals"`
	TimeEntries []struct {
		ID           string `json:"_id"`
		Description  string `json:"description"`
		UserID       string `json:"userId"`
		UserName     string `json:"userName"`
		UserEmail    string `json:"userEmail"`
		ProjectID    string `json:"projectId"`
		ProjectName  string `json:"projectName"`
		TimeInterval struct {
			Start    string `json:"start"`
			End      string `json:"end"`
			Duration int64  `json:"duration"`
		} `json:"timeInterval"`
	} `json:"timeentries"`
}
