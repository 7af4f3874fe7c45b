package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clockify-sync/internal/adapter/sqlstore"
	"clockify-sync/internal/classify"
	"clockify-sync/internal/domain"
	"clockify-sync/internal/migrate"
	"clockify-sync/internal/runlock"
	"clockify-sync/internal/usecase"
)

type fakeClockify struct{}

func (fakeClockify) ListWorkspaces(ctx context.Context) ([]domain.RemoteWorkspace, error) {
	return []domain.RemoteWorkspace{{ID: "w1", Name: "Studio A"}}, nil
}

func (fakeClockify) ListUsers(ctx context.Context, workspaceID string) ([]domain.RemoteUser, error) {
	return []domain.RemoteUser{{ID: "u1", Name: "Ann", Email: "ann@x"}}, nil
}

func (fakeClockify) ListProjects(ctx context.Context, workspaceID string) ([]domain.RemoteProject, error) {
	return []domain.RemoteProject{{ID: "p1", Name: "Holiday Clip"}, {ID: "p2", Name: "Set Build"}}, nil
}

func (fakeClockify) ListTimeEntries(ctx context.Context, workspaceID, userID string, start, end time.Time) ([]domain.RemoteTimeEntry, error) {
	return []domain.RemoteTimeEntry{{
		ID:           "t1",
		Description:  "cutting reel",
		ProjectID:    "p1",
		TimeInterval: domain.TimeInterval{Start: "2024-01-01T09:00:00Z", End: "2024-01-01T10:00:00Z", Duration: "PT1H"},
	}}, nil
}

func (fakeClockify) GetDetailedReport(ctx context.Context, workspaceID string, start, end time.Time, page, pageSize int) (domain.DetailedReport, error) {
	return domain.DetailedReport{Entries: []domain.ReportEntry{{ID: "r1", UserID: "u1", ProjectID: "p3", DurationSeconds: 60}}, TotalCount: 1}, nil
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := sqlstore.Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "app.db"), log)
	require.NoError(t, err)
	require.NoError(t, migrate.Run(ctx, st.DB(), log))
	a := &App{
		log:          log,
		store:        st,
		lock:         runlock.NewLocal(),
		lookback:     24 * time.Hour,
		reportWindow: 28 * 24 * time.Hour,
		closers:      []io.Closer{st},
		uc: &usecase.SyncUseCase{
			Log:        log,
			Clockify:   fakeClockify{},
			Store:      st,
			Classifier: classify.Default(),
			APIKey:     "key",
		},
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var body map[string]any
	if rr.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	m.Run()
}

func TestHealthz(t *testing.T) {
	rr, _ := do(t, newTestApp(t).Router(nil), http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestSync_RunsPipeline(t *testing.T) {
	a := newTestApp(t)
	rr, body := do(t, a.Router(nil), http.MethodPost, "/sync?from=2024-01-01&to=2024-01-01")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2024-01-01T00:00:00Z", body["from"])
	assert.Equal(t, "2024-01-02T00:00:00Z", body["to"])

	n, err := a.store.(*sqlstore.Store).Count(context.Background(), sqlstore.TableTimeEntries)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSync_ConflictWhileRunning(t *testing.T) {
	a := newTestApp(t)
	release, ok, err := a.lock.TryAcquire(context.Background(), lockKey)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	rr, body := do(t, a.Router(nil), http.MethodGet, "/sync")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "sync already running", body["error"])
}

func TestSync_MissingAPIKey(t *testing.T) {
	a := newTestApp(t)
	a.uc.APIKey = ""
	rr, body := do(t, a.Router(nil), http.MethodPost, "/sync")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "configuration error", body["error"])
	assert.Contains(t, body["detail"], "CLOCKIFY_API_KEY")
}

func TestStage_UsersWithoutWorkspaces(t *testing.T) {
	rr, body := do(t, newTestApp(t).Router(nil), http.MethodPost, "/sync/users")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "no workspaces", body["error"])
}

func TestStage_ReturnsRows(t *testing.T) {
	a := newTestApp(t)
	h := a.Router(nil)
	rr, body := do(t, h, http.MethodPost, "/sync/workspaces")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", body["status"])
	rows, ok := body["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
	assert.Equal(t, "Studio A", rows[0].(map[string]any)["name"])

	rr, _ = do(t, h, http.MethodPost, "/sync/report?window=bad")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = do(t, h, http.MethodPost, "/sync/report?window=24h")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	rows, ok = body["rows"].([]any)
	require.True(t, ok)
	assert.Len(t, rows, 1)

	rr, _ = do(t, h, http.MethodPost, "/sync/everything")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestReporting(t *testing.T) {
	a := newTestApp(t)
	h := a.Router(nil)
	_, err := a.RunOnce(context.Background(), time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	rr, body := do(t, h, http.MethodGet, "/api/v1/projects?workspace=w1&category=clipping")
	require.Equal(t, http.StatusOK, rr.Code)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].(map[string]any)["id"])

	rr, body = do(t, h, http.MethodGet, "/api/v1/time-entries?q=REEL&from=2024-01-01&to=2024-01-01")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, body["total"])
	entry := body["items"].([]any)[0].(map[string]any)
	assert.Equal(t, "Ann", entry["user_name"])
	assert.Equal(t, "Holiday Clip", entry["project_name"])

	rr, _ = do(t, h, http.MethodGet, "/api/v1/time-entries?page=0")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	rr, _ = do(t, h, http.MethodGet, "/api/v1/time-entries?from=yesterday")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, body = do(t, h, http.MethodGet, "/api/v1/users")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, body["items"], 1)
}

func TestCORS(t *testing.T) {
	h := newTestApp(t).Router([]string{"http://dash.test"})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://dash.test")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "http://dash.test", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseWindow(t *testing.T) {
	def := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	got, err := ParseStart("2024-03-05", def)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseEnd("2024-03-05", def)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseEnd("", def)
	require.NoError(t, err)
	assert.Equal(t, def, got)

	_, err = ParseStart("05/03/2024", def)
	assert.Error(t, err)
}

func TestScheduler(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	_, err := a.NewScheduler(ctx, "not a schedule", "UTC")
	assert.Error(t, err)
	_, err = a.NewScheduler(ctx, "@daily", "Nowhere/City")
	assert.Error(t, err)

	s, err := a.NewScheduler(ctx, "0 0 * * *", "Europe/Berlin")
	require.NoError(t, err)
	s.Start()
	s.Stop()

	a.scheduledRun(ctx)
	n, err := a.store.(*sqlstore.Store).Count(ctx, sqlstore.TableWorkspaces)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
