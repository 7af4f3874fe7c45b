package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"clockify-sync/internal/domain"
	"clockify-sync/internal/ports"
	"clockify-sync/internal/usecase"
)

// HTTPServer returns a configured http.Server that exposes endpoints to trigger
// syncs and to read synced data. Call ListenAndServe on the returned server in
// a goroutine and Shutdown it on exit.
func (a *App) HTTPServer(addr string, allowOrigins []string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: a.Router(allowOrigins), ReadHeaderTimeout: 10 * time.Second}
	a.log.Info("http server configured", slog.String("addr", addr))
	return srv
}

// Router builds the gin engine. An empty origin list disables CORS headers.
func (a *App) Router(allowOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), loggingMiddleware(a.log))
	if len(allowOrigins) > 0 {
		cc := cors.Config{
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:       12 * time.Hour,
		}
		if slices.Contains(allowOrigins, "*") {
			cc.AllowAllOrigins = true
		} else {
			cc.AllowOrigins = allowOrigins
		}
		r.Use(cors.New(cc))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// /sync?from=...&to=...&timeout=...
	// from/to accept RFC3339 or YYYY-MM-DD. If omitted, defaults to the configured lookback.
	r.GET("/sync", a.handleSync)
	r.POST("/sync", a.handleSync)
	r.POST("/sync/:stage", a.handleStage)

	api := r.Group("/api/v1")
	api.GET("/workspaces", a.listWorkspaces)
	api.GET("/users", a.listUsers)
	api.GET("/projects", a.listProjects)
	api.GET("/time-entries", a.listTimeEntries)
	return r
}

func (a *App) handleSync(c *gin.Context) {
	from, to := a.requestWindow(c)
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := a.RunOnce(ctx, from, to)
	if err != nil {
		writeError(c, err, gin.H{"from": from.Format(time.RFC3339), "to": to.Format(time.RFC3339)})
		return
	}
	body := gin.H{
		"status": res.Status(),
		"from":   from.Format(time.RFC3339),
		"to":     to.Format(time.RFC3339),
		"result": res,
	}
	if res.Status() == "error" {
		body["error"] = "sync failed"
		body["detail"] = firstStageError(res)
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (a *App) handleStage(c *gin.Context) {
	stage := usecase.Stage(c.Param("stage"))
	switch stage {
	case usecase.StageWorkspaces, usecase.StageUsers, usecase.StageProjects, usecase.StageTimeEntries, usecase.StageReport:
	default:
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "unknown stage", "detail": string(stage)})
		return
	}
	from, to := a.requestWindow(c)
	var window time.Duration
	if w := c.Query("window"); w != "" {
		d, err := time.ParseDuration(w)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid window", "detail": w})
			return
		}
		window = d
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := a.RunStage(ctx, stage, from, to, window)
	if err != nil {
		writeError(c, err, gin.H{"result": res})
		return
	}
	rows, err := a.stageRows(ctx, stage)
	if err != nil {
		writeError(c, err, gin.H{"result": res})
		return
	}
	status := "ok"
	if len(res.Failed) > 0 {
		status = "partial"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "result": res, "rows": rows})
}

// stageRows returns what the stage wrote, as stored locally.
func (a *App) stageRows(ctx context.Context, stage usecase.Stage) (any, error) {
	switch stage {
	case usecase.StageWorkspaces:
		return a.store.ListWorkspaces(ctx)
	case usecase.StageUsers:
		return a.store.ListUsers(ctx, "")
	case usecase.StageProjects:
		return a.store.ListProjects(ctx, "")
	}
	page, err := a.store.QueryTimeEntries(ctx, ports.TimeEntryFilter{})
	return page.Items, err
}

func (a *App) listWorkspaces(c *gin.Context) {
	items, err := a.store.ListWorkspaces(c.Request.Context())
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *App) listUsers(c *gin.Context) {
	items, err := a.store.ListUsers(c.Request.Context(), c.Query("workspace"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *App) listProjects(c *gin.Context) {
	items, err := a.store.ListProjects(c.Request.Context(), c.Query("workspace"))
	if err != nil {
		writeError(c, err, nil)
		return
	}
	if cat := c.Query("category"); cat != "" {
		items = slices.DeleteFunc(items, func(p domain.Project) bool { return string(p.Category) != cat })
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *App) listTimeEntries(c *gin.Context) {
	f := ports.TimeEntryFilter{
		WorkspaceID: c.Query("workspace"),
		UserID:      c.Query("user"),
		ProjectID:   c.Query("project"),
		Category:    c.Query("category"),
		Search:      c.Query("q"),
	}
	var err error
	if f.From, err = ParseStart(c.Query("from"), time.Time{}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from", "detail": err.Error()})
		return
	}
	if f.To, err = ParseEnd(c.Query("to"), time.Time{}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to", "detail": err.Error()})
		return
	}
	for name, dst := range map[string]*int{"page": &f.Page, "page_size": &f.PageSize} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name, "detail": v})
			return
		}
		*dst = n
	}
	page, err := a.store.QueryTimeEntries(c.Request.Context(), f)
	if err != nil {
		writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, page)
}

// requestWindow reads from/to, falling back to the default window on
// missing or invalid input.
func (a *App) requestWindow(c *gin.Context) (time.Time, time.Time) {
	to, _ := ParseEnd(c.Query("to"), time.Now().UTC())
	from, _ := ParseStart(c.Query("from"), to.Add(-a.lookback))
	return from, to
}

// requestContext applies an optional timeout override: ?timeout=5m
func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	ctx := c.Request.Context()
	if tStr := c.Query("timeout"); tStr != "" {
		if d, err := time.ParseDuration(tStr); err == nil && d > 0 {
			return context.WithTimeout(ctx, d)
		}
	}
	return context.WithCancel(ctx)
}

func writeError(c *gin.Context, err error, extra gin.H) {
	status := http.StatusInternalServerError
	short := "sync failed"
	var cfgErr *domain.ConfigError
	switch {
	case errors.Is(err, domain.ErrSyncRunning):
		status = http.StatusConflict
		short = "sync already running"
	case errors.As(err, &cfgErr):
		short = "configuration error"
	case errors.Is(err, domain.ErrNoWorkspaces):
		short = "no workspaces"
	case domain.IsRemote(err):
		short = "clockify request failed"
	}
	body := gin.H{"status": "error", "error": short, "detail": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

func firstStageError(res usecase.RunResult) string {
	for _, s := range res.Stages {
		if s.Error != "" {
			return string(s.Stage) + ": " + s.Error
		}
	}
	return ""
}

// loggingMiddleware provides basic request logging.
func loggingMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("remote", c.ClientIP()),
			slog.Duration("dur", time.Since(start)),
		)
	}
}
