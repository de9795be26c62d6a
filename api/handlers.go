package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"governance-api/domain"
	"governance-api/workflow"
	"governance-api/workspace"
)

const healthTimeout = 3 * time.Second

// Deps are the collaborators of the HTTP surface.
type Deps struct {
	Tasks      TaskStore
	Workspaces workspace.Store
	Ingestor   Ingestor
	Committer  Committer
	Auth       Authenticator
	Deduper    Deduper
	Engine     workflow.Engine
	Logger     *log.Logger
	Checks     map[string]HealthCheck
	Pprof      bool
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}
	e.JSONSerializer = sonicSerializer{}

	route := func(method, path, name string, h echo.HandlerFunc, mw ...echo.MiddlewareFunc) {
		chain := append([]echo.MiddlewareFunc{instrument(d.Logger, name), authenticate(d.Auth)}, mw...)
		e.Add(method, path, h, chain...)
	}
	once := idempotent(d.Deduper)

	route(http.MethodPost, "/api/events/:eventId/imports", "imports.create", createImport(d))
	route(http.MethodGet, "/api/imports/:id", "imports.get", getImport(d))
	route(http.MethodPost, "/api/imports/:id/rows", "imports.add_row", mutateImport(d, addRow))
	route(http.MethodPatch, "/api/imports/:id/rows/:pos", "imports.edit_row", mutateImport(d, editRow))
	route(http.MethodDelete, "/api/imports/:id/rows/:pos", "imports.delete_row", mutateImport(d, deleteRow))
	route(http.MethodPost, "/api/imports/:id/undo", "imports.undo", mutateImport(d, undo))
	route(http.MethodPut, "/api/imports/:id/rows/:pos/decision", "imports.set_decision", mutateImport(d, setDecision))
	route(http.MethodPost, "/api/imports/:id/selection/:pos", "imports.toggle_row", mutateImport(d, toggleRow))
	route(http.MethodPost, "/api/imports/:id/selection", "imports.toggle_all", mutateImport(d, toggleAll))
	route(http.MethodDelete, "/api/imports/:id/selection", "imports.clear_selection", mutateImport(d, clearSelection))
	route(http.MethodPost, "/api/imports/:id/bulk-decision", "imports.bulk_decision", mutateImport(d, bulkDecision))
	route(http.MethodPost, "/api/imports/:id/commit", "imports.commit", commitImport(d), once)

	route(http.MethodGet, "/api/events/:eventId/tasks", "tasks.list", listTasks(d))
	route(http.MethodGet, "/api/events/:eventId/tasks/:taskId/transitions", "tasks.transitions", getTransitions(d))
	route(http.MethodPatch, "/api/events/:eventId/tasks/:taskId/status", "tasks.update_status", updateStatus(d), once)

	e.GET("/healthz", healthz(d.Checks))
	if d.Pprof {
		pprof.Register(e)
	}
}

// healthz runs every dependency probe concurrently and reports 503 when any
// of them fails.
func healthz(checks map[string]HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		names := make([]string, 0, len(checks))
		for name := range checks {
			names = append(names, name)
		}
		errs := make([]error, len(names))

		g, gctx := errgroup.WithContext(ctx)
		for i, name := range names {
			check := checks[name]
			g.Go(func() error {
				errs[i] = check(gctx)
				return nil
			})
		}
		_ = g.Wait()

		results := make(map[string]string, len(names))
		status := http.StatusOK
		for i, name := range names {
			results[name] = "ok"
			if errs[i] != nil {
				results[name] = errs[i].Error()
				status = http.StatusServiceUnavailable
			}
		}
		return c.JSON(status, results)
	}
}

// audit enqueues ev without failing the request; the mutation it records
// already happened.
func audit(c echo.Context, d Deps, ev domain.AuditEvent) {
	ev.Actor = actorFrom(c)
	ctx := context.WithoutCancel(c.Request().Context())
	err := metricsFrom(c).Time("audit", func() error { return d.Tasks.EnqueueAudit(ctx, ev) })
	if err != nil {
		d.Logger.WithError(err).WithFields(log.Fields{
			"action":  ev.Action,
			"eventId": ev.EventID,
		}).Warn("audit enqueue failed")
	}
}
