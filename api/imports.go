package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"governance-api/domain"
	"governance-api/workflow"
	"governance-api/workspace"
)

const (
	headerIfMatch = "If-Match"
	headerETag    = "ETag"
)

// createImport sends the uploaded document to ingestion and opens a workspace
// over the returned rows.
func createImport(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := actorFrom(c)
		metrics := metricsFrom(c)
		if !workflow.CanCreate(actor) {
			return fail(c, "authorize", workflow.ErrForbidden)
		}
		eventID := c.Param("eventId")
		metrics.Set("event.id", eventID)

		fh, err := c.FormFile("file")
		if err != nil {
			return fail(c, "upload", errMissingFile)
		}
		f, err := fh.Open()
		if err != nil {
			return fail(c, "upload", err)
		}
		defer f.Close()

		var rows []domain.CandidateRow
		err = metrics.Time("ingest", func() (err error) {
			rows, err = d.Ingestor.Preview(c.Request().Context(), eventID, fh.Filename, f)
			return err
		})
		if err != nil {
			return fail(c, "ingest", err)
		}
		metrics.Set("rows.count", len(rows))

		ws := workspace.New(eventID, actor.ID, rows)
		if err := metrics.Time("save", func() error { return d.Workspaces.Create(c.Request().Context(), ws) }); err != nil {
			return fail(c, "save", err)
		}
		audit(c, d, domain.AuditEvent{EventID: eventID, Action: domain.AuditImportStarted, Count: len(rows)})
		c.Response().Header().Set(echo.HeaderLocation, "/api/imports/"+ws.ID)
		return writeJSON(c, http.StatusCreated, newWorkspaceView(ws))
	}
}

func getImport(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ws, err := loadWorkspace(c, d.Workspaces)
		if err != nil {
			return fail(c, "load", err)
		}
		return writeJSON(c, http.StatusOK, newWorkspaceView(ws))
	}
}

type mutation func(c echo.Context, ws *workspace.Workspace) error

// mutateImport loads the workspace, applies fn and saves it under the version
// it was loaded with. A client sending If-Match gets 409 when it edited a
// stale copy.
func mutateImport(d Deps, fn mutation) echo.HandlerFunc {
	return func(c echo.Context) error {
		metrics := metricsFrom(c)
		ws, err := loadWorkspace(c, d.Workspaces)
		if err != nil {
			return fail(c, "load", err)
		}
		if err := checkIfMatch(c, ws); err != nil {
			return fail(c, "load", err)
		}
		if err := metrics.Time("apply", func() error { return fn(c, ws) }); err != nil {
			return fail(c, "apply", err)
		}
		if err := metrics.Time("save", func() error { return d.Workspaces.Save(c.Request().Context(), ws) }); err != nil {
			return fail(c, "save", err)
		}
		c.Response().Header().Set(headerETag, strconv.FormatInt(ws.Version, 10))
		return writeJSON(c, http.StatusOK, newWorkspaceView(ws))
	}
}

func loadWorkspace(c echo.Context, store workspace.Store) (*workspace.Workspace, error) {
	var ws *workspace.Workspace
	err := metricsFrom(c).Time("load", func() (err error) {
		ws, err = store.Load(c.Request().Context(), c.Param("id"))
		return err
	})
	if err != nil {
		return nil, err
	}
	if !workspace.CanAccess(ws, actorFrom(c)) {
		return nil, workspace.ErrNotOwner
	}
	return ws, nil
}

func checkIfMatch(c echo.Context, ws *workspace.Workspace) error {
	raw := strings.Trim(c.Request().Header.Get(headerIfMatch), `" `)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v != ws.Version {
		return errStaleWorkspace
	}
	return nil
}

func addRow(c echo.Context, ws *workspace.Workspace) error {
	metricsFrom(c).Set("row.position", ws.AddRow())
	return nil
}

func editRow(c echo.Context, ws *workspace.Workspace) error {
	pos, err := positionParam(c)
	if err != nil {
		return err
	}
	var req editRowRequest
	if err := decodeBody(c, &req); err != nil {
		return err
	}
	return ws.EditField(pos, req.Field, req.Value)
}

func deleteRow(c echo.Context, ws *workspace.Workspace) error {
	pos, err := positionParam(c)
	if err != nil {
		return err
	}
	return ws.DeleteRow(pos)
}

func undo(_ echo.Context, ws *workspace.Workspace) error {
	if !ws.Undo() {
		return errNothingToUndo
	}
	return nil
}

func setDecision(c echo.Context, ws *workspace.Workspace) error {
	pos, err := positionParam(c)
	if err != nil {
		return err
	}
	dec, err := decisionFromBody(c)
	if err != nil {
		return err
	}
	return ws.SetDecision(pos, dec)
}

func toggleRow(c echo.Context, ws *workspace.Workspace) error {
	pos, err := positionParam(c)
	if err != nil {
		return err
	}
	return ws.ToggleSelection(pos)
}

func toggleAll(_ echo.Context, ws *workspace.Workspace) error {
	ws.ToggleSelectAll()
	return nil
}

func clearSelection(_ echo.Context, ws *workspace.Workspace) error {
	ws.ClearSelection()
	return nil
}

func bulkDecision(c echo.Context, ws *workspace.Workspace) error {
	dec, err := decisionFromBody(c)
	if err != nil {
		return err
	}
	n, err := ws.ApplyBulkDecision(dec)
	if err != nil {
		return err
	}
	metricsFrom(c).Set("rows.updated", n)
	return nil
}

func decisionFromBody(c echo.Context) (domain.Decision, error) {
	var req decisionRequest
	if err := decodeBody(c, &req); err != nil {
		return "", err
	}
	return domain.ParseDecision(req.Decision)
}

// commitImport submits the workspace batch. The workspace is gone after a
// successful commit; on failure it is left as it was.
func commitImport(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req commitRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, "decode", err)
		}
		metrics := metricsFrom(c)
		metrics.Set("confirm_updates", req.ConfirmUpdates)

		var res workspace.CommitResult
		err := metrics.Time("submit", func() (err error) {
			res, err = d.Committer.Commit(c.Request().Context(), workspace.CommitRequest{
				WorkspaceID:    c.Param("id"),
				Actor:          actorFrom(c),
				ConfirmUpdates: req.ConfirmUpdates,
			})
			return err
		})
		if err != nil {
			return fail(c, "submit", err)
		}
		metrics.Set("rows.committed", res.Committed)
		audit(c, d, domain.AuditEvent{EventID: res.EventID, Action: domain.AuditTasksImported, Count: res.Committed})
		return writeJSON(c, http.StatusOK, commitResponse{
			Committed:       res.Committed,
			RedirectTo:      res.RedirectTo,
			RedirectAfterMs: res.RedirectAfter.Milliseconds(),
		})
	}
}
