package api

import (
	"errors"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"governance-api/domain"
	"governance-api/workflow"
	"governance-api/workspace"
)

const requestMaxSize = 64 * 1024 // 64 KiB

// PATCH /api/imports/:id/rows/:pos request body
type editRowRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// PUT /api/imports/:id/rows/:pos/decision and
// POST /api/imports/:id/bulk-decision request body
type decisionRequest struct {
	Decision string `json:"decision"`
}

// POST /api/imports/:id/commit request body
type commitRequest struct {
	ConfirmUpdates bool `json:"confirmUpdates"`
}

// PATCH /api/events/:eventId/tasks/:taskId/status request body
type statusRequest struct {
	Status  string `json:"status"`
	Remarks string `json:"remarks"`
}

type errorResponse struct {
	Message              string `json:"message"`
	ConfirmationRequired bool   `json:"confirmationRequired,omitempty"`
}

type rowView struct {
	domain.CandidateRow
	State workspace.RowState `json:"state"`
}

type workspaceView struct {
	ID        string            `json:"id"`
	EventID   string            `json:"eventId"`
	Version   int64             `json:"version"`
	Rows      []rowView         `json:"rows"`
	Selected  []int             `json:"selected"`
	Summary   workspace.Summary `json:"summary"`
	SyncReady bool              `json:"syncReady"`
	CanUndo   bool              `json:"canUndo"`
}

func newWorkspaceView(ws *workspace.Workspace) workspaceView {
	ev := ws.Evaluate()
	rows := ws.Rows()
	view := workspaceView{
		ID:        ws.ID,
		EventID:   ws.EventID,
		Version:   ws.Version,
		Rows:      make([]rowView, len(rows)),
		Selected:  ws.Selected(),
		Summary:   ev.Summary,
		SyncReady: ev.SyncReady,
		CanUndo:   ws.CanUndo(),
	}
	for i, r := range rows {
		view.Rows[i] = rowView{CandidateRow: r, State: ev.Rows[i]}
	}
	return view
}

type commitResponse struct {
	Committed       int    `json:"committed"`
	RedirectTo      string `json:"redirectTo"`
	RedirectAfterMs int64  `json:"redirectAfterMs"`
}

type taskView struct {
	domain.Task
	CanManageStatus bool `json:"canManageStatus"`
	CanDelete       bool `json:"canDelete"`
	NeedsReview     bool `json:"needsReview"`
}

func newTaskView(t domain.Task, actor domain.Actor) taskView {
	return taskView{
		Task:            t,
		CanManageStatus: workflow.CanManageStatus(t, actor),
		CanDelete:       workflow.CanDelete(t, actor),
		NeedsReview:     workflow.NeedsReview(t, actor),
	}
}

type tasksResponse struct {
	Tasks []taskView `json:"tasks"`
}

// sonicSerializer encodes echo responses with sonic.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i any, indent string) error {
	enc := sonic.ConfigStd.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (sonicSerializer) Deserialize(c echo.Context, i any) error {
	err := sonic.ConfigStd.NewDecoder(c.Request().Body).Decode(i)
	if err != nil {
		return errors.Join(echo.NewHTTPError(http.StatusBadRequest, "invalid body"), err)
	}
	return nil
}
