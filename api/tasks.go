package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"governance-api/domain"
	"governance-api/workflow"
)

func listTasks(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := actorFrom(c)
		metrics := metricsFrom(c)
		eventID := c.Param("eventId")
		metrics.Set("event.id", eventID)

		var tasks []domain.Task
		err := metrics.Time("load", func() (err error) {
			tasks, err = d.Tasks.FetchTasks(c.Request().Context(), eventID)
			return err
		})
		if err != nil {
			return fail(c, "load", err)
		}

		needsReview, _ := strconv.ParseBool(c.QueryParam("needsReview"))
		filtered := workflow.FilterTasks(tasks, actor, workflow.FilterOptions{
			NeedsReviewOnly: needsReview,
			Query:           strings.TrimSpace(c.QueryParam("q")),
		})
		resp := tasksResponse{Tasks: make([]taskView, len(filtered))}
		for i, t := range filtered {
			resp.Tasks[i] = newTaskView(t, actor)
		}
		metrics.Set("tasks.returned", len(resp.Tasks))
		return writeJSON(c, http.StatusOK, resp)
	}
}

func getTransitions(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		task, err := loadTask(c, d)
		if err != nil {
			return fail(c, "load", err)
		}
		return writeJSON(c, http.StatusOK, workflow.Options(task, actorFrom(c)))
	}
}

// updateStatus validates the requested transition against the current
// stored status and submits it with the task's ETag.
func updateStatus(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := actorFrom(c)
		metrics := metricsFrom(c)

		var req statusRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, "decode", err)
		}
		target, err := domain.ParseStage(req.Status)
		if err != nil {
			return fail(c, "decode", err)
		}

		task, err := loadTask(c, d)
		if err != nil {
			return fail(c, "load", err)
		}

		var tr domain.Transition
		err = metrics.Time("apply", func() (err error) {
			tr, err = d.Engine.Plan(task, actor, target, req.Remarks)
			return err
		})
		if err != nil {
			return fail(c, "apply", err)
		}
		metrics.Set("status.from", string(tr.From))
		metrics.Set("status.to", string(tr.To))

		var updated domain.Task
		err = metrics.Time("submit", func() (err error) {
			updated, err = d.Tasks.UpdateStatus(c.Request().Context(), task.EventID, tr, actor.ID)
			return err
		})
		if err != nil {
			return fail(c, "submit", err)
		}
		audit(c, d, domain.AuditEvent{
			EventID: task.EventID,
			TaskID:  task.ID,
			Action:  domain.AuditStatusChanged,
			From:    tr.From,
			To:      tr.To,
			Remarks: tr.Remarks,
		})
		return writeJSON(c, http.StatusOK, newTaskView(updated, actor))
	}
}

func loadTask(c echo.Context, d Deps) (domain.Task, error) {
	var task domain.Task
	err := metricsFrom(c).Time("load", func() (err error) {
		task, err = d.Tasks.GetTask(c.Request().Context(), c.Param("eventId"), c.Param("taskId"))
		return err
	})
	return task, err
}
