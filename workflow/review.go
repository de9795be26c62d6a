package workflow

import (
	"strings"

	"governance-api/domain"
)

// NeedsReview reports whether task is waiting on actor. It only drives list
// filtering and highlighting; permission checks use CanManageStatus.
func NeedsReview(task domain.Task, actor domain.Actor) bool {
	switch task.Status {
	case domain.StageCompleted:
		return actor.IsHighest() || (actor.Role == domain.RoleAdmin && task.DepartmentID == actor.DepartmentID)
	case domain.StageDeptApproved, domain.StageFinalApproved:
		return actor.IsHighest()
	case domain.StageNew, domain.StageInProgress:
		return assignedTo(task, actor)
	}
	return false
}

// FilterOptions narrows a task list.
type FilterOptions struct {
	NeedsReviewOnly bool
	Query           string
}

// FilterTasks keeps tasks whose title contains the query (case-insensitive)
// and, when requested, that need the actor's review. Order is preserved.
func FilterTasks(tasks []domain.Task, actor domain.Actor, opts FilterOptions) []domain.Task {
	q := strings.ToLower(opts.Query)
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if q != "" && !strings.Contains(strings.ToLower(t.Title), q) {
			continue
		}
		if opts.NeedsReviewOnly && !NeedsReview(t, actor) {
			continue
		}
		out = append(out, t)
	}
	return out
}
