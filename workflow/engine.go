// Package workflow implements the task approval state machine: which stage a
// task may move to, who may move it and when a justification is required.
package workflow

import (
	"errors"
	"strings"

	"governance-api/domain"
)

var (
	// ErrForbidden is returned when the actor may not manage the task's status.
	ErrForbidden = errors.New("not permitted to change this task's status")
	// ErrIllegalTransition is returned for targets other than the next stage
	// or the send-back stage.
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrRemarksRequired is returned for regressions without remarks.
	ErrRemarksRequired = errors.New("remarks are required when sending a task back")
)

// Forward returns the stage after current. It reports false at CLOSED or for
// an unknown stage.
func Forward(current domain.Stage) (domain.Stage, bool) {
	rank := current.Rank()
	if rank < 0 {
		return "", false
	}
	return domain.StageAt(rank + 1)
}

// Backward returns the send-back target. Tasks always go back to IN_PROGRESS,
// and only from COMPLETED or later, and never by the lowest role.
func Backward(current domain.Stage, actor domain.Actor) (domain.Stage, bool) {
	if current.Rank() < domain.StageCompleted.Rank() || actor.IsLowest() {
		return "", false
	}
	return domain.StageInProgress, true
}

// CheckRemarks enforces that regressions carry a non-blank justification.
func CheckRemarks(current, target domain.Stage, remarks string) error {
	if target.Rank() < current.Rank() && strings.TrimSpace(remarks) == "" {
		return ErrRemarksRequired
	}
	return nil
}

// TransitionOption describes one selectable target.
type TransitionOption struct {
	Status          domain.Stage `json:"status"`
	Label           string       `json:"label"`
	RemarksRequired bool         `json:"remarksRequired"`
}

// TransitionOptions lists what an actor may do with a task.
type TransitionOptions struct {
	Current   domain.Stage      `json:"current"`
	CanManage bool              `json:"canManage"`
	Forward   *TransitionOption `json:"forward,omitempty"`
	Backward  *TransitionOption `json:"backward,omitempty"`
}

// Options computes the forward and backward choices for a task. Neither is
// offered when the actor may not manage the task.
func Options(task domain.Task, actor domain.Actor) TransitionOptions {
	opts := TransitionOptions{Current: task.Status, CanManage: CanManageStatus(task, actor)}
	if !opts.CanManage {
		return opts
	}
	if next, ok := Forward(task.Status); ok {
		opts.Forward = &TransitionOption{Status: next, Label: next.Label()}
	}
	if back, ok := Backward(task.Status, actor); ok {
		opts.Backward = &TransitionOption{
			Status:          back,
			Label:           back.Label(),
			RemarksRequired: back.Rank() < task.Status.Rank(),
		}
	}
	return opts
}

// Engine validates status change requests before they are submitted.
type Engine struct{}

// Plan checks permission, target legality and the justification rule, in
// that order, and returns the transition to submit.
func (Engine) Plan(task domain.Task, actor domain.Actor, target domain.Stage, remarks string) (domain.Transition, error) {
	if !CanManageStatus(task, actor) {
		return domain.Transition{}, ErrForbidden
	}
	if !target.Valid() {
		return domain.Transition{}, domain.ErrUnknownStage
	}
	legal := false
	if next, ok := Forward(task.Status); ok && next == target {
		legal = true
	}
	if back, ok := Backward(task.Status, actor); ok && back == target {
		legal = true
	}
	if !legal {
		return domain.Transition{}, ErrIllegalTransition
	}
	if err := CheckRemarks(task.Status, target, remarks); err != nil {
		return domain.Transition{}, err
	}
	return domain.Transition{
		TaskID:     task.ID,
		From:       task.Status,
		To:         target,
		Remarks:    strings.TrimSpace(remarks),
		Regression: target.Rank() < task.Status.Rank(),
	}, nil
}
