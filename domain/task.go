package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrUnknownStage is returned when a status string is not a workflow stage.
var ErrUnknownStage = errors.New("unknown workflow stage")

// Stage is a position in the task approval workflow.
type Stage string

const (
	StageNew           Stage = "NEW"
	StageInProgress    Stage = "IN_PROGRESS"
	StageCompleted     Stage = "COMPLETED"
	StageDeptApproved  Stage = "DEPT_APPROVED"
	StageFinalApproved Stage = "FINAL_APPROVED"
	StageClosed        Stage = "CLOSED"
)

// Stages lists the workflow in rank order.
var Stages = [...]Stage{
	StageNew,
	StageInProgress,
	StageCompleted,
	StageDeptApproved,
	StageFinalApproved,
	StageClosed,
}

var stageLabels = map[Stage]string{
	StageNew:           "New",
	StageInProgress:    "In Progress",
	StageCompleted:     "Completed",
	StageDeptApproved:  "Dept Approved",
	StageFinalApproved: "Final Approved",
	StageClosed:        "Closed",
}

// Rank returns the index of s in Stages, or -1 for an unknown stage.
func (s Stage) Rank() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the six workflow stages.
func (s Stage) Valid() bool { return s.Rank() >= 0 }

// Label is the human readable stage name.
func (s Stage) Label() string {
	if l, ok := stageLabels[s]; ok {
		return l
	}
	return string(s)
}

// StageAt returns the stage with the given rank.
func StageAt(rank int) (Stage, bool) {
	if rank < 0 || rank >= len(Stages) {
		return "", false
	}
	return Stages[rank], true
}

// ParseStage accepts stage names case-insensitively.
func ParseStage(raw string) (Stage, error) {
	s := Stage(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", ErrUnknownStage
	}
	return s, nil
}

// Task is a persisted event task as seen by the workflow engine.
type Task struct {
	ID             string     `json:"id"`
	EventID        string     `json:"eventId"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	DepartmentID   string     `json:"departmentId,omitempty"`
	DepartmentName string     `json:"departmentName,omitempty"`
	AssignedToID   string     `json:"assignedToId,omitempty"`
	AssigneeEmail  string     `json:"assigneeEmail,omitempty"`
	Status         Stage      `json:"status"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}
