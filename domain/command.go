package domain

import "time"

// SyncTask is a candidate row tagged with its resolved decision.
type SyncTask struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	DepartmentName string   `json:"departmentName"`
	AssigneeEmail  string   `json:"assigneeEmail"`
	Exists         bool     `json:"exists,omitempty"`
	Action         Decision `json:"action"`
}

// SyncRequest is the commit payload sent to task persistence.
type SyncRequest struct {
	EventID string     `json:"eventId"`
	Tasks   []SyncTask `json:"tasks"`
}

// Transition is a validated status change ready for submission.
type Transition struct {
	TaskID     string `json:"taskId"`
	From       Stage  `json:"from"`
	To         Stage  `json:"status"`
	Remarks    string `json:"remarks"`
	Regression bool   `json:"regression"`
}

// Audit actions.
const (
	AuditStatusChanged = "task-status-changed"
	AuditTasksImported = "tasks-imported"
	AuditImportStarted = "import-started"
)

// AuditEvent records a mutation for the audit trail service.
type AuditEvent struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	TaskID    string    `json:"taskId,omitempty"`
	Actor     Actor     `json:"actor"`
	Action    string    `json:"action"`
	From      Stage     `json:"from,omitempty"`
	To        Stage     `json:"to,omitempty"`
	Remarks   string    `json:"remarks,omitempty"`
	Count     int       `json:"count,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
