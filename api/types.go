package api

import (
	"context"
	"io"

	"governance-api/domain"
	"governance-api/workspace"
)

// TaskStore abstracts task persistence for handlers.
type TaskStore interface {
	FetchTasks(ctx context.Context, eventID string) ([]domain.Task, error)
	GetTask(ctx context.Context, eventID, taskID string) (domain.Task, error)
	UpdateStatus(ctx context.Context, eventID string, tr domain.Transition, actorID string) (domain.Task, error)
	EnqueueAudit(ctx context.Context, ev domain.AuditEvent) error
}

// Ingestor turns an uploaded document into candidate rows.
type Ingestor interface {
	Preview(ctx context.Context, eventID, filename string, doc io.Reader) ([]domain.CandidateRow, error)
}

// Committer submits a workspace as one batch.
type Committer interface {
	Commit(ctx context.Context, req workspace.CommitRequest) (workspace.CommitResult, error)
}

// Authenticator is implemented by types able to build an actor from the
// Authorization header.
type Authenticator interface {
	ActorFromAuthHeader(string) (domain.Actor, error)
}

// Deduper prevents processing of duplicate requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, actorID, key string) (bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, actorID, key string) error
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error
