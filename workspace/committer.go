package workspace

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"governance-api/domain"
)

const (
	// DefaultRedirectDelay is how long a client should wait before leaving
	// the workspace after a successful commit.
	DefaultRedirectDelay = 2 * time.Second

	genericSubmitMessage = "Sync failed. Ensure all required fields are filled."
)

var (
	ErrNotSyncReady         = errors.New("resolve duplicate or missing titles before syncing")
	ErrConfirmationRequired = errors.New("some records are marked for UPDATE and will overwrite existing task data")
	ErrNotOwner             = errors.New("workspace belongs to another user")
)

// Submitter sends a commit batch to task persistence as one request.
type Submitter interface {
	SyncTasks(ctx context.Context, eventID string, tasks []domain.SyncTask) (int, error)
}

// SubmitError wraps a failure reported by task persistence.
type SubmitError struct {
	Message string
	Err     error
}

func (e *SubmitError) Error() string { return e.Message }

func (e *SubmitError) Unwrap() error { return e.Err }

// userMessager is implemented by collaborator errors that carry a message
// fit for display.
type userMessager interface {
	UserMessage() string
}

// CommitRequest asks for a workspace to be committed.
type CommitRequest struct {
	WorkspaceID    string
	Actor          domain.Actor
	ConfirmUpdates bool
}

// CommitResult reports a successful commit.
type CommitResult struct {
	EventID       string        `json:"eventId"`
	Committed     int           `json:"committed"`
	RedirectTo    string        `json:"redirectTo"`
	RedirectAfter time.Duration `json:"-"`
}

// Committer turns a workspace into a task batch and submits it. Concurrent
// commits of one workspace run once in this process and are excluded across
// processes by the Locker.
type Committer struct {
	store         Store
	submitter     Submitter
	locker        Locker
	logger        *log.Logger
	redirectAfter time.Duration
	group         singleflight.Group
}

// NewCommitter wires a committer. locker may be nil when only one instance
// runs.
func NewCommitter(store Store, submitter Submitter, locker Locker, logger *log.Logger) *Committer {
	if store == nil || submitter == nil {
		panic("workspace.NewCommitter: store and submitter are required")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Committer{
		store:         store,
		submitter:     submitter,
		locker:        locker,
		logger:        logger,
		redirectAfter: DefaultRedirectDelay,
	}
}

// Commit validates and submits the workspace as stored at call time. On any
// failure the stored workspace is left untouched. Every caller is checked on
// its own before joining an in-flight commit of the same workspace, and only
// the caller that ran the commit gets its result; the others get
// ErrCommitInFlight.
func (c *Committer) Commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	if _, _, err := c.prepare(ctx, req); err != nil {
		return CommitResult{}, err
	}
	led := false
	v, err, _ := c.group.Do(req.WorkspaceID, func() (any, error) {
		led = true
		return c.commit(ctx, req)
	})
	if !led {
		c.logger.WithFields(log.Fields{
			"workspace": req.WorkspaceID,
			"actor":     req.Actor.ID,
		}).Debug("commit rejected, another commit in flight")
		return CommitResult{}, ErrCommitInFlight
	}
	if err != nil {
		return CommitResult{}, err
	}
	return v.(CommitResult), nil
}

// prepare loads the workspace and applies the access, readiness and
// confirmation gates for req.
func (c *Committer) prepare(ctx context.Context, req CommitRequest) (*Workspace, []domain.SyncTask, error) {
	ws, err := c.store.Load(ctx, req.WorkspaceID)
	if err != nil {
		return nil, nil, err
	}
	if !CanAccess(ws, req.Actor) {
		return nil, nil, ErrNotOwner
	}
	if !ws.SyncReady() {
		return nil, nil, ErrNotSyncReady
	}
	batch := BuildBatch(ws)
	if NeedsConfirmation(batch) && !req.ConfirmUpdates {
		return nil, nil, ErrConfirmationRequired
	}
	return ws, batch, nil
}

func (c *Committer) commit(ctx context.Context, req CommitRequest) (CommitResult, error) {
	if c.locker != nil {
		release, err := c.locker.Acquire(ctx, "commit:"+req.WorkspaceID)
		if err != nil {
			return CommitResult{}, err
		}
		defer func() {
			if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
				c.logger.WithError(rerr).Errorf("commit lock release failed, workspace: %s", req.WorkspaceID)
			}
		}()
	}

	// Re-check under the lock.
	ws, batch, err := c.prepare(ctx, req)
	if err != nil {
		return CommitResult{}, err
	}

	n, err := c.submitter.SyncTasks(ctx, ws.EventID, batch)
	if err != nil {
		return CommitResult{}, &SubmitError{Message: submitMessage(err), Err: err}
	}

	if derr := c.store.Delete(context.WithoutCancel(ctx), ws.ID); derr != nil {
		c.logger.WithError(derr).Errorf("workspace cleanup failed, workspace: %s", ws.ID)
	}
	c.logger.WithFields(log.Fields{
		"workspace": ws.ID,
		"event":     ws.EventID,
		"committed": n,
		"actor":     req.Actor.ID,
	}).Info("workspace committed")

	return CommitResult{
		EventID:       ws.EventID,
		Committed:     n,
		RedirectTo:    "/events/" + ws.EventID + "/tasks",
		RedirectAfter: c.redirectAfter,
	}, nil
}

// CanAccess reports whether actor may read or change ws.
func CanAccess(ws *Workspace, actor domain.Actor) bool {
	return ws.OwnerID == actor.ID || actor.IsHighest()
}

func submitMessage(err error) string {
	var um userMessager
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return genericSubmitMessage
}
