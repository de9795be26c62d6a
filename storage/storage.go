package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"governance-api/domain"
)

// MaxBatchSize is the most actions one table transaction accepts.
const MaxBatchSize = 100

const edmDateTime = "Edm.DateTime"

var (
	// ErrConcurrencyConflict indicates that the underlying storage rejected an
	// update because a newer version of the entity is already persisted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrTaskNotFound        = errors.New("task not found")
	ErrNoMatchingTask      = errors.New("no existing task with this title")
	ErrBatchTooLarge       = errors.New("sync batch too large")
)

// RowError ties a sync failure to the row that caused it.
type RowError struct {
	Title string
	Err   error
}

func (e *RowError) Error() string { return fmt.Sprintf("%v: %q", e.Err, e.Title) }

func (e *RowError) Unwrap() error { return e.Err }

func (e *RowError) UserMessage() string {
	return fmt.Sprintf("No existing task titled %q to update", strings.TrimSpace(e.Title))
}

// LimitError reports a batch over MaxBatchSize.
type LimitError struct {
	Count int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%v: %d tasks, limit %d", ErrBatchTooLarge, e.Count, MaxBatchSize)
}

func (e *LimitError) Unwrap() error { return ErrBatchTooLarge }

func (e *LimitError) UserMessage() string {
	return fmt.Sprintf("A sync can include at most %d tasks", MaxBatchSize)
}

type taskTable interface {
	NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
	GetEntity(ctx context.Context, partitionKey, rowKey string, o *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, o *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	SubmitTransaction(ctx context.Context, actions []aztables.TransactionAction, o *aztables.SubmitTransactionOptions) (aztables.TransactionResponse, error)
	CreateTable(ctx context.Context, o *aztables.CreateTableOptions) (aztables.CreateTableResponse, error)
}

type auditQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	Create(ctx context.Context, o *azqueue.CreateOptions) (azqueue.CreateResponse, error)
}

// Storage provides access to underlying persistence mechanisms.
type Storage struct {
	taskTable  taskTable
	auditQueue auditQueue
	now        func() time.Time
	newID      func() string
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, auditQueueName string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	aq, err := azqueue.NewQueueClientFromConnectionString(connStr, auditQueueName, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return newStorage(svc.NewClient(tasksTable), aq), nil
}

func newStorage(tt taskTable, aq auditQueue) *Storage {
	return &Storage{
		taskTable:  tt,
		auditQueue: aq,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
}

type taskEntity struct {
	PartitionKey   string     `json:"PartitionKey"`
	RowKey         string     `json:"RowKey"`
	ETag           string     `json:"odata.etag,omitempty"`
	Title          string     `json:"Title"`
	Description    string     `json:"Description"`
	DueDate        *time.Time `json:"DueDate,omitempty"`
	DueDateType    string     `json:"DueDate@odata.type,omitempty"`
	DepartmentID   string     `json:"DepartmentId"`
	DepartmentName string     `json:"DepartmentName"`
	AssignedToID   string     `json:"AssignedToId"`
	AssigneeEmail  string     `json:"AssigneeEmail"`
	Status         string     `json:"Status"`
	UpdatedAt      time.Time  `json:"UpdatedAt"`
	UpdatedAtType  string     `json:"UpdatedAt@odata.type,omitempty"`
}

type taskUpdate struct {
	PartitionKey   string     `json:"PartitionKey"`
	RowKey         string     `json:"RowKey"`
	Title          *string    `json:"Title,omitempty"`
	Description    *string    `json:"Description,omitempty"`
	DepartmentID   *string    `json:"DepartmentId,omitempty"`
	DepartmentName *string    `json:"DepartmentName,omitempty"`
	AssignedToID   *string    `json:"AssignedToId,omitempty"`
	AssigneeEmail  *string    `json:"AssigneeEmail,omitempty"`
	Status         *string    `json:"Status,omitempty"`
	Remarks        *string    `json:"Remarks,omitempty"`
	UpdatedBy      *string    `json:"UpdatedBy,omitempty"`
	UpdatedAt      *time.Time `json:"UpdatedAt,omitempty"`
	UpdatedAtType  *string    `json:"UpdatedAt@odata.type,omitempty"`
}

func decodeTaskEntity(data []byte) (taskEntity, error) {
	var ent taskEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return taskEntity{}, err
	}
	return ent, nil
}

func (e taskEntity) toTask() domain.Task {
	return domain.Task{
		ID:             e.RowKey,
		EventID:        e.PartitionKey,
		Title:          e.Title,
		Description:    e.Description,
		DueDate:        e.DueDate,
		DepartmentID:   e.DepartmentID,
		DepartmentName: e.DepartmentName,
		AssignedToID:   e.AssignedToID,
		AssigneeEmail:  e.AssigneeEmail,
		Status:         domain.Stage(e.Status),
		UpdatedAt:      e.UpdatedAt,
	}
}

func partitionFilter(eventID string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(eventID, "'", "''") + "'"
}

func (s *Storage) listEntities(ctx context.Context, eventID string) ([]taskEntity, error) {
	filter := partitionFilter(eventID)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	entities := []taskEntity{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			ent, err := decodeTaskEntity(raw)
			if err != nil {
				return nil, err
			}
			entities = append(entities, ent)
		}
	}
	return entities, nil
}

// FetchTasks retrieves all tasks of the provided event.
func (s *Storage) FetchTasks(ctx context.Context, eventID string) ([]domain.Task, error) {
	entities, err := s.listEntities(ctx, eventID)
	if err != nil {
		return nil, err
	}
	tasks := make([]domain.Task, 0, len(entities))
	for _, ent := range entities {
		tasks = append(tasks, ent.toTask())
	}
	return tasks, nil
}

func (s *Storage) getEntity(ctx context.Context, eventID, taskID string) (taskEntity, azcore.ETag, error) {
	resp, err := s.taskTable.GetEntity(ctx, eventID, taskID, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return taskEntity{}, "", ErrTaskNotFound
		}
		return taskEntity{}, "", err
	}
	ent, err := decodeTaskEntity(resp.Value)
	if err != nil {
		return taskEntity{}, "", err
	}
	return ent, resp.ETag, nil
}

// GetTask retrieves a single task.
func (s *Storage) GetTask(ctx context.Context, eventID, taskID string) (domain.Task, error) {
	ent, _, err := s.getEntity(ctx, eventID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	return ent.toTask(), nil
}

// UpdateStatus applies a planned transition. The write is conditional on the
// entity version read here and on the stored status still being tr.From.
func (s *Storage) UpdateStatus(ctx context.Context, eventID string, tr domain.Transition, actorID string) (domain.Task, error) {
	ent, etag, err := s.getEntity(ctx, eventID, tr.TaskID)
	if err != nil {
		return domain.Task{}, err
	}
	if domain.Stage(ent.Status) != tr.From {
		return domain.Task{}, ErrConcurrencyConflict
	}

	now := s.now()
	status := string(tr.To)
	dt := edmDateTime
	upd := taskUpdate{
		PartitionKey:  eventID,
		RowKey:        tr.TaskID,
		Status:        &status,
		UpdatedBy:     &actorID,
		UpdatedAt:     &now,
		UpdatedAtType: &dt,
	}
	if tr.Remarks != "" {
		upd.Remarks = &tr.Remarks
	}
	payload, err := sonic.Marshal(upd)
	if err != nil {
		return domain.Task{}, err
	}
	if etag == "" {
		etag = azcore.ETagAny
	}
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeMerge})
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			switch respErr.StatusCode {
			case 412:
				return domain.Task{}, ErrConcurrencyConflict
			case 404:
				return domain.Task{}, ErrTaskNotFound
			}
		}
		return domain.Task{}, err
	}

	task := ent.toTask()
	task.Status = tr.To
	task.UpdatedAt = now
	return task, nil
}

// SyncTasks writes the batch as one table transaction: APPEND rows become new
// tasks, UPDATE rows overwrite the text fields of the existing task with the
// same title. Nothing is written when any row fails to resolve.
func (s *Storage) SyncTasks(ctx context.Context, eventID string, tasks []domain.SyncTask) (int, error) {
	if len(tasks) > MaxBatchSize {
		return 0, &LimitError{Count: len(tasks)}
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	existing, err := s.listEntities(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("load existing tasks: %w", err)
	}
	actions, err := s.buildSyncActions(eventID, existing, tasks)
	if err != nil {
		return 0, err
	}
	if len(actions) == 0 {
		return 0, nil
	}
	if _, err := s.taskTable.SubmitTransaction(ctx, actions, nil); err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 412 {
			return 0, ErrConcurrencyConflict
		}
		return 0, fmt.Errorf("submit transaction: %w", err)
	}
	return len(actions), nil
}

func (s *Storage) buildSyncActions(eventID string, existing []taskEntity, tasks []domain.SyncTask) ([]aztables.TransactionAction, error) {
	byTitle := make(map[string]taskEntity, len(existing))
	for _, ent := range existing {
		key := strings.ToLower(strings.TrimSpace(ent.Title))
		if _, dup := byTitle[key]; !dup {
			byTitle[key] = ent
		}
	}
	ids := newDirectory(existing)

	now := s.now()
	actions := make([]aztables.TransactionAction, 0, len(tasks))
	for _, t := range tasks {
		switch t.Action {
		case domain.DecisionAppend:
			ent := taskEntity{
				PartitionKey:   eventID,
				RowKey:         s.newID(),
				Title:          strings.TrimSpace(t.Title),
				Description:    t.Description,
				DepartmentID:   ids.department(t.DepartmentName),
				DepartmentName: t.DepartmentName,
				AssignedToID:   ids.assignee(t.AssigneeEmail),
				AssigneeEmail:  t.AssigneeEmail,
				Status:         string(domain.StageNew),
				UpdatedAt:      now,
				UpdatedAtType:  edmDateTime,
			}
			payload, err := sonic.Marshal(ent)
			if err != nil {
				return nil, err
			}
			actions = append(actions, aztables.TransactionAction{
				ActionType: aztables.TransactionTypeAdd,
				Entity:     payload,
			})
		case domain.DecisionUpdate:
			match, ok := byTitle[strings.ToLower(strings.TrimSpace(t.Title))]
			if !ok {
				return nil, &RowError{Title: t.Title, Err: ErrNoMatchingTask}
			}
			desc, dept, email := t.Description, t.DepartmentName, t.AssigneeEmail
			deptID, assigneeID := ids.department(dept), ids.assignee(email)
			dt := edmDateTime
			upd := taskUpdate{
				PartitionKey:   eventID,
				RowKey:         match.RowKey,
				Description:    &desc,
				DepartmentID:   &deptID,
				DepartmentName: &dept,
				AssignedToID:   &assigneeID,
				AssigneeEmail:  &email,
				UpdatedAt:      &now,
				UpdatedAtType:  &dt,
			}
			payload, err := sonic.Marshal(upd)
			if err != nil {
				return nil, err
			}
			action := aztables.TransactionAction{
				ActionType: aztables.TransactionTypeUpdateMerge,
				Entity:     payload,
			}
			if match.ETag != "" {
				etag := azcore.ETag(match.ETag)
				action.IfMatch = &etag
			}
			actions = append(actions, action)
		}
	}
	return actions, nil
}

// directory resolves department names and assignee emails to the IDs already
// recorded on tasks of the same event. Lookups are case-insensitive; unknown
// names resolve to "".
type directory struct {
	departments map[string]string
	assignees   map[string]string
}

func newDirectory(existing []taskEntity) directory {
	d := directory{
		departments: make(map[string]string, len(existing)),
		assignees:   make(map[string]string, len(existing)),
	}
	for _, ent := range existing {
		if k := directoryKey(ent.DepartmentName); k != "" && ent.DepartmentID != "" {
			if _, ok := d.departments[k]; !ok {
				d.departments[k] = ent.DepartmentID
			}
		}
		if k := directoryKey(ent.AssigneeEmail); k != "" && ent.AssignedToID != "" {
			if _, ok := d.assignees[k]; !ok {
				d.assignees[k] = ent.AssignedToID
			}
		}
	}
	return d
}

func (d directory) department(name string) string { return d.departments[directoryKey(name)] }

func (d directory) assignee(email string) string { return d.assignees[directoryKey(email)] }

func directoryKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// EnqueueAudit sends an audit event to the audit queue.
func (s *Storage) EnqueueAudit(ctx context.Context, ev domain.AuditEvent) error {
	if ev.ID == "" {
		ev.ID = s.newID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = s.auditQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// EnsureResources creates the tasks table and the audit queue when missing.
func (s *Storage) EnsureResources(ctx context.Context) error {
	if _, err := s.taskTable.CreateTable(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists)) {
			return fmt.Errorf("create table: %w", err)
		}
	}
	if _, err := s.auditQueue.Create(ctx, nil); err != nil {
		var respErr *azcore.ResponseError
		if !(errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists") {
			return fmt.Errorf("create queue: %w", err)
		}
	}
	return nil
}
