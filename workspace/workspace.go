// Package workspace holds the reconciliation state of one document import:
// the candidate rows, a decision per row, the row selection and a bounded
// undo history of row contents.
package workspace

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"governance-api/domain"
)

// HistoryLimit is the number of row snapshots kept for undo.
const HistoryLimit = 10

var (
	ErrRowOutOfRange = errors.New("row position out of range")
	ErrUnknownField  = errors.New("unknown row field")
)

// Editable row fields.
const (
	FieldTitle          = "title"
	FieldDescription    = "description"
	FieldDepartmentName = "departmentName"
	FieldAssigneeEmail  = "assigneeEmail"
)

// Workspace is the mutable working set of an import. Rows are addressed by
// position; decisions and selection are keyed by the row's stable ID so a
// positional change never detaches them from their row.
type Workspace struct {
	ID        string
	EventID   string
	OwnerID   string
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time

	rows      []domain.CandidateRow
	decisions map[string]domain.Decision
	selected  map[string]struct{}
	history   [][]domain.CandidateRow
}

// New builds a workspace from ingested rows. Every row gets a fresh ID and
// its default decision.
func New(eventID, ownerID string, rows []domain.CandidateRow) *Workspace {
	now := time.Now().UTC()
	ws := &Workspace{
		ID:        uuid.NewString(),
		EventID:   eventID,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
		rows:      make([]domain.CandidateRow, len(rows)),
		decisions: make(map[string]domain.Decision, len(rows)),
		selected:  make(map[string]struct{}),
	}
	for i, r := range rows {
		r.ID = uuid.NewString()
		ws.rows[i] = r
		ws.decisions[r.ID] = r.DefaultDecision()
	}
	return ws
}

// Len is the number of rows.
func (w *Workspace) Len() int { return len(w.rows) }

// Rows returns a copy of the row sequence.
func (w *Workspace) Rows() []domain.CandidateRow {
	return cloneRows(w.rows)
}

// Row returns the row at pos.
func (w *Workspace) Row(pos int) (domain.CandidateRow, error) {
	if err := w.checkPos(pos); err != nil {
		return domain.CandidateRow{}, err
	}
	return w.rows[pos], nil
}

// AddRow appends an empty row decided as APPEND and returns its position.
func (w *Workspace) AddRow() int {
	w.pushHistory()
	row := domain.CandidateRow{ID: uuid.NewString()}
	w.rows = append(w.rows, row)
	w.decisions[row.ID] = domain.DecisionAppend
	w.touch()
	return len(w.rows) - 1
}

// EditField sets one text field of the row at pos. Values are not validated
// here; problems show up in Evaluate.
func (w *Workspace) EditField(pos int, field, value string) error {
	if err := w.checkPos(pos); err != nil {
		return err
	}
	switch field {
	case FieldTitle, FieldDescription, FieldDepartmentName, FieldAssigneeEmail:
	default:
		return ErrUnknownField
	}
	w.pushHistory()
	row := &w.rows[pos]
	switch field {
	case FieldTitle:
		row.Title = value
	case FieldDescription:
		row.Description = value
	case FieldDepartmentName:
		row.DepartmentName = value
	case FieldAssigneeEmail:
		row.AssigneeEmail = value
	}
	w.touch()
	return nil
}

// DeleteRow removes the row at pos together with its decision and selection.
// Rows after pos shift down by one and keep their own decisions.
func (w *Workspace) DeleteRow(pos int) error {
	if err := w.checkPos(pos); err != nil {
		return err
	}
	w.pushHistory()
	id := w.rows[pos].ID
	w.rows = append(w.rows[:pos:pos], w.rows[pos+1:]...)
	delete(w.decisions, id)
	delete(w.selected, id)
	w.touch()
	return nil
}

// Undo restores the most recent row snapshot. Decisions and selection are
// left as they are, except for entries whose row is no longer present.
func (w *Workspace) Undo() bool {
	if len(w.history) == 0 {
		return false
	}
	last := len(w.history) - 1
	w.rows = w.history[last]
	w.history = w.history[:last]
	w.prune()
	w.touch()
	return true
}

// CanUndo reports whether a snapshot is available.
func (w *Workspace) CanUndo() bool { return len(w.history) > 0 }

// HistoryLen is the number of stored snapshots.
func (w *Workspace) HistoryLen() int { return len(w.history) }

// SetDecision overrides the decision of the row at pos. Decisions are not
// recorded in the undo history.
func (w *Workspace) SetDecision(pos int, d domain.Decision) error {
	if err := w.checkPos(pos); err != nil {
		return err
	}
	if !d.Valid() {
		return domain.ErrInvalidDecision
	}
	w.decisions[w.rows[pos].ID] = d
	w.touch()
	return nil
}

// Decision returns the effective decision of the row at pos.
func (w *Workspace) Decision(pos int) (domain.Decision, error) {
	if err := w.checkPos(pos); err != nil {
		return "", err
	}
	return w.effective(pos), nil
}

// Decisions returns the effective decision of every row, by position.
func (w *Workspace) Decisions() []domain.Decision {
	out := make([]domain.Decision, len(w.rows))
	for i := range w.rows {
		out[i] = w.effective(i)
	}
	return out
}

// ToggleSelection flips the selection of the row at pos.
func (w *Workspace) ToggleSelection(pos int) error {
	if err := w.checkPos(pos); err != nil {
		return err
	}
	id := w.rows[pos].ID
	if _, ok := w.selected[id]; ok {
		delete(w.selected, id)
	} else {
		w.selected[id] = struct{}{}
	}
	w.touch()
	return nil
}

// ToggleSelectAll clears the selection when every row is selected and
// selects every row otherwise.
func (w *Workspace) ToggleSelectAll() {
	if len(w.rows) > 0 && len(w.selected) == len(w.rows) {
		w.selected = make(map[string]struct{})
	} else {
		w.selected = make(map[string]struct{}, len(w.rows))
		for _, r := range w.rows {
			w.selected[r.ID] = struct{}{}
		}
	}
	w.touch()
}

// ClearSelection deselects every row.
func (w *Workspace) ClearSelection() {
	w.selected = make(map[string]struct{})
	w.touch()
}

// Selected returns the selected positions in ascending order.
func (w *Workspace) Selected() []int {
	out := make([]int, 0, len(w.selected))
	for i, r := range w.rows {
		if _, ok := w.selected[r.ID]; ok {
			out = append(out, i)
		}
	}
	return out
}

// IsSelected reports whether the row at pos is selected.
func (w *Workspace) IsSelected(pos int) bool {
	if pos < 0 || pos >= len(w.rows) {
		return false
	}
	_, ok := w.selected[w.rows[pos].ID]
	return ok
}

// ApplyBulkDecision sets d on every selected row in one step, clears the
// selection and returns how many rows were set.
func (w *Workspace) ApplyBulkDecision(d domain.Decision) (int, error) {
	if !d.Valid() {
		return 0, domain.ErrInvalidDecision
	}
	n := 0
	for _, r := range w.rows {
		if _, ok := w.selected[r.ID]; ok {
			w.decisions[r.ID] = d
			n++
		}
	}
	w.selected = make(map[string]struct{})
	w.touch()
	return n, nil
}

func (w *Workspace) effective(pos int) domain.Decision {
	row := w.rows[pos]
	if d, ok := w.decisions[row.ID]; ok && d.Valid() {
		return d
	}
	return row.DefaultDecision()
}

func (w *Workspace) checkPos(pos int) error {
	if pos < 0 || pos >= len(w.rows) {
		return ErrRowOutOfRange
	}
	return nil
}

func (w *Workspace) pushHistory() {
	if len(w.history) >= HistoryLimit {
		w.history = append(w.history[:0:0], w.history[len(w.history)-HistoryLimit+1:]...)
	}
	w.history = append(w.history, cloneRows(w.rows))
}

func (w *Workspace) prune() {
	present := make(map[string]struct{}, len(w.rows))
	for _, r := range w.rows {
		present[r.ID] = struct{}{}
	}
	for id := range w.decisions {
		if _, ok := present[id]; !ok {
			delete(w.decisions, id)
		}
	}
	for id := range w.selected {
		if _, ok := present[id]; !ok {
			delete(w.selected, id)
		}
	}
}

func (w *Workspace) touch() {
	w.UpdatedAt = time.Now().UTC()
}

func cloneRows(rows []domain.CandidateRow) []domain.CandidateRow {
	out := make([]domain.CandidateRow, len(rows))
	copy(out, rows)
	return out
}

