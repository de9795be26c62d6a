package workspace

import (
	"strings"

	"governance-api/domain"
)

// Row status labels, in display precedence.
const (
	LabelSkipped   = "SKIPPED"
	LabelRequired  = "REQUIRED"
	LabelDuplicate = "DUPLICATE"
	LabelUpdated   = "UPDATED"
	LabelConflict  = "CONFLICT"
	LabelReady     = "READY"
)

// generalDepartment is the catch-all department name that does not count as
// a real assignment target.
const generalDepartment = "General"

// RowState is the derived status of one row.
type RowState struct {
	Position           int             `json:"position"`
	ID                 string          `json:"id"`
	Decision           domain.Decision `json:"decision"`
	Selected           bool            `json:"selected"`
	MissingTitle       bool            `json:"missingTitle"`
	Duplicate          bool            `json:"duplicate"`
	DepartmentMismatch bool            `json:"departmentMismatch"`
	Label              string          `json:"label"`
}

// Summary counts rows by effective decision.
type Summary struct {
	Total  int `json:"total"`
	Append int `json:"append"`
	Update int `json:"update"`
	Skip   int `json:"skip"`
}

// Evaluation is the full derived state of a workspace.
type Evaluation struct {
	Rows      []RowState `json:"rows"`
	Summary   Summary    `json:"summary"`
	SyncReady bool       `json:"syncReady"`
}

// Evaluate recomputes row flags, counts and sync readiness from the current
// rows and decisions. Skipped rows get informational flags but never block
// readiness.
func (w *Workspace) Evaluate() Evaluation {
	decisions := w.Decisions()
	titles := make(map[string]int, len(w.rows))
	for i, r := range w.rows {
		if decisions[i] == domain.DecisionSkip {
			continue
		}
		if key := r.TitleKey(); key != "" {
			titles[key]++
		}
	}

	ev := Evaluation{Rows: make([]RowState, len(w.rows)), SyncReady: len(w.rows) > 0}
	ev.Summary.Total = len(w.rows)
	for i, r := range w.rows {
		d := decisions[i]
		skipped := d == domain.DecisionSkip
		key := r.TitleKey()
		others := titles[key]
		if !skipped {
			others--
		}
		st := RowState{
			Position:           i,
			ID:                 r.ID,
			Decision:           d,
			Selected:           w.IsSelected(i),
			MissingTitle:       key == "",
			Duplicate:          key != "" && others > 0,
			DepartmentMismatch: departmentMismatch(r),
		}
		st.Label = label(r, st)
		ev.Rows[i] = st

		switch d {
		case domain.DecisionAppend:
			ev.Summary.Append++
		case domain.DecisionUpdate:
			ev.Summary.Update++
		case domain.DecisionSkip:
			ev.Summary.Skip++
		}
		if !skipped && (st.MissingTitle || st.Duplicate) {
			ev.SyncReady = false
		}
	}
	return ev
}

// SyncReady reports whether the workspace may be committed.
func (w *Workspace) SyncReady() bool {
	return w.Evaluate().SyncReady
}

func label(r domain.CandidateRow, st RowState) string {
	switch {
	case st.Decision == domain.DecisionSkip:
		return LabelSkipped
	case st.MissingTitle:
		return LabelRequired
	case st.Duplicate:
		return LabelDuplicate
	case r.Exists && st.Decision == domain.DecisionUpdate:
		return LabelUpdated
	case r.Exists:
		return LabelConflict
	}
	return LabelReady
}

func departmentMismatch(r domain.CandidateRow) bool {
	if strings.TrimSpace(r.AssigneeEmail) == "" {
		return false
	}
	dept := strings.TrimSpace(r.DepartmentName)
	return dept == "" || dept == generalDepartment
}
