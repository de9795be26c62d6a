package workspace

import "governance-api/domain"

// BuildBatch lists every non-skipped row, in order, tagged with its
// effective decision.
func BuildBatch(w *Workspace) []domain.SyncTask {
	decisions := w.Decisions()
	batch := make([]domain.SyncTask, 0, len(w.rows))
	for i, r := range w.rows {
		if decisions[i] == domain.DecisionSkip {
			continue
		}
		batch = append(batch, domain.SyncTask{
			Title:          r.Title,
			Description:    r.Description,
			DepartmentName: r.DepartmentName,
			AssigneeEmail:  r.AssigneeEmail,
			Exists:         r.Exists,
			Action:         decisions[i],
		})
	}
	return batch
}

// NeedsConfirmation reports whether the batch overwrites existing tasks.
func NeedsConfirmation(batch []domain.SyncTask) bool {
	for _, t := range batch {
		if t.Action == domain.DecisionUpdate {
			return true
		}
	}
	return false
}
