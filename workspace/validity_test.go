package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"governance-api/domain"
)

func TestDuplicateAfterTrimAndCaseFold(t *testing.T) {
	w := New("ev", "u", []domain.CandidateRow{{Title: "A"}, {Title: "a "}})
	assert.Equal(t, []domain.Decision{domain.DecisionAppend, domain.DecisionAppend}, w.Decisions())

	ev := w.Evaluate()
	assert.False(t, ev.SyncReady)
	assert.True(t, ev.Rows[0].Duplicate)
	assert.True(t, ev.Rows[1].Duplicate)
	assert.Equal(t, LabelDuplicate, ev.Rows[1].Label)

	require.NoError(t, w.SetDecision(1, domain.DecisionSkip))
	ev = w.Evaluate()
	assert.True(t, ev.SyncReady)
	assert.False(t, ev.Rows[0].Duplicate)
	assert.True(t, ev.Rows[1].Duplicate, "skipped rows keep informational flags")
	assert.Equal(t, LabelSkipped, ev.Rows[1].Label)

	require.NoError(t, w.SetDecision(1, domain.DecisionAppend))
	require.NoError(t, w.EditField(1, FieldTitle, "b"))
	assert.True(t, w.SyncReady())
}

func TestMissingTitleBlocksUnlessSkipped(t *testing.T) {
	w := New("ev", "u", rowsNamed("A", "  "))
	ev := w.Evaluate()
	assert.False(t, ev.SyncReady)
	assert.True(t, ev.Rows[1].MissingTitle)
	assert.Equal(t, LabelRequired, ev.Rows[1].Label)

	require.NoError(t, w.SetDecision(1, domain.DecisionSkip))
	assert.True(t, w.SyncReady())
}

func TestEmptyWorkspaceIsNotReady(t *testing.T) {
	assert.False(t, New("ev", "u", nil).SyncReady())
}

func TestAllSkippedIsReady(t *testing.T) {
	w := New("ev", "u", rowsNamed("", ""))
	w.ToggleSelectAll()
	_, err := w.ApplyBulkDecision(domain.DecisionSkip)
	require.NoError(t, err)
	assert.True(t, w.SyncReady())
}

func TestSyncReadinessMatchesDefinition(t *testing.T) {
	titles := []string{"", " ", "A", "a", "B", " b "}
	decisions := []domain.Decision{domain.DecisionAppend, domain.DecisionUpdate, domain.DecisionSkip}
	for _, t1 := range titles {
		for _, t2 := range titles {
			for _, t3 := range titles {
				for mask := 0; mask < 27; mask++ {
					w := New("ev", "u", rowsNamed(t1, t2, t3))
					m := mask
					for i := 0; i < 3; i++ {
						require.NoError(t, w.SetDecision(i, decisions[m%3]))
						m /= 3
					}
					assert.Equal(t, expectedReady(w), w.SyncReady(), "%q %q %q %v", t1, t2, t3, w.Decisions())
				}
			}
		}
	}
}

func expectedReady(w *Workspace) bool {
	seen := map[string]bool{}
	ds := w.Decisions()
	for i, r := range w.Rows() {
		if ds[i] == domain.DecisionSkip {
			continue
		}
		key := r.TitleKey()
		if key == "" || seen[key] {
			return false
		}
		seen[key] = true
	}
	return w.Len() > 0
}

func TestLabelsAndSummary(t *testing.T) {
	w := New("ev", "u", []domain.CandidateRow{
		{Title: "Existing", Exists: true},
		{Title: "Existing twice", Exists: true, SuggestedAction: domain.DecisionAppend},
		{Title: "Fresh", AssigneeEmail: "x@y.z", DepartmentName: "General"},
		{Title: "Drop me"},
	})
	require.NoError(t, w.SetDecision(3, domain.DecisionSkip))
	ev := w.Evaluate()

	labels := make([]string, 0, len(ev.Rows))
	for _, r := range ev.Rows {
		labels = append(labels, r.Label)
	}
	assert.Equal(t, []string{LabelUpdated, LabelConflict, LabelReady, LabelSkipped}, labels)
	assert.True(t, ev.Rows[2].DepartmentMismatch)
	assert.False(t, ev.Rows[0].DepartmentMismatch)
	assert.Equal(t, Summary{Total: 4, Append: 2, Update: 1, Skip: 1}, ev.Summary)
}

func TestBuildBatch(t *testing.T) {
	w := New("ev", "u", []domain.CandidateRow{
		{Title: "A", Description: "d", DepartmentName: "Civil", AssigneeEmail: "a@x.io"},
		{Title: "B", Exists: true},
		{Title: "C"},
	})
	require.NoError(t, w.SetDecision(2, domain.DecisionSkip))

	batch := BuildBatch(w)
	assert.Equal(t, []domain.SyncTask{
		{Title: "A", Description: "d", DepartmentName: "Civil", AssigneeEmail: "a@x.io", Action: domain.DecisionAppend},
		{Title: "B", Exists: true, Action: domain.DecisionUpdate},
	}, batch)
	assert.True(t, NeedsConfirmation(batch))
	assert.False(t, NeedsConfirmation(batch[:1]))
}
