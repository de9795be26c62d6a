package domain

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageRankOrder(t *testing.T) {
	for i, s := range Stages {
		assert.Equal(t, i, s.Rank(), "rank of %s", s)
	}
	assert.Equal(t, -1, Stage("ARCHIVED").Rank())
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage(" dept_approved ")
	require.NoError(t, err)
	assert.Equal(t, StageDeptApproved, s)

	_, err = ParseStage("DONE")
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestStageAt(t *testing.T) {
	s, ok := StageAt(5)
	require.True(t, ok)
	assert.Equal(t, StageClosed, s)

	_, ok = StageAt(6)
	assert.False(t, ok)
	_, ok = StageAt(-1)
	assert.False(t, ok)
}

func TestTaskMarshalUsesStatusName(t *testing.T) {
	payload, err := sonic.Marshal(Task{ID: "t1", Title: "Title", Status: StageCompleted})
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"status":"COMPLETED"`)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("admin")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, r)

	_, err = ParseRole("SUPERUSER")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestDefaultDecision(t *testing.T) {
	cases := map[string]struct {
		row  CandidateRow
		want Decision
	}{
		"suggestion wins":        {CandidateRow{Exists: true, SuggestedAction: DecisionAppend}, DecisionAppend},
		"existing row updates":   {CandidateRow{Exists: true}, DecisionUpdate},
		"new row appends":        {CandidateRow{}, DecisionAppend},
		"bogus suggestion falls": {CandidateRow{Exists: true, SuggestedAction: "MERGE"}, DecisionUpdate},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.row.DefaultDecision())
		})
	}
}

func TestTitleKeyTrimsAndFolds(t *testing.T) {
	assert.Equal(t, "a", CandidateRow{Title: " A "}.TitleKey())
}
