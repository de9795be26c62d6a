package domain

import (
	"errors"
	"strings"
)

// ErrInvalidDecision is returned for decision values outside APPEND/UPDATE/SKIP.
var ErrInvalidDecision = errors.New("invalid decision")

// Decision is what to do with a candidate row on commit.
type Decision string

const (
	DecisionAppend Decision = "APPEND"
	DecisionUpdate Decision = "UPDATE"
	DecisionSkip   Decision = "SKIP"
)

// Valid reports whether d is one of the three decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionAppend, DecisionUpdate, DecisionSkip:
		return true
	}
	return false
}

// ParseDecision accepts decision names case-insensitively.
func ParseDecision(raw string) (Decision, error) {
	d := Decision(strings.ToUpper(strings.TrimSpace(raw)))
	if !d.Valid() {
		return "", ErrInvalidDecision
	}
	return d, nil
}

// CandidateRow is one record parsed from an uploaded document.
type CandidateRow struct {
	ID              string   `json:"id,omitempty" yaml:"id,omitempty"`
	Title           string   `json:"title" yaml:"title"`
	Description     string   `json:"description" yaml:"description"`
	DepartmentName  string   `json:"departmentName" yaml:"departmentName"`
	AssigneeEmail   string   `json:"assigneeEmail" yaml:"assigneeEmail"`
	Exists          bool     `json:"exists,omitempty" yaml:"exists,omitempty"`
	SuggestedAction Decision `json:"suggestedAction,omitempty" yaml:"suggestedAction,omitempty"`
}

// DefaultDecision resolves the decision used when no override is set:
// the ingestion suggestion if it is a valid decision, else UPDATE for rows
// that matched an existing task, else APPEND.
func (r CandidateRow) DefaultDecision() Decision {
	if r.SuggestedAction.Valid() {
		return r.SuggestedAction
	}
	if r.Exists {
		return DecisionUpdate
	}
	return DecisionAppend
}

// TitleKey is the normalised title used for duplicate detection.
func (r CandidateRow) TitleKey() string {
	return strings.ToLower(strings.TrimSpace(r.Title))
}
