package workspace

import (
	"time"

	"governance-api/domain"
)

// document is the persisted form of a workspace.
type document struct {
	ID        string                     `json:"id"`
	EventID   string                     `json:"eventId"`
	OwnerID   string                     `json:"ownerId"`
	Version   int64                      `json:"version"`
	CreatedAt time.Time                  `json:"createdAt"`
	UpdatedAt time.Time                  `json:"updatedAt"`
	Rows      []domain.CandidateRow      `json:"rows"`
	Decisions map[string]domain.Decision `json:"decisions"`
	Selected  []string                   `json:"selected,omitempty"`
	History   [][]domain.CandidateRow    `json:"history,omitempty"`
}

func (w *Workspace) toDocument() document {
	doc := document{
		ID:        w.ID,
		EventID:   w.EventID,
		OwnerID:   w.OwnerID,
		Version:   w.Version,
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
		Rows:      w.rows,
		Decisions: w.decisions,
		History:   w.history,
	}
	for _, r := range w.rows {
		if _, ok := w.selected[r.ID]; ok {
			doc.Selected = append(doc.Selected, r.ID)
		}
	}
	return doc
}

func fromDocument(doc document) *Workspace {
	w := &Workspace{
		ID:        doc.ID,
		EventID:   doc.EventID,
		OwnerID:   doc.OwnerID,
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		rows:      doc.Rows,
		decisions: doc.Decisions,
		selected:  make(map[string]struct{}, len(doc.Selected)),
		history:   doc.History,
	}
	if w.rows == nil {
		w.rows = []domain.CandidateRow{}
	}
	if w.decisions == nil {
		w.decisions = make(map[string]domain.Decision)
	}
	for _, id := range doc.Selected {
		w.selected[id] = struct{}{}
	}
	if len(w.history) > HistoryLimit {
		w.history = w.history[len(w.history)-HistoryLimit:]
	}
	w.prune()
	return w
}
