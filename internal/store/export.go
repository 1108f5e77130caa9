package store

import (
	"context"
	"time"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// ExportRecord is the portable form of a long-term memory. Unlike the model it carries the embedding.
type ExportRecord struct {
	SessionID        string    `json:"session_id"`
	PersonaID        string    `json:"persona_id,omitempty"`
	Content          string    `json:"content"`
	CanonicalSummary string    `json:"canonical_summary,omitempty"`
	PersonaSummary   string    `json:"persona_summary,omitempty"`
	Embedding        []float32 `json:"embedding,omitempty"`
	Importance       float64   `json:"importance"`
	CreatedAt        time.Time `json:"created_at"`
}

// ExportAll returns all active long-term memories, optionally for one session.
func (s *SQLiteStore) ExportAll(ctx context.Context, sessionID string) ([]ExportRecord, error) {
	var memories []model.LongTermMemory
	var err error
	if sessionID == "" {
		memories, err = s.ActiveLongTerm(ctx)
	} else {
		memories, err = s.ListLongTerm(ctx, ListParams{SessionID: sessionID, Limit: -1})
	}
	if err != nil {
		return nil, err
	}

	records := make([]ExportRecord, 0, len(memories))
	for _, m := range memories {
		records = append(records, ExportRecord{
			SessionID:        m.SessionID,
			PersonaID:        m.PersonaID,
			Content:          m.Content,
			CanonicalSummary: m.CanonicalSummary,
			PersonaSummary:   m.PersonaSummary,
			Embedding:        m.Embedding,
			Importance:       m.Importance,
			CreatedAt:        m.CreatedAt,
		})
	}
	return records, nil
}

// Import inserts exported records as new memories and returns them.
// Stops at the first failure; the memories inserted so far are returned with the error.
func (s *SQLiteStore) Import(ctx context.Context, records []ExportRecord) ([]model.LongTermMemory, error) {
	imported := make([]model.LongTermMemory, 0, len(records))
	for _, r := range records {
		importance := r.Importance
		m, err := s.AddLongTerm(ctx, LongTermParams{
			SessionID:        r.SessionID,
			PersonaID:        r.PersonaID,
			Content:          r.Content,
			CanonicalSummary: r.CanonicalSummary,
			PersonaSummary:   r.PersonaSummary,
			Embedding:        r.Embedding,
			Importance:       &importance,
			CreatedAt:        r.CreatedAt,
		})
		if err != nil {
			return imported, err
		}
		imported = append(imported, *m)
	}
	return imported, nil
}
