// Package store provides the durable record store for short-term and long-term memories.
package store

import (
	"time"
)

// LongTermParams holds parameters for inserting a long-term memory.
type LongTermParams struct {
	SessionID        string
	PersonaID        string
	Content          string
	CanonicalSummary string
	PersonaSummary   string
	Embedding        []float32
	Importance       *float64  // nil means model.DefaultImportance
	CreatedAt        time.Time // zero means now
}

// LongTermPatch holds the fields of an explicit edit. Nil fields are left unchanged.
type LongTermPatch struct {
	Content          *string
	CanonicalSummary *string
	PersonaSummary   *string
	Importance       *float64
	Embedding        []float32
	ClearEmbedding   bool
}

// Empty reports whether the patch changes nothing.
func (p LongTermPatch) Empty() bool {
	return p.Content == nil && p.CanonicalSummary == nil && p.PersonaSummary == nil &&
		p.Importance == nil && p.Embedding == nil && !p.ClearEmbedding
}

// ListParams filters long-term listings.
type ListParams struct {
	SessionID string
	PersonaID string
	Status    string // empty means active
	Limit     int    // 0 means 100, negative means unlimited
}
