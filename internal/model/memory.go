// Package model defines the core memory data types.
package model

import "time"

// Status values shared by short-term, long-term and conversation rows.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
	StatusDeleted  = "deleted"
)

// DefaultImportance is used when a memory has not been scored.
const DefaultImportance = 0.5

// ShortTermMemory is a single ingested turn persisted while its session is active.
type ShortTermMemory struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	PersonaID string    `json:"persona_id,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Status    string    `json:"status"`
}

// LongTermMemory is a durable distilled fact record.
type LongTermMemory struct {
	ID               int64      `json:"id"`
	SessionID        string     `json:"session_id"`
	PersonaID        string     `json:"persona_id,omitempty"`
	Content          string     `json:"content"`
	CanonicalSummary string     `json:"canonical_summary,omitempty"`
	PersonaSummary   string     `json:"persona_summary,omitempty"`
	Embedding        []float32  `json:"-"`
	Importance       float64    `json:"importance"`
	AccessCount      int        `json:"access_count"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	LastAccessedAt   *time.Time `json:"last_accessed_at,omitempty"`
	Status           string     `json:"status"`
	Score            float64    `json:"score,omitempty"`
}

// HasEmbedding reports whether the memory carries a vector.
func (m *LongTermMemory) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// Conversation tracks one session seen by the host surface.
type Conversation struct {
	ID           string    `json:"id"`
	PersonaID    string    `json:"persona_id,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Status       string    `json:"status"`
}

// Turn is one message in a session buffer.
type Turn struct {
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	ShortTermID int64     `json:"short_term_id,omitempty"`
}

// ClampImportance bounds v to [0,1]. NaN becomes DefaultImportance.
func ClampImportance(v float64) float64 {
	if v != v {
		return DefaultImportance
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ValidRoles are the turn roles accepted by the host surface.
var ValidRoles = map[string]bool{
	"user":      true,
	"assistant": true,
	"system":    true,
}
