// Package memory ties the record store, the hybrid retriever and the
// collaborators together: explicit memory CRUD and search, session
// buffering with distillation, reclamation and context assembly.
package memory

import (
	"context"
	"time"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/store"
)

// RecordStore is the subset of the record store the engine uses.
type RecordStore interface {
	AddShortTerm(ctx context.Context, sessionID, personaID, content string) (*model.ShortTermMemory, error)
	ListShortTerm(ctx context.Context, sessionID string, limit int) ([]model.ShortTermMemory, error)
	ArchiveShortTerm(ctx context.Context, ids ...int64) (int, error)
	ClearShortTerm(ctx context.Context, sessionID string) (int, error)

	AddLongTerm(ctx context.Context, p store.LongTermParams) (*model.LongTermMemory, error)
	GetLongTerm(ctx context.Context, id int64) (*model.LongTermMemory, error)
	PeekLongTerm(ctx context.Context, id int64, includeArchived bool) (*model.LongTermMemory, error)
	UpdateLongTerm(ctx context.Context, id int64, p store.LongTermPatch) (*model.LongTermMemory, error)
	ArchiveLongTerm(ctx context.Context, id int64) error
	ListLongTerm(ctx context.Context, p store.ListParams) ([]model.LongTermMemory, error)
	OldMemories(ctx context.Context, cutoff time.Time, limit int) ([]model.LongTermMemory, error)
	ActiveLongTerm(ctx context.Context) ([]model.LongTermMemory, error)
	SetEmbedding(ctx context.Context, id int64, vec []float32) error

	TouchConversation(ctx context.Context, id, personaID string, delta int) error
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	Stats(ctx context.Context) (*store.Stats, error)
	Generation(ctx context.Context) (int64, error)
}

var _ RecordStore = (*store.SQLiteStore)(nil)

// Recorder receives operational measurements. The metrics package implements it.
type Recorder interface {
	ObserveSearch(mode string, d time.Duration, results int)
	ObserveDistillation(result string, d time.Duration)
	AddReclaimed(n int)
	IncIndexFailure(op string)
	SetIndexSizes(lexical, vector int, orphanRatio float64)
	SetSessions(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSearch(string, time.Duration, int) {}
func (nopRecorder) ObserveDistillation(string, time.Duration) {}
func (nopRecorder) AddReclaimed(int) {}
func (nopRecorder) IncIndexFailure(string) {}
func (nopRecorder) SetIndexSizes(int, int, float64) {}
func (nopRecorder) SetSessions(int) {}
