package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/hybrid-memory/internal/embedding"
	"github.com/rcliao/hybrid-memory/internal/lexical"
	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/retrieval"
	"github.com/rcliao/hybrid-memory/internal/store"
	"github.com/rcliao/hybrid-memory/internal/summarizer"
	"github.com/rcliao/hybrid-memory/internal/vector"
)

// EngineOptions configures the engine.
type EngineOptions struct {
	// IndexDir holds the vector artifact pair. Empty keeps the index in memory only.
	IndexDir         string
	DefaultDimension int
	CompactRatio     float64
	TopK             int
	Retrieval        retrieval.Options
}

// Engine owns the derived indexes and keeps them consistent with the record store.
// Long-term mutations hold mu across the store write, the index fan-out and the
// artifact persist, so the persisted generation always matches the index contents.
type Engine struct {
	store      RecordStore
	embedder   embedding.Embedder
	summarizer summarizer.Summarizer
	opts       EngineOptions
	log        logrus.FieldLogger
	rec        Recorder

	mu        sync.Mutex
	vec       *vector.Index
	retriever *retrieval.Retriever
	dirty     atomic.Bool
}

// NewEngine creates an engine. embedder and sum may be nil.
func NewEngine(st RecordStore, emb embedding.Embedder, sum summarizer.Summarizer, opts EngineOptions, log logrus.FieldLogger) *Engine {
	if opts.DefaultDimension <= 0 {
		opts.DefaultDimension = vector.DefaultDimension
	}
	if opts.CompactRatio <= 0 {
		opts.CompactRatio = 0.3
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(os.Stderr)
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	e := &Engine{
		store:      st,
		embedder:   emb,
		summarizer: sum,
		opts:       opts,
		log:        log.WithField("component", "memory"),
		rec:        nopRecorder{},
	}
	e.vec = vector.New(opts.DefaultDimension)
	e.retriever = retrieval.New(lexical.NewDefault(), e.vec, opts.Retrieval, e.log)
	return e
}

// SetRecorder installs a metrics recorder.
func (e *Engine) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	e.rec = r
}

// Init fixes the vector dimension, loads the persisted vector artifact and
// brings both indexes in line with the record store.
func (e *Engine) Init(ctx context.Context) error {
	dim := e.opts.DefaultDimension
	if e.embedder != nil {
		probed, err := embedding.Probe(ctx, e.embedder)
		if err != nil {
			e.log.WithError(err).WithField("dim", dim).Warn("embedding probe failed, using default dimension")
		} else {
			dim = probed
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	vec := vector.New(dim)
	if e.opts.IndexDir != "" {
		loaded, err := vector.Load(e.opts.IndexDir, dim)
		switch {
		case err == nil:
		case errors.Is(err, os.ErrNotExist):
			e.log.WithField("dir", e.opts.IndexDir).Info("no vector index on disk, starting empty")
		default:
			e.log.WithError(err).Warn("vector index unreadable, starting empty")
		}
		vec = loaded
	}
	e.vec = vec
	e.retriever = retrieval.New(lexical.NewDefault(), vec, e.opts.Retrieval, e.log)

	memories, err := e.store.ActiveLongTerm(ctx)
	if err != nil {
		return err
	}
	gen, err := e.store.Generation(ctx)
	if err != nil {
		return err
	}

	ids, texts, vectors := corpus(memories)
	if vec.Generation() == gen && vec.Count() == countEmbedded(vectors, dim) {
		// Vector artifact is current; the lexical side is never persisted.
		e.retriever.RebuildLexical(ids, texts)
	} else {
		e.log.WithFields(logrus.Fields{
			"artifact_generation": vec.Generation(),
			"store_generation":    gen,
		}).Info("vector index stale, rebuilding from store")
		if err := e.retriever.Rebuild(ids, texts, vectors); err != nil {
			return err
		}
		e.persistLocked(ctx)
	}

	e.reportSizes()
	e.log.WithFields(logrus.Fields{
		"memories":  len(memories),
		"vectors":   vec.Count(),
		"dimension": dim,
	}).Info("memory engine ready")
	return nil
}

// Close persists the vector index.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.opts.IndexDir == "" {
		return nil
	}
	gen, err := e.store.Generation(ctx)
	if err != nil {
		return err
	}
	return e.vec.Persist(e.opts.IndexDir, gen)
}

// Dimension returns the vector dimension fixed at Init.
func (e *Engine) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vec.Dimension()
}

// Dirty reports whether a fan-out failed since the last rebuild.
func (e *Engine) Dirty() bool {
	return e.dirty.Load()
}

// NewMemory is an explicit long-term insertion.
type NewMemory struct {
	SessionID        string
	PersonaID        string
	Content          string
	CanonicalSummary string
	PersonaSummary   string
	Importance       *float64  // nil asks the summarizer, falling back to the default
	Embedding        []float32 // nil asks the embedder

	prepared bool
}

// prepare fills in the embedding and importance score nm leaves open. Failures
// leave them unset. Afterwards AddLongTerm makes no collaborator calls for nm.
func (e *Engine) prepare(ctx context.Context, nm *NewMemory) {
	if nm.prepared {
		return
	}
	nm.prepared = true
	if nm.Embedding == nil {
		nm.Embedding = e.embed(ctx, nm.Content)
	}
	if nm.Importance == nil && e.summarizer != nil {
		score, err := e.summarizer.ScoreImportance(ctx, nm.Content)
		if err != nil {
			e.log.WithError(err).Warn("importance scoring failed, using default")
		} else {
			nm.Importance = &score
		}
	}
}

// AddLongTerm stores a memory and indexes it. A missing embedding or a failed
// importance score degrades the memory, it never fails the insert.
func (e *Engine) AddLongTerm(ctx context.Context, nm NewMemory) (*model.LongTermMemory, error) {
	if nm.SessionID == "" || nm.Content == "" {
		return nil, fmt.Errorf("%w: session id and content are required", model.ErrInvalidInput)
	}
	e.prepare(ctx, &nm)
	vec, importance := nm.Embedding, nm.Importance

	e.mu.Lock()
	defer e.mu.Unlock()

	if vec != nil && len(vec) != e.vec.Dimension() {
		e.log.WithFields(logrus.Fields{"dim": len(vec), "want": e.vec.Dimension()}).
			Warn("dropping embedding of wrong dimension")
		vec = nil
	}

	m, err := e.store.AddLongTerm(ctx, store.LongTermParams{
		SessionID:        nm.SessionID,
		PersonaID:        nm.PersonaID,
		Content:          nm.Content,
		CanonicalSummary: nm.CanonicalSummary,
		PersonaSummary:   nm.PersonaSummary,
		Embedding:        vec,
		Importance:       importance,
	})
	if err != nil {
		return nil, err
	}

	e.indexLocked(ctx, m.ID, m.Content, m.Embedding)
	e.log.WithFields(logrus.Fields{
		"memory_id":  m.ID,
		"session_id": m.SessionID,
		"embedded":   m.HasEmbedding(),
	}).Debug("long-term memory added")
	return m, nil
}

// Get returns an active memory and counts the access.
func (e *Engine) Get(ctx context.Context, id int64) (*model.LongTermMemory, error) {
	return e.store.GetLongTerm(ctx, id)
}

// Update is an explicit edit. Nil fields are unchanged.
type Update struct {
	Content          *string
	CanonicalSummary *string
	PersonaSummary   *string
	Importance       *float64
}

// Update edits a memory and re-indexes it when its content changes.
func (e *Engine) Update(ctx context.Context, id int64, u Update) (*model.LongTermMemory, error) {
	current, err := e.store.PeekLongTerm(ctx, id, false)
	if err != nil {
		return nil, err
	}

	patch := store.LongTermPatch{
		Content:          u.Content,
		CanonicalSummary: u.CanonicalSummary,
		PersonaSummary:   u.PersonaSummary,
		Importance:       u.Importance,
	}
	contentChanged := u.Content != nil && *u.Content != current.Content
	if u.Content != nil && *u.Content == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", model.ErrInvalidInput)
	}
	if contentChanged {
		if vec := e.embed(ctx, *u.Content); vec != nil {
			patch.Embedding = vec
		} else {
			// The old vector no longer describes the content.
			patch.ClearEmbedding = true
		}
	}
	if patch.Empty() {
		return current, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if patch.Embedding != nil && len(patch.Embedding) != e.vec.Dimension() {
		patch.Embedding = nil
		patch.ClearEmbedding = true
	}

	m, err := e.store.UpdateLongTerm(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	if contentChanged {
		e.indexLocked(ctx, m.ID, m.Content, m.Embedding)
	} else {
		e.persistLocked(ctx)
	}
	return m, nil
}

// Delete archives a memory and removes it from both indexes.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.ArchiveLongTerm(ctx, id); err != nil {
		return err
	}
	e.retriever.Remove(id)
	e.persistLocked(ctx)
	e.reportSizes()
	e.log.WithField("memory_id", id).Debug("long-term memory deleted")
	return nil
}

// indexLocked fans a stored memory out to both indexes and persists the vector
// artifact. Failures leave a partial state and mark the engine dirty.
func (e *Engine) indexLocked(ctx context.Context, id int64, text string, vec []float32) {
	if err := e.retriever.Add(id, text, vec); err != nil {
		e.markDirty("add", err, logrus.Fields{"memory_id": id})
	}
	e.persistLocked(ctx)
	e.reportSizes()
}

func (e *Engine) persistLocked(ctx context.Context) {
	if e.opts.IndexDir == "" {
		return
	}
	gen, err := e.store.Generation(ctx)
	if err != nil {
		e.markDirty("persist", err, nil)
		return
	}
	if err := e.vec.Persist(e.opts.IndexDir, gen); err != nil {
		e.markDirty("persist", err, nil)
	}
}

func (e *Engine) markDirty(op string, err error, fields logrus.Fields) {
	e.dirty.Store(true)
	e.rec.IncIndexFailure(op)
	e.log.WithFields(fields).WithError(err).WithField("op", op).Warn("index fan-out failed, marked dirty")
}

// embed returns nil when no embedder is configured or the call fails.
func (e *Engine) embed(ctx context.Context, text string) []float32 {
	if e.embedder == nil {
		return nil
	}
	v, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.log.WithError(err).Warn("embedding failed, memory is lexical-only")
		return nil
	}
	return v
}

func (e *Engine) reportSizes() {
	st := e.retriever.Stats()
	e.rec.SetIndexSizes(st.LexicalCount, st.VectorCount, st.OrphanRatio)
}

func corpus(memories []model.LongTermMemory) (ids []int64, texts []string, vectors [][]float32) {
	ids = make([]int64, len(memories))
	texts = make([]string, len(memories))
	vectors = make([][]float32, len(memories))
	for i, m := range memories {
		ids[i] = m.ID
		texts[i] = m.Content
		vectors[i] = m.Embedding
	}
	return ids, texts, vectors
}

func countEmbedded(vectors [][]float32, dim int) int {
	n := 0
	for _, v := range vectors {
		if len(v) == dim {
			n++
		}
	}
	return n
}
