package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/rcliao/hybrid-memory/internal/model"
	"github.com/rcliao/hybrid-memory/internal/summarizer"
)

// SessionOptions configures buffering and distillation.
type SessionOptions struct {
	Enabled          bool // false stops automatic distillation; turns are still buffered
	MaxMessages      int
	SummaryThreshold int
	RetainTurns      int
	IdleTimeout      time.Duration
	MaxSessions      int
	SummaryTimeout   time.Duration
	TopK             int
	ContextBudget    int

	// RestoreFromStore seeds a session first seen by this process with its
	// active short-term rows, so buffering survives restarts and one-shot CLI calls.
	RestoreFromStore bool
}

// DefaultSessionOptions mirrors the configuration defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Enabled:          true,
		MaxMessages:      50,
		SummaryThreshold: 10,
		RetainTurns:      2,
		IdleTimeout:      24 * time.Hour,
		MaxSessions:      10000,
		SummaryTimeout:   60 * time.Second,
		TopK:             5,
		ContextBudget:    4000,
	}
}

// session is one buffered conversation. Everything but the registry linkage is guarded by mu.
type session struct {
	mu         sync.Mutex
	id         string
	personaID  string
	turns      []model.Turn
	counter    int
	lastActive time.Time
	evicted    bool
	restored   bool
}

// Manager owns the per-session buffers. The registry is bounded: when full,
// the least recently active idle session is evicted to make room.
type Manager struct {
	engine     *Engine
	summarizer summarizer.Summarizer
	opts       SessionOptions
	log        logrus.FieldLogger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager creates a session manager. sum may be nil, which disables distillation.
func NewManager(engine *Engine, sum summarizer.Summarizer, opts SessionOptions, log logrus.FieldLogger) *Manager {
	def := DefaultSessionOptions()
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = def.MaxMessages
	}
	if opts.SummaryThreshold <= 0 {
		opts.SummaryThreshold = def.SummaryThreshold
	}
	if opts.RetainTurns < 0 {
		opts.RetainTurns = 0
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = def.MaxSessions
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = def.IdleTimeout
	}
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = def.ContextBudget
	}
	if log == nil {
		log = engine.log
	}
	return &Manager{
		engine:     engine,
		summarizer: sum,
		opts:       opts,
		log:        log.WithField("component", "sessions"),
		now:        time.Now,
		sessions:   make(map[string]*session),
	}
}

// Engine returns the underlying engine.
func (m *Manager) Engine() *Engine {
	return m.engine
}

// NewSessionID returns a fresh sortable session id.
func NewSessionID() string {
	return ulid.Make().String()
}

// acquire returns the locked session for id, creating it if needed.
// The caller must unlock s.mu.
func (m *Manager) acquire(id string) *session {
	for {
		m.mu.Lock()
		s, ok := m.sessions[id]
		if !ok {
			if len(m.sessions) >= m.opts.MaxSessions {
				m.evictOldestLocked()
			}
			s = &session{id: id, lastActive: m.now()}
			m.sessions[id] = s
			m.engine.rec.SetSessions(len(m.sessions))
		}
		m.mu.Unlock()

		s.mu.Lock()
		if !s.evicted {
			return s
		}
		// Evicted between lookup and lock; retry against the registry.
		s.mu.Unlock()
	}
}

// evictOldestLocked drops the least recently active session that is not busy.
func (m *Manager) evictOldestLocked() {
	var oldest *session
	for _, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if oldest == nil || s.lastActive.Before(oldest.lastActive) {
			if oldest != nil {
				oldest.mu.Unlock()
			}
			oldest = s
			continue
		}
		s.mu.Unlock()
	}
	if oldest == nil {
		m.log.WithFields(logrus.Fields{"sessions": len(m.sessions), "max": m.opts.MaxSessions}).
			Warn("session registry full and every session busy, growing past limit")
		return
	}
	oldest.evicted = true
	delete(m.sessions, oldest.id)
	oldest.mu.Unlock()
	m.log.WithField("session_id", oldest.id).Info("session registry full, evicted least recently active")
}

// TurnInput is one inbound message from the host surface.
type TurnInput struct {
	SessionID string `json:"session_id"`
	PersonaID string `json:"persona_id,omitempty"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

// IngestResult reports what happened to a turn.
type IngestResult struct {
	SessionID   string `json:"session_id"`
	BufferLen   int    `json:"buffer_len"`
	Counter     int    `json:"counter"`
	ShortTermID int64  `json:"short_term_id"`
	Distilled   bool   `json:"distilled"`
	MemoryID    int64  `json:"memory_id,omitempty"`
	DistillErr  string `json:"distill_error,omitempty"`
}

// Ingest appends a turn to its session buffer, distilling once the threshold
// is reached. Turns of one session apply in call order. A distillation failure
// is reported in the result and leaves the buffer intact; only a failure to
// record the turn itself is returned as an error.
func (m *Manager) Ingest(ctx context.Context, in TurnInput) (*IngestResult, error) {
	if in.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", model.ErrInvalidInput)
	}
	if in.Content == "" {
		return nil, fmt.Errorf("%w: content is required", model.ErrInvalidInput)
	}
	if in.Role == "" {
		in.Role = "user"
	}
	if !model.ValidRoles[in.Role] {
		return nil, fmt.Errorf("%w: unknown role %q", model.ErrInvalidInput, in.Role)
	}

	s := m.acquire(in.SessionID)
	defer s.mu.Unlock()
	if !s.restored {
		s.restored = true
		if m.opts.RestoreFromStore {
			m.restore(ctx, s)
		}
	}

	st, err := m.engine.store.AddShortTerm(ctx, in.SessionID, in.PersonaID, in.Content)
	if err != nil {
		return nil, err
	}
	if err := m.engine.store.TouchConversation(ctx, in.SessionID, in.PersonaID, 1); err != nil {
		m.log.WithError(err).WithField("session_id", in.SessionID).Warn("conversation touch failed")
	}

	now := m.now()
	s.turns = append(s.turns, model.Turn{Role: in.Role, Content: in.Content, Timestamp: now, ShortTermID: st.ID})
	if over := len(s.turns) - m.opts.MaxMessages; over > 0 {
		dropped := make([]int64, 0, over)
		for _, t := range s.turns[:over] {
			if t.ShortTermID != 0 {
				dropped = append(dropped, t.ShortTermID)
			}
		}
		if _, err := m.engine.store.ArchiveShortTerm(ctx, dropped...); err != nil {
			m.log.WithError(err).WithField("session_id", s.id).Warn("archiving overflowed short-term rows failed")
		}
		s.turns = append([]model.Turn(nil), s.turns[over:]...)
	}
	s.counter++
	s.lastActive = now
	if in.PersonaID != "" {
		s.personaID = in.PersonaID
	}

	res := &IngestResult{SessionID: s.id, ShortTermID: st.ID}
	if m.shouldDistill(s) {
		id, err := m.distill(ctx, s)
		if err != nil {
			res.DistillErr = err.Error()
		} else {
			res.Distilled = true
			res.MemoryID = id
		}
	}
	res.BufferLen = len(s.turns)
	res.Counter = s.counter
	return res, nil
}

// restore loads the session's active short-term rows into its empty buffer.
// Rows carry no role, so restored turns render as user turns. Caller holds s.mu.
func (m *Manager) restore(ctx context.Context, s *session) {
	rows, err := m.engine.store.ListShortTerm(ctx, s.id, m.opts.MaxMessages)
	if err != nil {
		m.log.WithError(err).WithField("session_id", s.id).Warn("restoring session buffer failed")
		return
	}
	// Rows come newest first.
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		s.turns = append(s.turns, model.Turn{Content: r.Content, Timestamp: r.CreatedAt, ShortTermID: r.ID})
		if r.PersonaID != "" {
			s.personaID = r.PersonaID
		}
	}
	s.counter = len(s.turns)
	if len(rows) > 0 {
		m.log.WithFields(logrus.Fields{"session_id": s.id, "turns": len(rows)}).Debug("session buffer restored")
	}
}

func (m *Manager) shouldDistill(s *session) bool {
	return m.opts.Enabled && m.summarizer != nil &&
		s.counter >= m.opts.SummaryThreshold && len(s.turns) >= 2
}

// distill summarizes the buffer into a long-term memory. The summary, the
// importance score and the embedding all run under SummaryTimeout; running out
// of time in any of them fails the distillation. The buffer is only truncated
// after the memory is stored. Caller holds s.mu.
func (m *Manager) distill(ctx context.Context, s *session) (int64, error) {
	start := time.Now()
	log := m.log.WithFields(logrus.Fields{"session_id": s.id, "turns": len(s.turns)})

	turns := append([]model.Turn(nil), s.turns...)
	sctx := ctx
	if m.opts.SummaryTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, m.opts.SummaryTimeout)
		defer cancel()
	}

	sum, err := m.summarizer.Summarize(sctx, turns)
	if err == nil && (sum.Canonical == "" && sum.Persona == "") {
		err = fmt.Errorf("%w: empty summary", model.ErrSummarization)
	}
	if err != nil {
		if sctx.Err() != nil {
			err = fmt.Errorf("%w: %w", model.ErrSummarization, sctx.Err())
		}
		m.engine.rec.ObserveDistillation("error", time.Since(start))
		log.WithError(err).Warn("distillation failed, buffer kept")
		return 0, err
	}

	nm := NewMemory{
		SessionID:        s.id,
		PersonaID:        s.personaID,
		Content:          sum.Content(),
		CanonicalSummary: sum.Canonical,
		PersonaSummary:   sum.Persona,
	}
	m.engine.prepare(sctx, &nm)
	if err := sctx.Err(); err != nil {
		err = fmt.Errorf("%w: scoring distilled memory: %w", model.ErrSummarization, err)
		m.engine.rec.ObserveDistillation("error", time.Since(start))
		log.WithError(err).Warn("distillation failed, buffer kept")
		return 0, err
	}

	mem, err := m.engine.AddLongTerm(ctx, nm)
	if err != nil {
		m.engine.rec.ObserveDistillation("error", time.Since(start))
		log.WithError(err).Warn("storing distilled memory failed, buffer kept")
		return 0, err
	}

	keep := m.opts.RetainTurns
	if keep > len(s.turns) {
		keep = len(s.turns)
	}
	consumed := s.turns[:len(s.turns)-keep]
	ids := make([]int64, 0, len(consumed))
	for _, t := range consumed {
		if t.ShortTermID != 0 {
			ids = append(ids, t.ShortTermID)
		}
	}
	if _, err := m.engine.store.ArchiveShortTerm(ctx, ids...); err != nil {
		log.WithError(err).Warn("archiving distilled short-term rows failed")
	}

	s.turns = append([]model.Turn(nil), s.turns[len(s.turns)-keep:]...)
	s.counter = len(s.turns)

	m.engine.rec.ObserveDistillation("ok", time.Since(start))
	log.WithField("memory_id", mem.ID).Info("session distilled")
	return mem.ID, nil
}

// Distill forces distillation of a session regardless of the threshold.
func (m *Manager) Distill(ctx context.Context, sessionID string) (int64, error) {
	if m.summarizer == nil {
		return 0, fmt.Errorf("%w: no summarizer configured", model.ErrSummarization)
	}
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok && !m.opts.RestoreFromStore {
		return 0, fmt.Errorf("%w: session %s", model.ErrNotFound, sessionID)
	}

	s := m.acquire(sessionID)
	defer s.mu.Unlock()
	if !s.restored {
		s.restored = true
		if m.opts.RestoreFromStore {
			m.restore(ctx, s)
		}
	}
	if !ok && len(s.turns) == 0 {
		m.dropLocked(s)
		return 0, fmt.Errorf("%w: session %s", model.ErrNotFound, sessionID)
	}
	if len(s.turns) < 2 {
		return 0, fmt.Errorf("%w: session %s has fewer than 2 buffered turns", model.ErrInvalidInput, sessionID)
	}
	return m.distill(ctx, s)
}

// dropLocked removes s from the registry. Caller holds s.mu.
func (m *Manager) dropLocked(s *session) {
	m.mu.Lock()
	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
	}
	m.engine.rec.SetSessions(len(m.sessions))
	m.mu.Unlock()
	s.evicted = true
}

// EvictIdle drops sessions inactive for longer than the idle timeout.
// Sessions busy with a turn are skipped. Durable memories are untouched.
func (m *Manager) EvictIdle(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if now.Sub(s.lastActive) > m.opts.IdleTimeout {
			s.evicted = true
			delete(m.sessions, id)
			n++
		}
		s.mu.Unlock()
	}
	if n > 0 {
		m.log.WithField("evicted", n).Info("idle sessions evicted")
	}
	m.engine.rec.SetSessions(len(m.sessions))
	return n
}

// ClearSession drops the session buffer and archives its short-term rows.
func (m *Manager) ClearSession(ctx context.Context, sessionID string) (int, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		s.mu.Lock()
		m.dropLocked(s)
		s.mu.Unlock()
	}

	n, err := m.engine.store.ClearShortTerm(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	m.log.WithFields(logrus.Fields{"session_id": sessionID, "archived": n}).Info("session cleared")
	return n, nil
}

// Conversation returns the persisted conversation record for a session.
func (m *Manager) Conversation(ctx context.Context, sessionID string) (*model.Conversation, error) {
	return m.engine.store.GetConversation(ctx, sessionID)
}

// Buffer returns a copy of a session's buffered turns.
func (m *Manager) Buffer(sessionID string) ([]model.Turn, bool) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.evicted {
		return nil, false
	}
	return append([]model.Turn(nil), s.turns...), true
}

// SessionInfo describes one live session.
type SessionInfo struct {
	ID         string    `json:"id"`
	PersonaID  string    `json:"persona_id,omitempty"`
	BufferLen  int       `json:"buffer_len"`
	Counter    int       `json:"counter"`
	LastActive time.Time `json:"last_active"`
}

// Sessions lists live sessions, most recently active first.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	list := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	m.mu.Unlock()

	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		s.mu.Lock()
		if !s.evicted {
			out = append(out, SessionInfo{
				ID:         s.id,
				PersonaID:  s.personaID,
				BufferLen:  len(s.turns),
				Counter:    s.counter,
				LastActive: s.lastActive,
			})
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActive.After(out[j].LastActive)
	})
	return out
}
