package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// AddLongTerm inserts a long-term memory. Importance is clamped to [0,1].
func (s *SQLiteStore) AddLongTerm(ctx context.Context, p LongTermParams) (*model.LongTermMemory, error) {
	now := time.Now().UTC()
	created := now
	if !p.CreatedAt.IsZero() {
		created = p.CreatedAt.UTC()
	}
	importance := model.DefaultImportance
	if p.Importance != nil {
		importance = model.ClampImportance(*p.Importance)
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO long_term_memories
			 (session_id, persona_id, content, canonical_summary, persona_summary, embedding,
			  importance, access_count, created_at, updated_at, status)
			 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			p.SessionID, nullString(p.PersonaID), p.Content, nullString(p.CanonicalSummary),
			nullString(p.PersonaSummary), encodeVector(p.Embedding), importance,
			formatTime(created), formatTime(now), model.StatusActive)
		if err != nil {
			return err
		}
		if id, err = res.LastInsertId(); err != nil {
			return err
		}
		return bumpGeneration(ctx, tx)
	})
	if err != nil {
		return nil, storeErr("insert long-term memory", err)
	}

	return &model.LongTermMemory{
		ID:               id,
		SessionID:        p.SessionID,
		PersonaID:        p.PersonaID,
		Content:          p.Content,
		CanonicalSummary: p.CanonicalSummary,
		PersonaSummary:   p.PersonaSummary,
		Embedding:        p.Embedding,
		Importance:       importance,
		CreatedAt:        created,
		UpdatedAt:        now,
		Status:           model.StatusActive,
	}, nil
}

// GetLongTerm returns an active memory and records the access.
func (s *SQLiteStore) GetLongTerm(ctx context.Context, id int64) (*model.LongTermMemory, error) {
	now := time.Now().UTC()
	var m model.LongTermMemory
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE long_term_memories SET access_count = access_count + 1, last_accessed_at = ?
			 WHERE id = ? AND status = ?`, formatTime(now), id, model.StatusActive)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		m, err = scanLongTerm(tx.QueryRowContext(ctx,
			`SELECT `+longTermColumns+` FROM long_term_memories WHERE id = ?`, id))
		return err
	})
	if isNoRows(err) {
		return nil, notFound("long-term", id)
	}
	if err != nil {
		return nil, storeErr("get long-term memory", err)
	}
	return &m, nil
}

// PeekLongTerm reads a memory without counting an access.
func (s *SQLiteStore) PeekLongTerm(ctx context.Context, id int64, includeArchived bool) (*model.LongTermMemory, error) {
	query := `SELECT ` + longTermColumns + ` FROM long_term_memories WHERE id = ?`
	args := []interface{}{id}
	if !includeArchived {
		query += ` AND status = ?`
		args = append(args, model.StatusActive)
	}
	m, err := scanLongTerm(s.db.QueryRowContext(ctx, query, args...))
	if isNoRows(err) {
		return nil, notFound("long-term", id)
	}
	if err != nil {
		return nil, storeErr("peek long-term memory", err)
	}
	return &m, nil
}

// UpdateLongTerm applies an explicit edit to an active memory.
func (s *SQLiteStore) UpdateLongTerm(ctx context.Context, id int64, p LongTermPatch) (*model.LongTermMemory, error) {
	var sets []string
	var args []interface{}

	if p.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *p.Content)
	}
	if p.CanonicalSummary != nil {
		sets = append(sets, "canonical_summary = ?")
		args = append(args, nullString(*p.CanonicalSummary))
	}
	if p.PersonaSummary != nil {
		sets = append(sets, "persona_summary = ?")
		args = append(args, nullString(*p.PersonaSummary))
	}
	if p.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, model.ClampImportance(*p.Importance))
	}
	if p.Embedding != nil {
		sets = append(sets, "embedding = ?")
		args = append(args, encodeVector(p.Embedding))
	} else if p.ClearEmbedding {
		sets = append(sets, "embedding = NULL")
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), id, model.StatusActive)

	var m model.LongTermMemory
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE long_term_memories SET %s WHERE id = ? AND status = ?`, strings.Join(sets, ", ")),
			args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		if err := bumpGeneration(ctx, tx); err != nil {
			return err
		}
		m, err = scanLongTerm(tx.QueryRowContext(ctx,
			`SELECT `+longTermColumns+` FROM long_term_memories WHERE id = ?`, id))
		return err
	})
	if isNoRows(err) {
		return nil, notFound("long-term", id)
	}
	if err != nil {
		return nil, storeErr("update long-term memory", err)
	}
	return &m, nil
}

// SetEmbedding replaces the stored vector without touching updated_at semantics of the content.
func (s *SQLiteStore) SetEmbedding(ctx context.Context, id int64, vec []float32) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE long_term_memories SET embedding = ? WHERE id = ? AND status = ?`,
			encodeVector(vec), id, model.StatusActive)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return bumpGeneration(ctx, tx)
	})
	if isNoRows(err) {
		return notFound("long-term", id)
	}
	if err != nil {
		return storeErr("set embedding", err)
	}
	return nil
}

// ArchiveLongTerm soft-deletes an active memory.
func (s *SQLiteStore) ArchiveLongTerm(ctx context.Context, id int64) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE long_term_memories SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
			model.StatusArchived, formatTime(time.Now()), id, model.StatusActive)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return bumpGeneration(ctx, tx)
	})
	if isNoRows(err) {
		return notFound("long-term", id)
	}
	if err != nil {
		return storeErr("archive long-term memory", err)
	}
	return nil
}

// ListLongTerm lists memories by session/persona/status, newest first.
func (s *SQLiteStore) ListLongTerm(ctx context.Context, p ListParams) ([]model.LongTermMemory, error) {
	limit := p.Limit
	if limit == 0 {
		limit = 100
	}
	status := p.Status
	if status == "" {
		status = model.StatusActive
	}

	where := []string{"status = ?"}
	args := []interface{}{status}
	if p.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, p.SessionID)
	}
	if p.PersonaID != "" {
		where = append(where, "persona_id = ?")
		args = append(args, p.PersonaID)
	}
	args = append(args, limit)

	return s.queryLongTerm(ctx, "list long-term memories",
		`SELECT `+longTermColumns+` FROM long_term_memories
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY created_at DESC, id DESC LIMIT ?`, args...)
}

// SearchLongTermLike is a substring search over content and summaries.
func (s *SQLiteStore) SearchLongTermLike(ctx context.Context, keyword string, limit int) ([]model.LongTermMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	q := "%" + keyword + "%"
	return s.queryLongTerm(ctx, "search long-term memories",
		`SELECT `+longTermColumns+` FROM long_term_memories
		 WHERE status = ? AND (content LIKE ? OR canonical_summary LIKE ? OR persona_summary LIKE ?)
		 ORDER BY importance DESC, created_at DESC LIMIT ?`,
		model.StatusActive, q, q, q, limit)
}

// OldMemories returns active memories created before cutoff, least important first.
func (s *SQLiteStore) OldMemories(ctx context.Context, cutoff time.Time, limit int) ([]model.LongTermMemory, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryLongTerm(ctx, "list old memories",
		`SELECT `+longTermColumns+` FROM long_term_memories
		 WHERE status = ? AND created_at < ?
		 ORDER BY importance ASC, created_at ASC, id ASC LIMIT ?`,
		model.StatusActive, formatTime(cutoff), limit)
}

// ActiveLongTerm returns every active memory in id order. Used to rebuild derived indexes.
func (s *SQLiteStore) ActiveLongTerm(ctx context.Context) ([]model.LongTermMemory, error) {
	return s.queryLongTerm(ctx, "scan active memories",
		`SELECT `+longTermColumns+` FROM long_term_memories WHERE status = ? ORDER BY id ASC`,
		model.StatusActive)
}

func (s *SQLiteStore) queryLongTerm(ctx context.Context, op, query string, args ...interface{}) ([]model.LongTermMemory, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	var memories []model.LongTermMemory
	for rows.Next() {
		m, err := scanLongTerm(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return memories, nil
}
