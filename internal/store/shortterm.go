package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// AddShortTerm records one ingested turn for a session.
func (s *SQLiteStore) AddShortTerm(ctx context.Context, sessionID, personaID, content string) (*model.ShortTermMemory, error) {
	now := time.Now().UTC()
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO short_term_memories (session_id, persona_id, content, created_at, updated_at, status)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, nullString(personaID), content, formatTime(now), formatTime(now), model.StatusActive)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, storeErr("insert short-term memory", err)
	}

	return &model.ShortTermMemory{
		ID:        id,
		SessionID: sessionID,
		PersonaID: personaID,
		Content:   content,
		CreatedAt: now,
		Status:    model.StatusActive,
	}, nil
}

// ListShortTerm returns the active short-term memories of a session, newest first.
func (s *SQLiteStore) ListShortTerm(ctx context.Context, sessionID string, limit int) ([]model.ShortTermMemory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, persona_id, content, created_at, status
		 FROM short_term_memories WHERE session_id = ? AND status = ?
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		sessionID, model.StatusActive, limit)
	if err != nil {
		return nil, storeErr("list short-term memories", err)
	}
	defer rows.Close()

	var memories []model.ShortTermMemory
	for rows.Next() {
		m, err := scanShortTerm(rows)
		if err != nil {
			return nil, storeErr("scan short-term memory", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list short-term memories", err)
	}
	return memories, nil
}

// ArchiveShortTerm soft-deletes the given short-term rows. Returns the number archived.
func (s *SQLiteStore) ArchiveShortTerm(ctx context.Context, ids ...int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := []interface{}{model.StatusArchived, formatTime(time.Now())}
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, model.StatusActive)

	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE short_term_memories SET status = ?, updated_at = ?
			 WHERE id IN (`+placeholders+`) AND status = ?`, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, storeErr("archive short-term memories", err)
	}
	return int(n), nil
}

// ClearShortTerm archives every active short-term row of a session.
func (s *SQLiteStore) ClearShortTerm(ctx context.Context, sessionID string) (int, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE short_term_memories SET status = ?, updated_at = ?
			 WHERE session_id = ? AND status = ?`,
			model.StatusArchived, formatTime(time.Now()), sessionID, model.StatusActive)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, storeErr("clear short-term memories", err)
	}
	return int(n), nil
}
