package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// TouchConversation upserts the conversation row and adds delta to its message count.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id, personaID string, delta int) error {
	now := formatTime(time.Now())
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, persona_id, message_count, created_at, updated_at, status)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   message_count = message_count + excluded.message_count,
			   updated_at = excluded.updated_at,
			   persona_id = COALESCE(excluded.persona_id, persona_id)`,
			id, nullString(personaID), delta, now, now, model.StatusActive)
		return err
	})
	if err != nil {
		return storeErr("touch conversation", err)
	}
	return nil
}

const conversationColumns = `id, persona_id, message_count, created_at, updated_at, status`

func scanConversation(row scanner) (model.Conversation, error) {
	var c model.Conversation
	var persona sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&c.ID, &persona, &c.MessageCount, &createdAt, &updatedAt, &c.Status); err != nil {
		return c, err
	}
	c.PersonaID = persona.String
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// GetConversation returns a conversation by session id.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	c, err := scanConversation(s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: conversation %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, storeErr("get conversation", err)
	}
	return &c, nil
}

// ListConversations returns conversations, most recently updated first. limit <= 0 means 100.
func (s *SQLiteStore) ListConversations(ctx context.Context, limit int) ([]model.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 ORDER BY updated_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, storeErr("list conversations", err)
	}
	defer rows.Close()

	var out []model.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, storeErr("scan conversation", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list conversations", err)
	}
	return out, nil
}
