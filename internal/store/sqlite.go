package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// timeFormat is fixed-width so stored timestamps compare correctly as text.
const timeFormat = "2006-01-02T15:04:05.000000Z"

const (
	tableShortTerm     = "short_term_memories"
	tableLongTerm      = "long_term_memories"
	tableConversations = "conversations"
)

// SQLiteStore implements the record store on SQLite.
// Writes are serialized by writeMu; reads run concurrently under WAL.
type SQLiteStore struct {
	db      *sql.DB
	path    string
	writeMu sync.Mutex
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storeErr("create db dir", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, storeErr("open db", err)
	}

	s := &SQLiteStore{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, storeErr("migrate", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS short_term_memories (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id  TEXT NOT NULL,
		persona_id  TEXT,
		content     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL,
		status      TEXT NOT NULL DEFAULT 'active'
	);
	CREATE INDEX IF NOT EXISTS idx_short_term_session ON short_term_memories(session_id, status);

	CREATE TABLE IF NOT EXISTS long_term_memories (
		id                INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id        TEXT NOT NULL,
		persona_id        TEXT,
		content           TEXT NOT NULL,
		canonical_summary TEXT,
		persona_summary   TEXT,
		embedding         BLOB,
		importance        REAL NOT NULL DEFAULT 0.5,
		access_count      INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL,
		updated_at        TEXT NOT NULL,
		last_accessed_at  TEXT,
		status            TEXT NOT NULL DEFAULT 'active'
	);
	CREATE INDEX IF NOT EXISTS idx_long_term_session ON long_term_memories(session_id, status);
	CREATE INDEX IF NOT EXISTS idx_long_term_status ON long_term_memories(status, importance);
	CREATE INDEX IF NOT EXISTS idx_long_term_created ON long_term_memories(created_at);

	CREATE TABLE IF NOT EXISTS conversations (
		id            TEXT PRIMARY KEY,
		persona_id    TEXT,
		message_count INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		status        TEXT NOT NULL DEFAULT 'active'
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		key   TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO store_meta (key, value) VALUES ('long_term_generation', 0);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a write transaction under the writer lock.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// bumpGeneration marks the long-term table as changed; derived indexes compare against it.
func bumpGeneration(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE store_meta SET value = value + 1 WHERE key = 'long_term_generation'`)
	return err
}

// Generation returns the long-term generation counter.
func (s *SQLiteStore) Generation(ctx context.Context) (int64, error) {
	var gen int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM store_meta WHERE key = 'long_term_generation'`).Scan(&gen)
	if err != nil {
		return 0, storeErr("read generation", err)
	}
	return gen, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrStore, op, err)
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("%w: %s memory %d", model.ErrNotFound, kind, id)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

// encodeVector stores a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const longTermColumns = `id, session_id, persona_id, content, canonical_summary, persona_summary,
	embedding, importance, access_count, created_at, updated_at, last_accessed_at, status`

func scanLongTerm(row scanner) (model.LongTermMemory, error) {
	var m model.LongTermMemory
	var persona, canonical, personaSummary, lastAccessed sql.NullString
	var embedding []byte
	var createdAt, updatedAt string

	err := row.Scan(
		&m.ID, &m.SessionID, &persona, &m.Content, &canonical, &personaSummary,
		&embedding, &m.Importance, &m.AccessCount, &createdAt, &updatedAt, &lastAccessed, &m.Status,
	)
	if err != nil {
		return m, err
	}

	m.PersonaID = persona.String
	m.CanonicalSummary = canonical.String
	m.PersonaSummary = personaSummary.String
	m.Embedding = decodeVector(embedding)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	if lastAccessed.Valid {
		t := parseTime(lastAccessed.String)
		m.LastAccessedAt = &t
	}
	return m, nil
}

func scanShortTerm(row scanner) (model.ShortTermMemory, error) {
	var m model.ShortTermMemory
	var persona sql.NullString
	var createdAt string
	if err := row.Scan(&m.ID, &m.SessionID, &persona, &m.Content, &createdAt, &m.Status); err != nil {
		return m, err
	}
	m.PersonaID = persona.String
	m.CreatedAt = parseTime(createdAt)
	return m, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
