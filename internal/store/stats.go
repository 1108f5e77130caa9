package store

import (
	"context"
	"os"
)

// Stats holds record store statistics.
type Stats struct {
	DBPath         string `json:"db_path"`
	DBSizeBytes    int64  `json:"db_size_bytes"`
	ShortTermCount int    `json:"short_term_count"`
	LongTermCount  int    `json:"long_term_count"`
	ArchivedCount  int    `json:"archived_count"`
	SessionCount   int    `json:"session_count"`
	EmbeddedCount  int    `json:"embedded_count"`
	Generation     int64  `json:"generation"`
}

// Stats returns record store statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
		  (SELECT COUNT(*) FROM short_term_memories WHERE status = 'active'),
		  (SELECT COUNT(*) FROM long_term_memories WHERE status = 'active'),
		  (SELECT COUNT(*) FROM long_term_memories WHERE status = 'archived'),
		  (SELECT COUNT(*) FROM conversations),
		  (SELECT COUNT(*) FROM long_term_memories WHERE status = 'active' AND embedding IS NOT NULL),
		  (SELECT value FROM store_meta WHERE key = 'long_term_generation')`).
		Scan(&st.ShortTermCount, &st.LongTermCount, &st.ArchivedCount, &st.SessionCount,
			&st.EmbeddedCount, &st.Generation)
	if err != nil {
		return st, storeErr("stats", err)
	}
	return st, nil
}
