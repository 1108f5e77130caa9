package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with the documented defaults.
func DefaultConfig() *Config {
	base := defaultDataDir()
	return &Config{
		Storage: StorageConfig{
			DBPath:   filepath.Join(base, "memory.db"),
			IndexDir: filepath.Join(base, "vector_index"),
		},
		ShortTerm: ShortTermConfig{
			Enabled:          true,
			MaxMessages:      50,
			SummaryThreshold: 10,
			RetainTurns:      2,
			IdleTimeout:      24 * time.Hour,
			MaxSessions:      10000,
		},
		LongTerm: LongTermConfig{
			TopK:              5,
			AutoSummary:       true,
			ForgettingEnabled: true,
			ForgettingDays:    30,
			ReclaimBatch:      100,
			ContextBudget:     4000,
		},
		Retrieval: RetrievalConfig{
			UseHybrid:    true,
			UseRRF:       true,
			RRFK:         60,
			BM25Weight:   0.5,
			VectorWeight: 0.5,
		},
		Vector: VectorConfig{
			DefaultDimension: 768,
			CompactRatio:     0.3,
		},
		Embedding: EmbeddingConfig{
			CacheTTL: 10 * time.Minute,
			MaxChars: 2000,
		},
		Summarizer: SummarizerConfig{
			Timeout: 60 * time.Second,
		},
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			EvictInterval:   10 * time.Minute,
			ReclaimInterval: 24 * time.Hour,
			RepairInterval:  5 * time.Minute,
		},
	}
}

func defaultDataDir() string {
	if env := os.Getenv("HYBRID_MEMORY_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hybrid-memory")
}
