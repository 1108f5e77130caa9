// Package config provides typed configuration for hybrid-memory.
package config

import "time"

// Config is the full runtime configuration.
type Config struct {
	Storage    StorageConfig    `mapstructure:"storage" validate:"required"`
	ShortTerm  ShortTermConfig  `mapstructure:"short_term"`
	LongTerm   LongTermConfig   `mapstructure:"long_term"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
}

// StorageConfig locates the record store and the vector index artifacts.
type StorageConfig struct {
	// DBPath is the SQLite database file.
	DBPath string `mapstructure:"db_path" validate:"required"`

	// IndexDir holds vector_index.bin and id_map.json.
	IndexDir string `mapstructure:"index_dir" validate:"required"`
}

// ShortTermConfig controls session buffering and distillation.
type ShortTermConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// MaxMessages is the per-session buffer capacity.
	MaxMessages int `mapstructure:"max_messages" validate:"min=2"`

	// SummaryThreshold is the turn count that triggers distillation.
	SummaryThreshold int `mapstructure:"summary_threshold" validate:"min=2"`

	// RetainTurns is the trailing window kept after distillation.
	RetainTurns int `mapstructure:"retain_turns" validate:"min=0"`

	// IdleTimeout evicts sessions with no turns for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" validate:"gt=0"`

	// MaxSessions bounds the in-memory session registry.
	MaxSessions int `mapstructure:"max_sessions" validate:"min=1"`
}

// LongTermConfig controls long-term memory behaviour and reclamation.
type LongTermConfig struct {
	TopK              int  `mapstructure:"top_k" validate:"min=1"`
	AutoSummary       bool `mapstructure:"auto_summary"`
	ForgettingEnabled bool `mapstructure:"forgetting_enabled"`

	// ForgettingDays is the age after which memories become reclaimable.
	ForgettingDays int `mapstructure:"forgetting_days" validate:"min=1"`

	// ReclaimBatch caps the candidates of a single sweep.
	ReclaimBatch int `mapstructure:"reclaim_batch" validate:"min=1"`

	// ProtectMinAccessCount keeps memories read at least this often. 0 disables.
	ProtectMinAccessCount int `mapstructure:"protect_min_access_count" validate:"min=0"`

	// ProtectAccessedWithin keeps memories read within this window. 0 disables.
	ProtectAccessedWithin time.Duration `mapstructure:"protect_accessed_within" validate:"min=0"`

	// ContextBudget is the character budget for assembled session context.
	ContextBudget int `mapstructure:"context_budget" validate:"min=100"`
}

// RetrievalConfig selects the fusion strategy.
type RetrievalConfig struct {
	UseHybrid    bool    `mapstructure:"use_hybrid"`
	UseRRF       bool    `mapstructure:"use_rrf"`
	RRFK         float64 `mapstructure:"rrf_k" validate:"gt=0"`
	BM25Weight   float64 `mapstructure:"bm25_weight" validate:"gte=0"`
	VectorWeight float64 `mapstructure:"vector_weight" validate:"gte=0"`
}

// VectorConfig tunes the vector index.
type VectorConfig struct {
	// DefaultDimension is used when the embedder cannot be probed.
	DefaultDimension int `mapstructure:"default_dimension" validate:"min=1"`

	// CompactRatio triggers a rebuild once this fraction of slots is orphaned.
	CompactRatio float64 `mapstructure:"compact_ratio" validate:"gt=0,lte=1"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	// Provider is "", "ollama" or "openai". Empty disables embeddings.
	Provider string        `mapstructure:"provider" validate:"omitempty,oneof=ollama openai"`
	Model    string        `mapstructure:"model"`
	URL      string        `mapstructure:"url"`
	APIKey   string        `mapstructure:"api_key"`
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"min=0"`
	RPS      float64       `mapstructure:"rps" validate:"gte=0"`
	// MaxChars splits longer inputs into pieces whose vectors are averaged.
	// Zero sends every input whole.
	MaxChars int `mapstructure:"max_chars" validate:"min=0"`
}

// SummarizerConfig selects the completion provider.
type SummarizerConfig struct {
	// Provider is "" or "openai". Empty disables distillation.
	Provider string        `mapstructure:"provider" validate:"omitempty,oneof=openai"`
	Model    string        `mapstructure:"model"`
	URL      string        `mapstructure:"url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RPS      float64       `mapstructure:"rps" validate:"gte=0"`
}

// ServerConfig is the administrative HTTP surface.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=1,max=65535"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
	Output string `mapstructure:"output"`
}

// MetricsConfig toggles the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SchedulerConfig sets background job intervals.
type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	EvictInterval   time.Duration `mapstructure:"evict_interval" validate:"gt=0"`
	ReclaimInterval time.Duration `mapstructure:"reclaim_interval" validate:"gt=0"`
	RepairInterval  time.Duration `mapstructure:"repair_interval" validate:"gt=0"`
}
