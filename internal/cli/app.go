package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rcliao/hybrid-memory/internal/config"
	"github.com/rcliao/hybrid-memory/internal/embedding"
	"github.com/rcliao/hybrid-memory/internal/logging"
	"github.com/rcliao/hybrid-memory/internal/memory"
	"github.com/rcliao/hybrid-memory/internal/metrics"
	"github.com/rcliao/hybrid-memory/internal/retrieval"
	"github.com/rcliao/hybrid-memory/internal/store"
	"github.com/rcliao/hybrid-memory/internal/summarizer"
)

// app is everything a command needs, wired from one Config.
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	logCloser io.Closer
	store     *store.SQLiteStore
	engine    *memory.Engine
	manager   *memory.Manager
	metrics   *metrics.Manager
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}

	st, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		closer.Close()
		return nil, err
	}
	emb, err := embedding.NewFromConfig(cfg.Embedding)
	if err != nil {
		st.Close()
		closer.Close()
		return nil, fmt.Errorf("embedding: %w", err)
	}
	sum, err := summarizer.NewFromConfig(cfg.Summarizer)
	if err != nil {
		st.Close()
		closer.Close()
		return nil, fmt.Errorf("summarizer: %w", err)
	}

	engine := memory.NewEngine(st, emb, sum, engineOptions(cfg), log)
	met := metrics.NewManager(cfg.Metrics.Enabled)
	engine.SetRecorder(met)
	if err := engine.Init(ctx); err != nil {
		st.Close()
		closer.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		log:       log,
		logCloser: closer,
		store:     st,
		engine:    engine,
		manager:   memory.NewManager(engine, sum, sessionOptions(cfg), log),
		metrics:   met,
	}, nil
}

// Close persists the vector index and releases the store.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.engine.Close(ctx); err != nil {
		a.log.WithError(err).Warn("persisting vector index failed")
	}
	if err := a.store.Close(); err != nil {
		a.log.WithError(err).Warn("closing store failed")
	}
	a.logCloser.Close()
}

func engineOptions(cfg *config.Config) memory.EngineOptions {
	return memory.EngineOptions{
		IndexDir:         cfg.Storage.IndexDir,
		DefaultDimension: cfg.Vector.DefaultDimension,
		CompactRatio:     cfg.Vector.CompactRatio,
		TopK:             cfg.LongTerm.TopK,
		Retrieval: retrieval.Options{
			UseHybrid:    cfg.Retrieval.UseHybrid,
			UseRRF:       cfg.Retrieval.UseRRF,
			RRFK:         cfg.Retrieval.RRFK,
			BM25Weight:   cfg.Retrieval.BM25Weight,
			VectorWeight: cfg.Retrieval.VectorWeight,
		},
	}
}

func sessionOptions(cfg *config.Config) memory.SessionOptions {
	return memory.SessionOptions{
		Enabled:          cfg.ShortTerm.Enabled && cfg.LongTerm.AutoSummary,
		MaxMessages:      cfg.ShortTerm.MaxMessages,
		SummaryThreshold: cfg.ShortTerm.SummaryThreshold,
		RetainTurns:      cfg.ShortTerm.RetainTurns,
		IdleTimeout:      cfg.ShortTerm.IdleTimeout,
		MaxSessions:      cfg.ShortTerm.MaxSessions,
		SummaryTimeout:   cfg.Summarizer.Timeout,
		TopK:             cfg.LongTerm.TopK,
		ContextBudget:    cfg.LongTerm.ContextBudget,
		// Each CLI call is a fresh process; buffers live in the short-term table between calls.
		RestoreFromStore: true,
	}
}

func reclaimOptions(cfg *config.Config) memory.ReclaimOptions {
	return memory.ReclaimOptions{
		OlderThan: time.Duration(cfg.LongTerm.ForgettingDays) * 24 * time.Hour,
		Limit:     cfg.LongTerm.ReclaimBatch,
		Protect: memory.ProtectPolicy{
			MinAccessCount: cfg.LongTerm.ProtectMinAccessCount,
			AccessedWithin: cfg.LongTerm.ProtectAccessedWithin,
		},
	}
}
