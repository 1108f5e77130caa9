package memory

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/rcliao/hybrid-memory/internal/model"
)

// ProtectPolicy exempts frequently or recently read memories from reclamation.
// The zero value protects nothing, so age alone decides.
type ProtectPolicy struct {
	MinAccessCount int           // protect memories read at least this often; 0 disables
	AccessedWithin time.Duration // protect memories read this recently; 0 disables
}

func (p ProtectPolicy) protects(m *model.LongTermMemory, now time.Time) bool {
	if p.MinAccessCount > 0 && m.AccessCount >= p.MinAccessCount {
		return true
	}
	if p.AccessedWithin > 0 && m.LastAccessedAt != nil && now.Sub(*m.LastAccessedAt) < p.AccessedWithin {
		return true
	}
	return false
}

// ReclaimOptions selects what a sweep considers.
type ReclaimOptions struct {
	OlderThan time.Duration // age by creation time
	Limit     int           // 0 means 100
	DryRun    bool
	Protect   ProtectPolicy
}

// ReclaimResult reports a sweep. Candidates are ordered least important first.
// In commit mode Deleted is the completed prefix and Remaining what is left to retry.
type ReclaimResult struct {
	RunID      string  `json:"run_id"`
	DryRun     bool    `json:"dry_run"`
	Candidates []int64 `json:"candidates"`
	Protected  int     `json:"protected"`
	Deleted    []int64 `json:"deleted"`
	Skipped    []int64 `json:"skipped,omitempty"`
	Remaining  []int64 `json:"remaining"`
	Err        string  `json:"error,omitempty"`
}

// Reclaim selects aged memories and, unless DryRun, deletes them one at a time
// through Delete. A store or index failure stops the sweep and is returned
// together with the partial result.
func (e *Engine) Reclaim(ctx context.Context, opts ReclaimOptions) (*ReclaimResult, error) {
	now := time.Now()
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	res := &ReclaimResult{
		RunID:      ulid.Make().String(),
		DryRun:     opts.DryRun,
		Candidates: []int64{},
		Deleted:    []int64{},
		Remaining:  []int64{},
	}
	log := e.log.WithFields(logrus.Fields{"run_id": res.RunID, "dry_run": opts.DryRun})

	old, err := e.store.OldMemories(ctx, now.Add(-opts.OlderThan), limit)
	if err != nil {
		return res, err
	}
	for i := range old {
		if opts.Protect.protects(&old[i], now) {
			res.Protected++
			continue
		}
		res.Candidates = append(res.Candidates, old[i].ID)
	}

	if opts.DryRun {
		res.Remaining = append(res.Remaining, res.Candidates...)
		log.WithField("candidates", len(res.Candidates)).Info("reclamation dry run")
		return res, nil
	}

	for i, id := range res.Candidates {
		err := ctx.Err()
		if err == nil {
			err = e.Delete(ctx, id)
		}
		if errors.Is(err, model.ErrNotFound) {
			// Deleted concurrently; nothing left to do for this id.
			res.Skipped = append(res.Skipped, id)
			continue
		}
		if err != nil {
			res.Remaining = append(res.Remaining, res.Candidates[i:]...)
			res.Err = err.Error()
			e.rec.AddReclaimed(len(res.Deleted))
			log.WithError(err).WithFields(logrus.Fields{
				"deleted":   len(res.Deleted),
				"remaining": len(res.Remaining),
			}).Warn("reclamation stopped early")
			return res, err
		}
		res.Deleted = append(res.Deleted, id)
	}

	e.rec.AddReclaimed(len(res.Deleted))
	log.WithField("deleted", len(res.Deleted)).Info("reclamation sweep done")
	return res, nil
}
