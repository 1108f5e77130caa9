// Package scheduler runs the engine's background maintenance on fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/rcliao/hybrid-memory/internal/memory"
)

// Job names.
const (
	JobEvict   = "evict-idle-sessions"
	JobReclaim = "reclaim-aged-memories"
	JobRepair  = "repair-indexes"
)

// Options sets job intervals. A zero interval leaves that job out.
type Options struct {
	EvictInterval   time.Duration
	ReclaimInterval time.Duration
	RepairInterval  time.Duration

	// Reclaim configures the periodic sweep. Nil disables reclamation.
	Reclaim *memory.ReclaimOptions

	// JobTimeout bounds one run of the reclaim or repair job.
	JobTimeout time.Duration
}

// Scheduler owns a gocron scheduler with one job per maintenance task.
type Scheduler struct {
	cron    gocron.Scheduler
	manager *memory.Manager
	opts    Options
	log     logrus.FieldLogger
}

// New registers the configured jobs. Call Start to begin running them.
func New(manager *memory.Manager, opts Options, log logrus.FieldLogger) (*Scheduler, error) {
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	s := &Scheduler{
		cron:    cron,
		manager: manager,
		opts:    opts,
		log:     log.WithField("component", "scheduler"),
	}

	if opts.EvictInterval > 0 {
		if err := s.add(JobEvict, opts.EvictInterval, s.evictIdle); err != nil {
			return nil, err
		}
	}
	if opts.ReclaimInterval > 0 && opts.Reclaim != nil {
		if err := s.add(JobReclaim, opts.ReclaimInterval, s.reclaim); err != nil {
			return nil, err
		}
	}
	if opts.RepairInterval > 0 {
		if err := s.add(JobRepair, opts.RepairInterval, s.repair); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name string, every time.Duration, fn func()) error {
	_, err := s.cron.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("register job %s: %w", name, err)
	}
	s.log.WithFields(logrus.Fields{"job": name, "every": every.String()}).Debug("job registered")
	return nil
}

// Jobs returns the names of the registered jobs.
func (s *Scheduler) Jobs() []string {
	jobs := s.cron.Jobs()
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	return names
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("jobs", len(s.cron.Jobs())).Info("scheduler started")
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}

func (s *Scheduler) evictIdle() {
	if n := s.manager.EvictIdle(time.Now()); n > 0 {
		s.log.WithField("evicted", n).Debug("evict job done")
	}
}

func (s *Scheduler) reclaim() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
	defer cancel()

	res, err := s.manager.Engine().Reclaim(ctx, *s.opts.Reclaim)
	if err != nil {
		s.log.WithError(err).WithField("run_id", res.RunID).Warn("reclaim job failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"run_id":  res.RunID,
		"deleted": len(res.Deleted),
	}).Info("reclaim job done")
}

func (s *Scheduler) repair() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.JobTimeout)
	defer cancel()

	e := s.manager.Engine()
	if ran, err := e.RepairIfDirty(ctx); err != nil {
		s.log.WithError(err).Warn("index repair failed")
		return
	} else if ran {
		s.log.Info("dirty indexes rebuilt")
		return
	}
	if ran, err := e.CompactIfNeeded(ctx); err != nil {
		s.log.WithError(err).Warn("vector compaction failed")
	} else if ran {
		s.log.Info("vector index compacted")
	}
}
