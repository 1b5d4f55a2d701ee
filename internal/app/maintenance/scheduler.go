// Package maintenance runs the recurring background jobs: update checks,
// scheduled backups and retention sweeps.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/exiloncms/exiloncms/internal/monitoring"
	"github.com/exiloncms/exiloncms/internal/services"
	"github.com/exiloncms/exiloncms/pkg/logger"
)

// Job names, also used as metric labels.
const (
	JobUpdateCheck    = "update_check"
	JobBackup         = "backup"
	JobActionLogPrune = "action_log_retention"
	JobCachePurge     = "cache_purge"
)

const (
	defaultUpdateSpec  = "@every 6h"
	defaultBackupSpec  = "@daily"
	defaultLogSpec     = "@daily"
	defaultCacheSpec   = "@hourly"
	defaultRetention   = 90
	defaultBackupsKept = 7
)

// UpdateChecker refreshes the cached update report.
type UpdateChecker interface {
	Check(ctx context.Context, force bool) (*services.UpdateReport, error)
}

// BackupRunner creates and rotates database backups.
type BackupRunner interface {
	Create(ctx context.Context) (*services.BackupFile, error)
	Prune(ctx context.Context, keep int) ([]string, error)
}

// ActionLogPruner deletes old action logs.
type ActionLogPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// CachePurger removes expired cache rows.
type CachePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Jobs lists the collaborators; a nil entry disables its job.
type Jobs struct {
	Updates    UpdateChecker
	Backups    BackupRunner
	ActionLogs ActionLogPruner
	Cache      CachePurger
}

// Config holds cron specs and retention values. Zero values use defaults.
type Config struct {
	UpdateCheckSchedule  string
	BackupSchedule       string
	BackupKeep           int
	LogRetentionSchedule string
	LogRetentionDays     int
	CachePurgeSchedule   string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithTracker records each run in tracker.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(s *Scheduler) {
		s.tracker = tracker
	}
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

// Scheduler owns the cron instance and the job list.
type Scheduler struct {
	cron    *cron.Cron
	tracker *monitoring.JobTracker
	jobs    []job
	log     *zap.Logger
}

// NewScheduler builds the job list from cfg and jobs.
func NewScheduler(cfg Config, jobs Jobs, opts ...Option) *Scheduler {
	s := &Scheduler{log: logger.WithModule("maintenance")}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	if jobs.Updates != nil {
		s.add(JobUpdateCheck, orDefault(cfg.UpdateCheckSchedule, defaultUpdateSpec), func(ctx context.Context) error {
			report, err := jobs.Updates.Check(ctx, true)
			if err == nil {
				s.log.Info("update check finished", zap.Int("plugins", len(report.Plugins)), zap.Int("themes", len(report.Themes)), zap.Bool("core", report.Core != nil))
			}
			return err
		})
	}

	if jobs.Backups != nil {
		keep := cfg.BackupKeep
		if keep <= 0 {
			keep = defaultBackupsKept
		}
		s.add(JobBackup, orDefault(cfg.BackupSchedule, defaultBackupSpec), func(ctx context.Context) error {
			file, err := jobs.Backups.Create(ctx)
			if err != nil {
				return err
			}
			removed, err := jobs.Backups.Prune(ctx, keep)
			s.log.Info("backup created", zap.String("file", file.Name), zap.Int("pruned", len(removed)))
			return err
		})
	}

	if jobs.ActionLogs != nil {
		days := cfg.LogRetentionDays
		if days <= 0 {
			days = defaultRetention
		}
		s.add(JobActionLogPrune, orDefault(cfg.LogRetentionSchedule, defaultLogSpec), func(ctx context.Context) error {
			removed, err := jobs.ActionLogs.CleanupOlderThan(ctx, days)
			if removed > 0 {
				s.log.Info("action logs pruned", zap.Int64("removed", removed), zap.Int("retention_days", days))
			}
			return err
		})
	}

	if jobs.Cache != nil {
		s.add(JobCachePurge, orDefault(cfg.CachePurgeSchedule, defaultCacheSpec), func(ctx context.Context) error {
			_, err := jobs.Cache.PurgeExpired(ctx)
			return err
		})
	}

	return s
}

func (s *Scheduler) add(name, spec string, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, job{name: name, spec: spec, run: run})
	if s.tracker != nil {
		s.tracker.Register(name)
	}
}

// JobNames lists the configured jobs in registration order.
func (s *Scheduler) JobNames() []string {
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.name)
	}
	return names
}

// Start registers every job with cron and launches it. Invalid specs abort
// before anything runs.
func (s *Scheduler) Start() error {
	if len(s.jobs) == 0 {
		return nil
	}
	for _, j := range s.jobs {
		j := j
		if _, err := s.cron.AddFunc(j.spec, func() {
			_ = s.execute(context.Background(), j)
		}); err != nil {
			return err
		}
	}
	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce executes every job sequentially and aggregates their errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var errs error
	for _, j := range s.jobs {
		errs = multierr.Append(errs, s.execute(ctx, j))
	}
	return errs
}

func (s *Scheduler) execute(ctx context.Context, j job) error {
	start := time.Now()
	err := j.run(ctx)
	if s.tracker != nil {
		s.tracker.Record(j.name, err, time.Since(start))
	}
	if err != nil {
		s.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
	}
	return err
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
