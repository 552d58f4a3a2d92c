package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/subnet-sentinel/internal/database"
	"github.com/aristath/subnet-sentinel/internal/domain"
	"github.com/aristath/subnet-sentinel/internal/monitor"
	"github.com/aristath/subnet-sentinel/internal/reliability"
)

const jobTimeout = 10 * time.Minute

// CycleRunner runs one optimization cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, force bool) (domain.RebalanceDecision, error)
}

// OptimizeJob runs the scheduled (non-forced) optimization cycle.
type OptimizeJob struct {
	runner CycleRunner
	log    zerolog.Logger
}

// NewOptimizeJob creates the hourly optimization job.
func NewOptimizeJob(runner CycleRunner, log zerolog.Logger) *OptimizeJob {
	return &OptimizeJob{
		runner: runner,
		log:    log.With().Str("job", "optimize").Logger(),
	}
}

// Name returns the job name
func (j *OptimizeJob) Name() string { return "optimize_strategy" }

// Run executes one optimization cycle.
func (j *OptimizeJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	decision, err := j.runner.RunCycle(ctx, false)
	if err != nil {
		return err
	}

	j.log.Info().
		Bool("accepted", decision.Accepted).
		Str("reason", decision.Reason).
		Msg("Optimization cycle finished")
	return nil
}

// ForcedOptimizeJob runs an optimization cycle with the cooldown overridden.
// Used once at startup so a fresh deployment publishes immediately.
type ForcedOptimizeJob struct {
	runner CycleRunner
	log    zerolog.Logger
}

// NewForcedOptimizeJob creates the startup optimization job.
func NewForcedOptimizeJob(runner CycleRunner, log zerolog.Logger) *ForcedOptimizeJob {
	return &ForcedOptimizeJob{
		runner: runner,
		log:    log.With().Str("job", "optimize_forced").Logger(),
	}
}

// Name returns the job name
func (j *ForcedOptimizeJob) Name() string { return "optimize_strategy_forced" }

// Run executes one forced optimization cycle.
func (j *ForcedOptimizeJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	decision, err := j.runner.RunCycle(ctx, true)
	if err != nil {
		return err
	}

	j.log.Info().
		Bool("accepted", decision.Accepted).
		Str("reason", decision.Reason).
		Msg("Forced optimization cycle finished")
	return nil
}

// MonitorJob runs the performance check that can force an emergency rebalance.
type MonitorJob struct {
	monitor *monitor.PerformanceMonitor
}

// NewMonitorJob creates the performance monitoring job.
func NewMonitorJob(m *monitor.PerformanceMonitor) *MonitorJob {
	return &MonitorJob{monitor: m}
}

// Name returns the job name
func (j *MonitorJob) Name() string { return "monitor_performance" }

// Run executes one performance check.
func (j *MonitorJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return j.monitor.Check(ctx)
}

// BackupJob uploads a database backup to the object store.
type BackupJob struct {
	backup *reliability.BackupService
}

// NewBackupJob creates the daily backup job.
func NewBackupJob(backup *reliability.BackupService) *BackupJob {
	return &BackupJob{backup: backup}
}

// Name returns the job name
func (j *BackupJob) Name() string { return "database_backup" }

// Run executes one backup.
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return j.backup.Run(ctx)
}

// WALCheckpointJob truncates the WAL files so they never grow unbounded on a
// long-running daemon.
type WALCheckpointJob struct {
	databases []*database.DB
	log       zerolog.Logger
}

// NewWALCheckpointJob creates the WAL maintenance job.
func NewWALCheckpointJob(log zerolog.Logger, databases ...*database.DB) *WALCheckpointJob {
	return &WALCheckpointJob{
		databases: databases,
		log:       log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name returns the job name
func (j *WALCheckpointJob) Name() string { return "wal_checkpoint" }

// Run checkpoints every database.
func (j *WALCheckpointJob) Run() error {
	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
			continue
		}
		j.log.Debug().Str("database", db.Name()).Msg("WAL checkpointed")
	}
	return nil
}
