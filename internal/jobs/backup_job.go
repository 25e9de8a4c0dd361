package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jobsturm/crm-local-sub000/internal/service"
)

// BackupJobName is the name of the scheduled backup job
const BackupJobName = "backup"

// Snapshotter takes a backup of the storage tree
type Snapshotter interface {
	Snapshot(ctx context.Context) (*service.BackupResult, error)
}

// BackupJob runs one snapshot per invocation
type BackupJob struct {
	backups Snapshotter
	logger  *zap.Logger
	timeout time.Duration
}

// NewBackupJob creates a backup job. The timeout bounds a single snapshot.
func NewBackupJob(backups Snapshotter, logger *zap.Logger, timeout time.Duration) *BackupJob {
	return &BackupJob{
		backups: backups,
		logger:  logger,
		timeout: timeout,
	}
}

// Run takes a snapshot. Failures are logged; the next tick tries again.
func (j *BackupJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	result, err := j.backups.Snapshot(ctx)
	if err != nil {
		j.logger.Error("scheduled backup failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return
	}

	j.logger.Info("scheduled backup completed",
		zap.String("snapshot", result.Snapshot),
		zap.Int("files", result.Files),
		zap.Duration("duration", time.Since(start)))
}

// RegisterBackupJob registers the backup job with the scheduler
func RegisterBackupJob(scheduler *Scheduler, backups Snapshotter, logger *zap.Logger, cronExpr string, timeout time.Duration) error {
	job := NewBackupJob(backups, logger, timeout)
	return scheduler.AddJob(BackupJobName, cronExpr, job.Run)
}
