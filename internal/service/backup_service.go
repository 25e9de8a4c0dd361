package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jobsturm/crm-local-sub000/internal/metrics"
	"github.com/jobsturm/crm-local-sub000/internal/storage"
	"go.uber.org/zap"
)

// SnapshotLayout names snapshots so that lexical order is chronological
const SnapshotLayout = "20060102T150405Z"

// BackupResult describes one snapshot
type BackupResult struct {
	Snapshot string   `json:"snapshot"`
	Files    int      `json:"files"`
	Pruned   []string `json:"pruned,omitempty"`
}

// BackupService copies the storage tree to a backup sink
type BackupService struct {
	backend *Backend
	sink    storage.Sink
	retain  int
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewBackupService(backend *Backend, sink storage.Sink, retain int, m *metrics.Metrics, logger *zap.Logger) *BackupService {
	return &BackupService{
		backend: backend,
		sink:    sink,
		retain:  retain,
		metrics: m,
		logger:  logger,
	}
}

// Snapshot writes every file of the active root to a new snapshot and then
// prunes snapshots beyond the retention count
func (s *BackupService) Snapshot(ctx context.Context) (*BackupResult, error) {
	result, err := s.snapshot(ctx)
	s.metrics.BackupSnapshots.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		s.logger.Error("Backup failed", zap.Error(err))
		return nil, err
	}

	s.logger.Info("Backup completed",
		zap.String("snapshot", result.Snapshot),
		zap.Int("files", result.Files),
		zap.Strings("pruned", result.Pruned),
	)
	return result, nil
}

func (s *BackupService) snapshot(ctx context.Context) (*BackupResult, error) {
	ws, release := s.backend.Acquire()
	defer release()

	name := s.backend.Now().UTC().Format(SnapshotLayout)
	files, err := storage.ListFiles(ws.Root)
	if err != nil {
		return nil, err
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(ws.Root, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		if err := s.sink.Put(ctx, name, rel, data); err != nil {
			return nil, fmt.Errorf("failed to back up %s: %w", rel, err)
		}
	}

	pruned, err := s.prune(ctx)
	if err != nil {
		return nil, err
	}
	return &BackupResult{Snapshot: name, Files: len(files), Pruned: pruned}, nil
}

func (s *BackupService) prune(ctx context.Context) ([]string, error) {
	if s.retain <= 0 {
		return nil, nil
	}
	snapshots, err := s.sink.Snapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(snapshots) <= s.retain {
		return nil, nil
	}

	expired := snapshots[:len(snapshots)-s.retain]
	for _, name := range expired {
		if err := s.sink.DeleteSnapshot(ctx, name); err != nil {
			return nil, fmt.Errorf("failed to delete snapshot %s: %w", name, err)
		}
	}
	return expired, nil
}

// Snapshots lists the snapshots held by the sink, oldest first
func (s *BackupService) Snapshots(ctx context.Context) ([]string, error) {
	return s.sink.Snapshots(ctx)
}
