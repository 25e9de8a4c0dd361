package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jobsturm/crm-local-sub000/internal/config"
	"go.uber.org/zap"
)

// Sink receives backup snapshots of the storage tree. A snapshot is a set of
// files addressed by slash-separated paths relative to the storage root.
type Sink interface {
	Put(ctx context.Context, snapshot, relPath string, data []byte) error
	Snapshots(ctx context.Context) ([]string, error)
	DeleteSnapshot(ctx context.Context, snapshot string) error
}

// NewSink creates a backup sink based on configuration.
// For local mode, snapshots are directories on the local filesystem.
// For azure mode, snapshots are blob name prefixes in a container.
func NewSink(cfg *config.BackupConfig, logger *zap.Logger) (Sink, error) {
	switch cfg.Mode {
	case "local", "":
		return NewLocalSink(cfg.LocalPath)
	case "azure":
		if cfg.AzureConnectionString == "" {
			return nil, fmt.Errorf("azure connection string required for azure backups")
		}
		return NewAzureBlobSink(cfg.AzureConnectionString, cfg.AzureContainer, logger)
	default:
		return nil, fmt.Errorf("unsupported backup mode: %s", cfg.Mode)
	}
}

// LocalSink implements Sink on the local filesystem
type LocalSink struct {
	basePath string
	writer   *AtomicWriter
}

// NewLocalSink creates a new local sink rooted at basePath
func NewLocalSink(basePath string) (*LocalSink, error) {
	if basePath == "" {
		return nil, fmt.Errorf("local backup path is empty")
	}
	if err := os.MkdirAll(basePath, dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	return &LocalSink{
		basePath: basePath,
		writer:   defaultWriter,
	}, nil
}

// Put writes one file of a snapshot
func (s *LocalSink) Put(ctx context.Context, snapshot, relPath string, data []byte) error {
	return s.writer.WriteFile(filepath.Join(s.basePath, snapshot, filepath.FromSlash(relPath)), data)
}

// Snapshots lists snapshot names, oldest first
func (s *LocalSink) Snapshots(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// DeleteSnapshot removes a snapshot directory
func (s *LocalSink) DeleteSnapshot(ctx context.Context, snapshot string) error {
	if snapshot == "" || snapshot == "." || snapshot == ".." {
		return fmt.Errorf("invalid snapshot name: %q", snapshot)
	}
	if err := os.RemoveAll(filepath.Join(s.basePath, snapshot)); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
