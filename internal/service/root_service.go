package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jobsturm/crm-local-sub000/internal/config"
	"github.com/jobsturm/crm-local-sub000/internal/database"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/metrics"
	"github.com/jobsturm/crm-local-sub000/internal/repository"
	"github.com/jobsturm/crm-local-sub000/internal/storage"
	"go.uber.org/zap"
)

// rootPointer is the content of the pointer file
type rootPointer struct {
	Root string `json:"root"`
}

// ResolveRoot returns the active storage root: the root recorded in the
// pointer file, or the configured default when there is none
func ResolveRoot(cfg *config.StorageConfig) (string, error) {
	content, err := os.ReadFile(cfg.PointerFile)
	if errors.Is(err, os.ErrNotExist) || cfg.PointerFile == "" {
		return filepath.Abs(cfg.DefaultRoot)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read root pointer: %w", err)
	}

	var pointer rootPointer
	if err := json.Unmarshal(content, &pointer); err != nil {
		return "", fmt.Errorf("root pointer %s is corrupt: %w", cfg.PointerFile, err)
	}
	if strings.TrimSpace(pointer.Root) == "" {
		return filepath.Abs(cfg.DefaultRoot)
	}
	return filepath.Abs(pointer.Root)
}

// RootService reports and changes the active storage root
type RootService struct {
	backend *Backend
	cfg     *config.StorageConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	opts    repository.WorkspaceOptions
}

func NewRootService(backend *Backend, cfg *config.StorageConfig, m *metrics.Metrics, logger *zap.Logger, opts repository.WorkspaceOptions) *RootService {
	if opts.Writer == nil {
		opts.Writer = storage.NewAtomicWriter()
	}
	return &RootService{
		backend: backend,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		opts:    opts,
	}
}

// Info describes the active root
func (s *RootService) Info(ctx context.Context) *domain.RootInfo {
	ws, release := s.backend.Acquire()
	defer release()

	return &domain.RootInfo{
		Root:         ws.Root,
		DatabaseFile: ws.DB.Path(),
		Version:      ws.DB.Snapshot().Version,
	}
}

// ChangeRoot copies the tree to a new root, verifies that the copy opens,
// records it in the pointer file and switches to it. With mode move the old
// tree is removed afterwards. Until the pointer is written any failure
// leaves the active root as it was.
func (s *RootService) ChangeRoot(ctx context.Context, req *domain.ChangeRootRequest) (*domain.RootInfo, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	target, err := filepath.Abs(filepath.Clean(req.Root))
	if err != nil {
		return nil, invalid("root %q: %v", req.Root, err)
	}

	err = s.backend.exclusive(func(ws *repository.Workspace) (*repository.Workspace, error) {
		if target == ws.Root {
			return nil, nil
		}
		if nested(ws.Root, target) || nested(target, ws.Root) {
			return nil, invalid("%s and %s must not contain each other", ws.Root, target)
		}
		if _, err := os.Stat(filepath.Join(target, database.FileName)); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrRootNotEmpty, target)
		}

		files, err := storage.ListFiles(ws.Root)
		if err != nil {
			return nil, err
		}
		copied, err := s.opts.Writer.CopyTree(ctx, ws.Root, target)
		if err != nil {
			s.discardCopy(target, files[:copied])
			return nil, fmt.Errorf("failed to copy %s to %s after %d files: %w", ws.Root, target, copied, err)
		}

		next, err := repository.OpenWorkspace(target, s.logger, s.metrics, s.opts)
		if err != nil {
			s.discardCopy(target, files)
			return nil, fmt.Errorf("copied database does not open: %w", err)
		}

		if err := s.opts.Writer.WriteJSON(s.cfg.PointerFile, rootPointer{Root: target}); err != nil {
			s.discardCopy(target, files)
			return nil, fmt.Errorf("failed to write root pointer: %w", err)
		}

		s.logger.Info("Storage root changed",
			zap.String("from", ws.Root),
			zap.String("to", target),
			zap.String("mode", string(req.Mode)),
			zap.Int("files", copied),
		)

		if req.Mode == domain.RootChangeMove {
			if err := removeFiles(ws.Root, files); err != nil {
				s.logger.Warn("Old storage root not fully removed", zap.String("path", ws.Root), zap.Error(err))
			}
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return s.Info(ctx), nil
}

// discardCopy removes what an aborted root change wrote to target so the
// same target can be used again
func (s *RootService) discardCopy(target string, files []string) {
	if err := removeFiles(target, files); err != nil {
		s.logger.Warn("Aborted root copy not fully removed", zap.String("path", target), zap.Error(err))
	}
}

// nested reports whether child lies inside parent
func nested(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// removeFiles deletes the listed files and then every directory they leave
// empty, deepest first. Files that were not copied are kept.
func removeFiles(root string, files []string) error {
	dirs := map[string]bool{}
	var errs []error
	for _, rel := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		for dir := filepath.Dir(path); dir != root && nested(root, dir); dir = filepath.Dir(dir) {
			dirs[dir] = true
		}
	}

	ordered := make([]string, 0, len(dirs))
	for dir := range dirs {
		ordered = append(ordered, dir)
	}
	sort.Slice(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })
	for _, dir := range ordered {
		// non-empty directories hold files we did not copy
		_ = os.Remove(dir)
	}
	return errors.Join(errs...)
}
