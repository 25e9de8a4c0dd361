// Package app wires the storage, services and optional backup sink of one
// process. The API server and the admin CLI share it.
package app

import (
	"fmt"
	"time"

	"github.com/jobsturm/crm-local-sub000/internal/config"
	"github.com/jobsturm/crm-local-sub000/internal/metrics"
	"github.com/jobsturm/crm-local-sub000/internal/repository"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"github.com/jobsturm/crm-local-sub000/internal/storage"
	"go.uber.org/zap"
)

// App holds the services of an opened storage root
type App struct {
	Config  *config.Config
	Metrics *metrics.Metrics
	Backend *service.Backend

	Customers *service.CustomerService
	Products  *service.ProductService
	Documents *service.DocumentService
	Settings  *service.SettingsService
	Reports   *service.ReportService
	Root      *service.RootService
	// Backups is nil when backups are disabled
	Backups *service.BackupService
}

// Open resolves the active root, opens its database (running migrations)
// and builds the services
func Open(cfg *config.Config, log *zap.Logger) (*App, error) {
	m := metrics.New()

	root, err := service.ResolveRoot(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	// Shared by the store, the document listings and the services
	now := time.Now
	opts := repository.WorkspaceOptions{Writer: storage.NewAtomicWriter(), Clock: now}
	ws, err := repository.OpenWorkspace(root, log, m, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage root %s: %w", root, err)
	}
	log.Info("Storage root opened",
		zap.String("root", ws.Root),
		zap.String("version", ws.DB.Snapshot().Version),
	)

	backend := service.NewBackend(ws, now)
	a := &App{
		Config:    cfg,
		Metrics:   m,
		Backend:   backend,
		Customers: service.NewCustomerService(backend, log),
		Products:  service.NewProductService(backend, log),
		Documents: service.NewDocumentService(backend, m, log),
		Settings:  service.NewSettingsService(backend, log),
		Reports:   service.NewReportService(backend, m, log),
		Root:      service.NewRootService(backend, &cfg.Storage, m, log, opts),
	}

	if cfg.Backup.Enabled {
		sink, err := storage.NewSink(&cfg.Backup, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize backup sink: %w", err)
		}
		a.Backups = service.NewBackupService(backend, sink, cfg.Backup.Retain, m, log)
	}

	return a, nil
}
