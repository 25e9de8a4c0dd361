package repository

import (
	"time"

	"go.uber.org/zap"

	"github.com/jobsturm/crm-local-sub000/internal/database"
	applog "github.com/jobsturm/crm-local-sub000/internal/logger"
	"github.com/jobsturm/crm-local-sub000/internal/metrics"
	"github.com/jobsturm/crm-local-sub000/internal/storage"
)

// Workspace bundles the database and repositories of one storage root
type Workspace struct {
	Root      string
	DB        *database.Store
	Documents *DocumentRepository
	Customers *CustomerRepository
	Products  *ProductRepository
}

// WorkspaceOptions are shared by the store and the document repository
type WorkspaceOptions struct {
	Writer *storage.AtomicWriter
	Clock  func() time.Time
}

// OpenWorkspace opens (and migrates) the database at root and builds the
// repositories on top of it
func OpenWorkspace(root string, logger *zap.Logger, m *metrics.Metrics, opts WorkspaceOptions) (*Workspace, error) {
	logger = applog.WithRoot(logger, root)

	dbOpts := []database.Option{database.WithMetrics(m)}
	docOpts := []DocumentOption{}
	if opts.Writer != nil {
		dbOpts = append(dbOpts, database.WithWriter(opts.Writer))
		docOpts = append(docOpts, WithDocumentWriter(opts.Writer))
	}
	if opts.Clock != nil {
		dbOpts = append(dbOpts, database.WithClock(opts.Clock))
		docOpts = append(docOpts, WithDocumentClock(opts.Clock))
	}

	store, err := database.Open(root, logger, dbOpts...)
	if err != nil {
		return nil, err
	}

	return &Workspace{
		Root:      root,
		DB:        store,
		Documents: NewDocumentRepository(root, logger, m, docOpts...),
		Customers: NewCustomerRepository(store),
		Products:  NewProductRepository(store),
	}, nil
}
