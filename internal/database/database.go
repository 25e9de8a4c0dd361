// Package database owns the versioned database file {root}/database.json:
// loading, migrating and serialized atomic updates.
package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/metrics"
	"github.com/jobsturm/crm-local-sub000/internal/storage"
)

// FileName is the name of the database file inside the storage root
const FileName = "database.json"

// ErrCorruptDatabase is returned when database.json cannot be parsed
var ErrCorruptDatabase = errors.New("database file is corrupt")

// Mutator changes a working copy of the database. Returning an error aborts
// the update and leaves both memory and disk untouched.
type Mutator func(db *domain.Database) error

// Store serializes all reads and writes of the database file
type Store struct {
	root    string
	path    string
	writer  *storage.AtomicWriter
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	writeMu sync.Mutex
	mu      sync.RWMutex
	data    *domain.Database
}

// Option configures a Store
type Option func(*Store)

// WithWriter sets the atomic writer used for persistence
func WithWriter(w *storage.AtomicWriter) Option {
	return func(s *Store) { s.writer = w }
}

// WithClock sets the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMetrics sets the metrics collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open loads {root}/database.json, creating a default database when the file
// does not exist. Older versions are migrated and persisted before Open
// returns. A version newer than CurrentVersion is refused and the file is
// left as it is.
func Open(root string, logger *zap.Logger, opts ...Option) (*Store, error) {
	s := &Store{
		root:   root,
		path:   filepath.Join(root, FileName),
		writer: storage.NewAtomicWriter(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	db, err := s.load()
	if err != nil {
		return nil, err
	}
	s.data = db
	return s, nil
}

func (s *Store) load() (*domain.Database, error) {
	content, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		db := DefaultDatabase(s.now())
		if err := s.persist(db); err != nil {
			return nil, err
		}
		s.logger.Info("Created new database", zap.String("path", s.path))
		return db, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read database: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDatabase, err)
	}

	migrated, applied, err := chain.Migrate(raw)
	if err != nil {
		return nil, err
	}

	db, err := decode(migrated)
	if err != nil {
		return nil, err
	}

	if len(applied) > 0 {
		s.metrics.MigrationsApplied.WithLabelValues("database").Add(float64(len(applied)))
		if err := s.persist(db); err != nil {
			return nil, err
		}
		s.logger.Info("Migrated database",
			zap.String("path", s.path),
			zap.Strings("versions", applied),
		)
	}
	return db, nil
}

func decode(raw map[string]any) (*domain.Database, error) {
	content, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDatabase, err)
	}
	var db domain.Database
	if err := json.Unmarshal(content, &db); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDatabase, err)
	}
	normalize(&db)
	return &db, nil
}

// normalize replaces nil collections so the file always carries arrays and
// objects rather than nulls
func normalize(db *domain.Database) {
	if db.Customers == nil {
		db.Customers = []domain.Customer{}
	}
	if db.Products == nil {
		db.Products = []domain.Product{}
	}
	if db.Settings.Labels == nil {
		db.Settings.Labels = map[string]string{}
	}
	for _, t := range domain.DocumentTypes {
		state := db.Settings.Numbering.For(t)
		if state.YearCounters == nil {
			state.YearCounters = map[string]int{}
		}
		if state.NextNumber < 1 {
			state.NextNumber = 1
		}
	}
}

func (s *Store) persist(db *domain.Database) error {
	err := s.writer.WriteJSON(s.path, db)
	s.metrics.DatabaseWrites.WithLabelValues(metrics.Result(err)).Inc()
	return err
}

// Root returns the storage root directory
func (s *Store) Root() string {
	return s.root
}

// Path returns the path of database.json
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns a deep copy of the current database
func (s *Store) Snapshot() domain.Database {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *clone(s.data)
}

// View runs fn against the current database under a read lock. fn must not
// modify or retain db.
func (s *Store) View(fn func(db *domain.Database) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

// Update applies fn to a working copy, stamps updatedAt and writes the result
// atomically. The in-memory state is swapped only after the write succeeded.
// Updates are serialized; concurrent callers queue.
func (s *Store) Update(fn Mutator) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	working := clone(s.data)
	s.mu.RUnlock()

	if err := fn(working); err != nil {
		return err
	}

	working.Version = CurrentVersion
	working.UpdatedAt = s.now()
	normalize(working)

	if err := s.persist(working); err != nil {
		s.logger.Error("Failed to write database", zap.String("path", s.path), zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.data = working
	s.mu.Unlock()
	return nil
}

// Reload discards the in-memory state and reads the file again
func (s *Store) Reload() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	db, err := s.load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data = db
	s.mu.Unlock()
	return nil
}

func clone(db *domain.Database) *domain.Database {
	out := *db

	out.Customers = append([]domain.Customer(nil), db.Customers...)
	out.Products = append([]domain.Product(nil), db.Products...)
	if db.Business != nil {
		b := *db.Business
		out.Business = &b
	}

	out.Settings.Labels = make(map[string]string, len(db.Settings.Labels))
	for k, v := range db.Settings.Labels {
		out.Settings.Labels[k] = v
	}
	out.Settings.Numbering.Offer.YearCounters = copyCounters(db.Settings.Numbering.Offer.YearCounters)
	out.Settings.Numbering.Invoice.YearCounters = copyCounters(db.Settings.Numbering.Invoice.YearCounters)
	return &out
}

func copyCounters(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Status describes database.json without opening or migrating it
type Status struct {
	Path    string   `json:"path"`
	Exists  bool     `json:"exists"`
	Version string   `json:"version,omitempty"`
	Current string   `json:"current"`
	Pending []string `json:"pending,omitempty"`
	TooNew  bool     `json:"tooNew,omitempty"`
}

// Inspect reads the version of the database at root. Nothing is written.
func Inspect(root string) (*Status, error) {
	st := &Status{Path: filepath.Join(root, FileName), Current: CurrentVersion}
	content, err := os.ReadFile(st.Path)
	if errors.Is(err, os.ErrNotExist) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read database: %w", err)
	}
	st.Exists = true

	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptDatabase, err)
	}
	st.Version = chain.VersionOf(raw)
	if !ValidVersion(st.Version) {
		return nil, fmt.Errorf("%w: invalid version %q", ErrMigrationFailed, st.Version)
	}
	st.TooNew = CompareVersions(st.Version, CurrentVersion) > 0
	st.Pending = chain.Pending(st.Version)
	return st, nil
}
