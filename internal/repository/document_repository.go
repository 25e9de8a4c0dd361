package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/metrics"
	"github.com/jobsturm/crm-local-sub000/internal/storage"
)

type envelope struct {
	Version  string           `json:"version"`
	Document *domain.Document `json:"document"`
}

// DocumentRepository stores one JSON file per document under
// {root}/{offers|invoices}/{year}/{documentNumber}.json
type DocumentRepository struct {
	root    string
	writer  *storage.AtomicWriter
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	locks keyedMutex

	// id -> path, derived from scans and saves. Entries are verified on use.
	hints sync.Map
}

// DocumentOption configures a DocumentRepository
type DocumentOption func(*DocumentRepository)

// WithDocumentWriter sets the atomic writer used for saves
func WithDocumentWriter(w *storage.AtomicWriter) DocumentOption {
	return func(r *DocumentRepository) { r.writer = w }
}

// WithDocumentClock sets the clock used to derive effective statuses
func WithDocumentClock(now func() time.Time) DocumentOption {
	return func(r *DocumentRepository) { r.now = now }
}

// NewDocumentRepository creates a repository rooted at root
func NewDocumentRepository(root string, logger *zap.Logger, m *metrics.Metrics, opts ...DocumentOption) *DocumentRepository {
	r := &DocumentRepository{
		root:    root,
		writer:  storage.NewAtomicWriter(),
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
		locks:   keyedMutex{locks: map[string]*refLock{}},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Root returns the storage root
func (r *DocumentRepository) Root() string {
	return r.root
}

// PathFor returns the path derived from a document's type, creation year
// and number. New documents are written there.
func (r *DocumentRepository) PathFor(doc *domain.Document) string {
	return r.pathOf(doc.DocumentType, doc.Year(), doc.DocumentNumber)
}

func (r *DocumentRepository) pathOf(t domain.DocumentType, year int, number string) string {
	return filepath.Join(r.root, t.Dir(), strconv.Itoa(year), number+".json")
}

// Save writes the document, replacing the file it was last seen at. A
// document without a known file goes to its derived path.
func (r *DocumentRepository) Save(ctx context.Context, doc *domain.Document) error {
	if err := checkAddressable(doc); err != nil {
		return err
	}

	unlock := r.locks.Lock(doc.ID)
	defer unlock()

	path := r.PathFor(doc)
	if _, hinted, err := r.fromHint(doc.DocumentType, doc.ID); err == nil {
		path = hinted
	}
	return r.save(doc, path)
}

// Modify loads a document, applies fn and saves the result while holding the
// document's lock, so concurrent edits of one document do not interleave.
// An error from fn aborts without writing.
func (r *DocumentRepository) Modify(ctx context.Context, t domain.DocumentType, id string, fn func(doc *domain.Document) error) (*domain.Document, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	doc, path, err := r.locate(ctx, t, id)
	if err != nil {
		return nil, err
	}
	number, year := doc.DocumentNumber, doc.Year()
	if err := fn(doc); err != nil {
		return nil, err
	}
	if doc.ID != id || doc.DocumentType != t || doc.DocumentNumber != number || doc.Year() != year {
		return nil, fmt.Errorf("%w: id, number and creation year are fixed", ErrInvalidDocument)
	}
	if err := checkAddressable(doc); err != nil {
		return nil, err
	}
	if err := r.save(doc, path); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) save(doc *domain.Document, path string) error {
	err := r.writer.WriteJSON(path, envelope{Version: DocumentVersion, Document: doc})
	r.metrics.DocumentWrites.WithLabelValues(string(doc.DocumentType), metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to save %s %s: %w", doc.DocumentType, doc.DocumentNumber, err)
	}

	r.hints.Store(doc.ID, path)
	return nil
}

func checkAddressable(doc *domain.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	if !doc.DocumentType.IsValid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDocument, doc.DocumentType)
	}
	if !ValidFileName(doc.DocumentNumber) {
		return fmt.Errorf("%w: number %q cannot be used as a file name", ErrInvalidDocument, doc.DocumentNumber)
	}
	if doc.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing createdAt", ErrInvalidDocument)
	}
	return nil
}

// ValidFileName reports whether a rendered document number can be used as a
// single path element
func ValidFileName(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	return !strings.ContainsAny(name, `/\:*?"<>|`) && !strings.ContainsRune(name, 0)
}

// Load returns the document of type t with the given id
func (r *DocumentRepository) Load(ctx context.Context, t domain.DocumentType, id string) (*domain.Document, error) {
	doc, _, err := r.locate(ctx, t, id)
	return doc, err
}

// locate finds a document and the file it was read from. The file's own
// location wins over the path derived from its fields.
func (r *DocumentRepository) locate(ctx context.Context, t domain.DocumentType, id string) (*domain.Document, string, error) {
	if doc, path, err := r.fromHint(t, id); err == nil {
		return doc, path, nil
	}

	defer r.metrics.ObserveScan("load", time.Now())

	var found *domain.Document
	var foundPath string
	err := r.walk(ctx, []domain.DocumentType{t}, func(path string, doc *domain.Document, fileID string, err error) (bool, error) {
		if fileID != id {
			return false, nil
		}
		if err != nil {
			return true, err
		}
		found, foundPath = doc, path
		return true, nil
	})
	if err != nil {
		return nil, "", err
	}
	if found == nil {
		return nil, "", fmt.Errorf("%s %s: %w", t, id, ErrNotFound)
	}
	return found, foundPath, nil
}

// fromHint reads the file remembered for id. A hint that no longer points at
// that document is dropped.
func (r *DocumentRepository) fromHint(t domain.DocumentType, id string) (*domain.Document, string, error) {
	hinted, ok := r.hints.Load(id)
	if !ok {
		return nil, "", ErrNotFound
	}
	path := hinted.(string)
	doc, _, err := r.readFile(path)
	if err == nil && doc.ID == id && doc.DocumentType == t {
		return doc, path, nil
	}
	r.hints.Delete(id)
	return nil, "", ErrNotFound
}

// Find looks up a document by id across both types
func (r *DocumentRepository) Find(ctx context.Context, id string) (*domain.Document, error) {
	for _, t := range domain.DocumentTypes {
		doc, err := r.Load(ctx, t, id)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
}

// LoadAll returns every readable document of the given types (all types
// when none are given). Unreadable files are skipped.
func (r *DocumentRepository) LoadAll(ctx context.Context, types ...domain.DocumentType) ([]domain.Document, error) {
	defer r.metrics.ObserveScan("load_all", time.Now())

	var docs []domain.Document
	err := r.walk(ctx, types, func(path string, doc *domain.Document, _ string, err error) (bool, error) {
		if err == nil {
			docs = append(docs, *doc)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

// List returns summaries of every readable document of the given types,
// newest first. Statuses are reported as observed now.
func (r *DocumentRepository) List(ctx context.Context, types ...domain.DocumentType) ([]domain.DocumentSummary, error) {
	docs, err := r.LoadAll(ctx, types...)
	if err != nil {
		return nil, err
	}

	now := r.now()
	summaries := make([]domain.DocumentSummary, 0, len(docs))
	for i := range docs {
		summaries = append(summaries, docs[i].Summarize(now))
	}
	return summaries, nil
}

// Delete removes the file of a document
func (r *DocumentRepository) Delete(ctx context.Context, doc *domain.Document) error {
	unlock := r.locks.Lock(doc.ID)
	defer unlock()

	_, path, err := r.locate(ctx, doc.DocumentType, doc.ID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%s %s: %w", doc.DocumentType, doc.ID, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}

	r.hints.Delete(doc.ID)
	r.metrics.DocumentDeletes.WithLabelValues(string(doc.DocumentType)).Inc()
	return nil
}

// Exists reports whether a file for the given number already exists
func (r *DocumentRepository) Exists(t domain.DocumentType, year int, number string) (bool, error) {
	_, err := os.Stat(r.pathOf(t, year, number))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// visitFunc receives each document file. doc is nil when err is set; fileID
// is the id recorded in the file when it could be read at all. Returning
// true stops the walk.
type visitFunc func(path string, doc *domain.Document, fileID string, err error) (bool, error)

func (r *DocumentRepository) walk(ctx context.Context, types []domain.DocumentType, visit visitFunc) error {
	if len(types) == 0 {
		types = domain.DocumentTypes
	}

	for _, t := range types {
		paths, err := r.files(t)
		if err != nil {
			return err
		}

		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return err
			}

			doc, fileID, err := r.readFile(path)
			if err != nil {
				r.skip(t, path, err)
			} else {
				r.hints.Store(doc.ID, path)
			}

			stop, verr := visit(path, doc, fileID, err)
			if verr != nil {
				return verr
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

func (r *DocumentRepository) skip(t domain.DocumentType, path string, err error) {
	r.metrics.CorruptSkipped.WithLabelValues(string(t)).Inc()
	r.logger.Warn("Skipping unreadable document file",
		zap.String("path", path),
		zap.String("documentType", string(t)),
		zap.Error(err),
	)
}

// files lists {root}/{type}/{year}/*.json in directory order
func (r *DocumentRepository) files(t domain.DocumentType) ([]string, error) {
	typeDir := filepath.Join(r.root, t.Dir())
	years, err := os.ReadDir(typeDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", typeDir, err)
	}

	var paths []string
	for _, year := range years {
		if !year.IsDir() {
			continue
		}
		if _, err := strconv.Atoi(year.Name()); err != nil {
			continue
		}

		yearDir := filepath.Join(typeDir, year.Name())
		entries, err := os.ReadDir(yearDir)
		if err != nil {
			r.logger.Warn("Skipping unreadable year directory", zap.String("path", yearDir), zap.Error(err))
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || storage.IsTempFile(name) || !strings.HasSuffix(name, ".json") {
				continue
			}
			paths = append(paths, filepath.Join(yearDir, name))
		}
	}
	return paths, nil
}

// readFile parses and migrates one document file. The returned id is the
// id found in the file, set whenever the JSON could be parsed, so a caller
// looking for that id can surface the error.
func (r *DocumentRepository) readFile(path string) (*domain.Document, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(content, &raw); err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrCorruptDocument, filepath.Base(path), err)
	}

	// Files written before envelopes existed hold the bare document
	if _, wrapped := raw["document"]; !wrapped {
		if _, bare := raw["id"]; bare {
			raw = map[string]any{"version": "1.0.0", "document": raw}
		}
	}

	fileID := ""
	if inner, ok := raw["document"].(map[string]any); ok {
		fileID, _ = inner["id"].(string)
	}

	migrated, applied, err := documentChain.Migrate(raw)
	if err != nil {
		return nil, fileID, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if len(applied) > 0 {
		r.metrics.MigrationsApplied.WithLabelValues("document").Add(float64(len(applied)))
	}

	inner, err := json.Marshal(migrated["document"])
	if err != nil {
		return nil, fileID, fmt.Errorf("%w: %v", ErrCorruptDocument, err)
	}
	var doc domain.Document
	if err := json.Unmarshal(inner, &doc); err != nil {
		return nil, fileID, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, filepath.Base(path), err)
	}
	if doc.ID == "" || !doc.DocumentType.IsValid() {
		return nil, fileID, fmt.Errorf("%w: %s: missing id or type", ErrCorruptDocument, filepath.Base(path))
	}
	return &doc, fileID, nil
}
