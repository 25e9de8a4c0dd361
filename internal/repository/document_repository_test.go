package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/metrics"
	"github.com/jobsturm/crm-local-sub000/internal/repository"
	"github.com/jobsturm/crm-local-sub000/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var created = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

func newRepo(t *testing.T, root string, opts ...repository.DocumentOption) *repository.DocumentRepository {
	t.Helper()
	return repository.NewDocumentRepository(root, zap.NewNop(), metrics.New(), opts...)
}

func sampleDocument(id, number string, t domain.DocumentType) *domain.Document {
	convertedFrom := "offer-1"
	doc := &domain.Document{
		ID:             id,
		DocumentType:   t,
		DocumentNumber: number,
		CustomerID:     "c1",
		Customer: domain.CustomerSnapshot{
			Name:    "Acme",
			Address: domain.Address{Street: "Main 1", City: "Utrecht"},
		},
		Items: []domain.DocumentItem{
			{ID: "i1", Description: "Consulting", Quantity: 3, UnitPrice: 99.5},
			{ID: "i2", Description: "Travel", Quantity: 1, UnitPrice: 20, ProductID: "p1"},
		},
		TaxRate:         21,
		IssueDate:       created,
		PaymentTermDays: 14,
		Title:           "Project",
		Notes:           "Thanks",
		Status:          domain.StatusDraft,
		StatusHistory:   domain.NewStatusHistory(created, ""),
		CreatedAt:       created,
		UpdatedAt:       created,
	}
	if t == domain.DocumentTypeInvoice {
		doc.ConvertedFromOfferID = &convertedFrom
	}
	doc.Recalculate()
	doc.SetDueDate()
	return doc
}

// ============================================================================
// Save / Load Tests
// ============================================================================

func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	repo := newRepo(t, root)
	doc := sampleDocument("d1", "INV-2025-0001", domain.DocumentTypeInvoice)

	require.NoError(t, repo.Save(ctx, doc))

	path := filepath.Join(root, "invoices", "2025", "INV-2025-0001.json")
	assert.Equal(t, path, repo.PathFor(doc))
	assert.FileExists(t, path)

	// a fresh repository has no hints and must scan
	loaded, err := newRepo(t, root).Load(ctx, domain.DocumentTypeInvoice, "d1")
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}

func TestSave_WritesEnvelope(t *testing.T) {
	root := t.TempDir()
	repo := newRepo(t, root)
	doc := sampleDocument("d1", "OFF-2025-0001", domain.DocumentTypeOffer)
	require.NoError(t, repo.Save(context.Background(), doc))

	content, err := os.ReadFile(repo.PathFor(doc))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(content, &raw))

	assert.Equal(t, repository.DocumentVersion, raw["version"])
	assert.Contains(t, raw, "document")
}

func TestSave_RejectsUnaddressableDocuments(t *testing.T) {
	repo := newRepo(t, t.TempDir())

	tests := []struct {
		name   string
		mutate func(d *domain.Document)
	}{
		{"missing id", func(d *domain.Document) { d.ID = "" }},
		{"bad type", func(d *domain.Document) { d.DocumentType = "receipt" }},
		{"slash in number", func(d *domain.Document) { d.DocumentNumber = "INV/2025/1" }},
		{"dot number", func(d *domain.Document) { d.DocumentNumber = ".." }},
		{"missing createdAt", func(d *domain.Document) { d.CreatedAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDocument("d1", "INV-1", domain.DocumentTypeInvoice)
			tt.mutate(doc)
			assert.ErrorIs(t, repo.Save(context.Background(), doc), repository.ErrInvalidDocument)
		})
	}
}

func TestSave_FailedWriteKeepsPreviousVersion(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	doc := sampleDocument("d1", "INV-1", domain.DocumentTypeInvoice)
	require.NoError(t, newRepo(t, root).Save(ctx, doc))

	failing := storage.NewAtomicWriter(storage.WithRenameFunc(func(oldpath, newpath string) error {
		return errors.New("power loss")
	}))
	repo := newRepo(t, root, repository.WithDocumentWriter(failing))

	changed := *doc
	changed.Title = "Changed"
	err := repo.Save(ctx, &changed)
	assert.ErrorIs(t, err, storage.ErrWriteFailed)

	loaded, err := newRepo(t, root).Load(ctx, domain.DocumentTypeInvoice, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Project", loaded.Title)
}

func TestLoad_NotFound(t *testing.T) {
	repo := newRepo(t, t.TempDir())

	_, err := repo.Load(context.Background(), domain.DocumentTypeOffer, "missing")

	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLoad_WrongTypeIsNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, t.TempDir())
	require.NoError(t, repo.Save(ctx, sampleDocument("d1", "OFF-1", domain.DocumentTypeOffer)))

	_, err := repo.Load(ctx, domain.DocumentTypeInvoice, "d1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	found, err := repo.Find(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentTypeOffer, found.DocumentType)
}

func TestLoad_StaleHintFallsBackToScan(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	repo := newRepo(t, root)
	doc := sampleDocument("d1", "INV-1", domain.DocumentTypeInvoice)
	require.NoError(t, repo.Save(ctx, doc))

	// Move the file behind the repository's back
	moved := filepath.Join(root, "invoices", "2024", "INV-1.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(moved), 0o755))
	require.NoError(t, os.Rename(repo.PathFor(doc), moved))

	loaded, err := repo.Load(ctx, domain.DocumentTypeInvoice, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", loaded.ID)
}

func TestLoad_CorruptTargetReturnsError(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, "offers", "2025", "OFF-1.json")
	require.NoError(t, storage.WriteFile(path, []byte(`{"version":"9.9.9","document":{"id":"d1","documentType":"offer"}}`)))

	_, err := newRepo(t, root).Load(ctx, domain.DocumentTypeOffer, "d1")

	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}

// ============================================================================
// Corpus scan Tests
// ============================================================================

func TestLoadAll_SkipsCorruptFilesWithWarning(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	core, logs := observer.New(zapcore.WarnLevel)
	m := metrics.New()
	repo := repository.NewDocumentRepository(root, zap.New(core), m)

	require.NoError(t, repo.Save(ctx, sampleDocument("d1", "INV-1", domain.DocumentTypeInvoice)))
	require.NoError(t, storage.WriteFile(filepath.Join(root, "invoices", "2025", "broken.json"), []byte("{truncated")))
	require.NoError(t, storage.WriteFile(filepath.Join(root, "invoices", "2025", "notes.txt"), []byte("ignored")))
	require.NoError(t, os.WriteFile(filepath.Join(root, "invoices", "2025", ".INV-2.json.42.tmp"), []byte("{"), 0o644))
	require.NoError(t, storage.WriteFile(filepath.Join(root, "invoices", "misc", "x.json"), []byte("{")))

	docs, err := repo.LoadAll(ctx, domain.DocumentTypeInvoice)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "d1", docs[0].ID)

	warnings := logs.FilterMessage("Skipping unreadable document file").All()
	require.Len(t, warnings, 1)
	assert.True(t, strings.HasSuffix(warnings[0].ContextMap()["path"].(string), "broken.json"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CorruptSkipped.WithLabelValues("invoice")))
}

func TestLoadAll_NewestFirstAcrossTypes(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, t.TempDir())

	older := sampleDocument("a", "OFF-1", domain.DocumentTypeOffer)
	newer := sampleDocument("b", "INV-1", domain.DocumentTypeInvoice)
	newer.CreatedAt = created.Add(time.Hour)
	require.NoError(t, repo.Save(ctx, older))
	require.NoError(t, repo.Save(ctx, newer))

	docs, err := repo.LoadAll(ctx)

	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "a", docs[1].ID)
}

func TestList_ReportsEffectiveStatus(t *testing.T) {
	ctx := context.Background()
	now := created.AddDate(0, 2, 0)
	repo := newRepo(t, t.TempDir(), repository.WithDocumentClock(func() time.Time { return now }))

	doc := sampleDocument("d1", "INV-1", domain.DocumentTypeInvoice)
	doc.ApplyTransition(domain.StatusSent, created, "")
	require.NoError(t, repo.Save(ctx, doc))

	summaries, err := repo.List(ctx, domain.DocumentTypeInvoice)

	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, domain.StatusOverdue, summaries[0].Status)
	assert.Equal(t, "Acme", summaries[0].CustomerName)
	assert.Equal(t, doc.Total, summaries[0].Total)
}

func TestLoadAll_EmptyRoot(t *testing.T) {
	docs, err := newRepo(t, t.TempDir()).LoadAll(context.Background())

	require.NoError(t, err)
	assert.Empty(t, docs)
}

// ============================================================================
// Legacy document Tests
// ============================================================================

func TestLoad_MigratesBareLegacyDocument(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	legacy := map[string]any{
		"id":             "old",
		"documentType":   "invoice",
		"documentNumber": "INV-2023-0009",
		"customerId":     "c1",
		"customer":       map[string]any{"name": "Acme"},
		"items":          []any{},
		"status":         "paid",
		"issueDate":      "2023-05-01T00:00:00Z",
		"dueDate":        "2023-05-31T00:00:00Z",
		"createdAt":      "2023-05-01T00:00:00Z",
		"updatedAt":      "2023-05-20T00:00:00Z",
	}
	data, err := json.Marshal(legacy)
	require.NoError(t, err)
	path := filepath.Join(root, "invoices", "2023", "INV-2023-0009.json")
	require.NoError(t, storage.WriteFile(path, data))

	doc, err := newRepo(t, root).Load(ctx, domain.DocumentTypeInvoice, "old")

	require.NoError(t, err)
	assert.Equal(t, 30, doc.PaymentTermDays)
	require.Len(t, doc.StatusHistory, 2)
	assert.Nil(t, doc.StatusHistory[0].FromStatus)
	assert.Equal(t, domain.StatusPaid, doc.StatusHistory[1].ToStatus)
	assert.Equal(t, time.Date(2023, 5, 20, 0, 0, 0, 0, time.UTC), doc.StatusHistory[1].ChangedAt)

	// Reading does not rewrite the file
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, raw)
}

// ============================================================================
// Modify / Delete / Exists Tests
// ============================================================================

func TestModify_SerializesConcurrentEdits(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, t.TempDir())
	doc := sampleDocument("d1", "INV-1", domain.DocumentTypeInvoice)
	doc.Notes = ""
	require.NoError(t, repo.Save(ctx, doc))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Modify(ctx, domain.DocumentTypeInvoice, "d1", func(d *domain.Document) error {
				d.Notes += "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loaded, err := repo.Load(ctx, domain.DocumentTypeInvoice, "d1")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", 20), loaded.Notes)
}

func TestModify_RejectsAddressChange(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, t.TempDir())
	require.NoError(t, repo.Save(ctx, sampleDocument("d1", "INV-1", domain.DocumentTypeInvoice)))

	_, err := repo.Modify(ctx, domain.DocumentTypeInvoice, "d1", func(d *domain.Document) error {
		d.DocumentNumber = "INV-2"
		return nil
	})

	assert.ErrorIs(t, err, repository.ErrInvalidDocument)
}

func TestModify_CallbackErrorAborts(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, t.TempDir())
	require.NoError(t, repo.Save(ctx, sampleDocument("d1", "INV-1", domain.DocumentTypeInvoice)))
	stop := errors.New("stop")

	_, err := repo.Modify(ctx, domain.DocumentTypeInvoice, "d1", func(d *domain.Document) error {
		d.Title = "never saved"
		return stop
	})

	assert.ErrorIs(t, err, stop)
	loaded, err := repo.Load(ctx, domain.DocumentTypeInvoice, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Project", loaded.Title)
}

// writeAt stores doc at a path of the caller's choosing, as data from older
// versions or other clocks may be laid out
func writeAt(t *testing.T, path string, doc *domain.Document) {
	t.Helper()
	require.NoError(t, storage.WriteJSON(path, map[string]any{"version": repository.DocumentVersion, "document": doc}))
}

func TestModifyAndDelete_UseTheFileTheDocumentWasFoundAt(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	doc := sampleDocument("d1", "INV-2025-0001", domain.DocumentTypeInvoice)
	doc.CreatedAt = time.Date(2024, 12, 31, 23, 30, 0, 0, time.UTC)
	path := filepath.Join(root, "invoices", "2025", "INV-2025-0001.json")
	writeAt(t, path, doc)

	repo := newRepo(t, root)
	_, err := repo.Modify(ctx, domain.DocumentTypeInvoice, "d1", func(d *domain.Document) error {
		d.Notes = "edited"
		return nil
	})
	require.NoError(t, err)

	docs, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1, "the edit replaces the existing file")
	assert.Equal(t, "edited", docs[0].Notes)
	assert.NoFileExists(t, repo.PathFor(doc))

	// a fresh repository has no remembered paths and must scan
	repo = newRepo(t, root)
	require.NoError(t, repo.Delete(ctx, doc))

	assert.NoFileExists(t, path)
	docs, err = repo.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSave_ReplacesTheFileTheDocumentWasFoundAt(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	doc := sampleDocument("d1", "INV-1", domain.DocumentTypeInvoice)
	path := filepath.Join(root, "invoices", "2024", "INV-1.json")
	writeAt(t, path, doc)

	repo := newRepo(t, root)
	loaded, err := repo.Load(ctx, domain.DocumentTypeInvoice, "d1")
	require.NoError(t, err)
	loaded.Title = "Renamed"
	require.NoError(t, repo.Save(ctx, loaded))

	assert.NoFileExists(t, repo.PathFor(loaded))
	docs, err := repo.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Renamed", docs[0].Title)
}

func TestDeleteAndExists(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, t.TempDir())
	doc := sampleDocument("d1", "INV-1", domain.DocumentTypeInvoice)
	require.NoError(t, repo.Save(ctx, doc))

	exists, err := repo.Exists(domain.DocumentTypeInvoice, 2025, "INV-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, repo.Delete(ctx, doc))

	exists, err = repo.Exists(domain.DocumentTypeInvoice, 2025, "INV-1")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.ErrorIs(t, repo.Delete(ctx, doc), repository.ErrNotFound)
	_, err = repo.Load(ctx, domain.DocumentTypeInvoice, "d1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestValidFileName(t *testing.T) {
	assert.True(t, repository.ValidFileName("INV-2025-0001"))
	assert.True(t, repository.ValidFileName("2025 001"))
	assert.False(t, repository.ValidFileName(""))
	assert.False(t, repository.ValidFileName(".hidden"))
	assert.False(t, repository.ValidFileName("a/b"))
	assert.False(t, repository.ValidFileName(`a\b`))
	assert.False(t, repository.ValidFileName("a:b"))
}
