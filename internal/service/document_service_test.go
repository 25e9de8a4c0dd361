package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"github.com/jobsturm/crm-local-sub000/internal/storage"
)

func invoiceRequest(customerID string) *domain.CreateDocumentRequest {
	return &domain.CreateDocumentRequest{
		DocumentType: domain.DocumentTypeInvoice,
		CustomerID:   customerID,
		Items: []domain.DocumentItemInput{
			{Description: "Consulting", Quantity: 10, UnitPrice: 95},
			{Description: "Travel", Quantity: 1, UnitPrice: 42.5},
		},
	}
}

func createDocument(t *testing.T, env *testEnv, docType domain.DocumentType, customerID string) *domain.Document {
	t.Helper()
	req := invoiceRequest(customerID)
	req.DocumentType = docType
	doc, err := env.documents.Create(context.Background(), req)
	require.NoError(t, err)
	return doc
}

// ============================================================================
// Create Tests
// ============================================================================

func TestDocumentService_Create(t *testing.T) {
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")

	doc := createDocument(t, env, domain.DocumentTypeInvoice, c.ID)

	assert.Equal(t, "INV-2025-0001", doc.DocumentNumber)
	assert.Equal(t, domain.StatusDraft, doc.Status)
	assert.Equal(t, 992.5, doc.Subtotal)
	assert.Equal(t, 208.43, doc.TaxAmount)
	assert.Equal(t, 1200.93, doc.Total)
	assert.Equal(t, 14, doc.PaymentTermDays)
	assert.Equal(t, doc.IssueDate.AddDate(0, 0, 14), doc.DueDate)
	assert.Equal(t, "Acme", doc.Customer.Name)
	require.Len(t, doc.StatusHistory, 1)
	assert.Nil(t, doc.StatusHistory[0].FromStatus)
	assert.FileExists(t, filepath.Join(env.root, "invoices", "2025", "INV-2025-0001.json"))
}

func TestDocumentService_CreateOfferUsesValidity(t *testing.T) {
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")

	offer := createDocument(t, env, domain.DocumentTypeOffer, c.ID)

	assert.Equal(t, "OFF-2025-0001", offer.DocumentNumber)
	assert.Equal(t, 30, offer.PaymentTermDays)
}

func TestDocumentService_CreateOverrides(t *testing.T) {
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	rate, term := 9.0, 7

	req := invoiceRequest(c.ID)
	req.TaxRate = &rate
	req.PaymentTermDays = &term
	doc, err := env.documents.Create(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 9.0, doc.TaxRate)
	assert.Equal(t, 89.33, doc.TaxAmount)
	assert.Equal(t, doc.IssueDate.AddDate(0, 0, 7), doc.DueDate)
}

func TestDocumentService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")

	tests := []struct {
		name   string
		mutate func(req *domain.CreateDocumentRequest)
		target error
	}{
		{"no items", func(req *domain.CreateDocumentRequest) { req.Items = nil }, service.ErrInvalidInput},
		{"negative price", func(req *domain.CreateDocumentRequest) { req.Items[0].UnitPrice = -1 }, service.ErrInvalidInput},
		{"blank description", func(req *domain.CreateDocumentRequest) { req.Items[0].Description = "  " }, service.ErrInvalidInput},
		{"unknown type", func(req *domain.CreateDocumentRequest) { req.DocumentType = "receipt" }, service.ErrInvalidInput},
		{"unknown customer", func(req *domain.CreateDocumentRequest) { req.CustomerID = "missing" }, service.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := invoiceRequest(c.ID)
			tt.mutate(req)

			_, err := env.documents.Create(ctx, req)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	settings, err := env.settings.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settings.Numbering.Invoice.NextNumber, "failed creations consume no number")
}

func TestDocumentService_ConcurrentCreatesGetUniqueNumbers(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	const n = 25

	var wg sync.WaitGroup
	numbers := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			doc, err := env.documents.Create(ctx, invoiceRequest(c.ID))
			errs[i] = err
			if err == nil {
				numbers[i] = doc.DocumentNumber
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[numbers[i]], "duplicate number %s", numbers[i])
		seen[numbers[i]] = true
	}

	settings, err := env.settings.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, n+1, settings.Numbering.Invoice.NextNumber)
	assert.Equal(t, n, settings.Numbering.Invoice.YearCounters["2025"])

	list, err := env.documents.List(ctx, domain.DocumentTypeInvoice)
	require.NoError(t, err)
	assert.Len(t, list, n)
}

func TestDocumentService_SkipsNumbersWithExistingFiles(t *testing.T) {
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	dir := filepath.Join(env.root, "invoices", "2025")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "INV-2025-0001.json"), []byte("{}"), 0o644))

	doc := createDocument(t, env, domain.DocumentTypeInvoice, c.ID)

	assert.Equal(t, "INV-2025-0002", doc.DocumentNumber)
}

func TestDocumentService_FailedWriteKeepsCounter(t *testing.T) {
	ctx := context.Background()
	var failInvoices atomic.Bool
	writer := storage.NewAtomicWriter(storage.WithRenameFunc(func(oldpath, newpath string) error {
		if failInvoices.Load() && filepath.Base(filepath.Dir(filepath.Dir(newpath))) == "invoices" {
			return errors.New("disk full")
		}
		return os.Rename(oldpath, newpath)
	}))
	env := newEnv(t, writer)
	c := env.customer(t, "Acme")

	failInvoices.Store(true)
	_, err := env.documents.Create(ctx, invoiceRequest(c.ID))
	require.ErrorIs(t, err, storage.ErrWriteFailed)

	failInvoices.Store(false)
	doc := createDocument(t, env, domain.DocumentTypeInvoice, c.ID)
	assert.Equal(t, "INV-2025-0001", doc.DocumentNumber)
}

// ============================================================================
// Update Tests
// ============================================================================

func TestDocumentService_UpdateRecomputesTotals(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	doc := createDocument(t, env, domain.DocumentTypeInvoice, c.ID)

	items := []domain.DocumentItemInput{{Description: "Support", Quantity: 2, UnitPrice: 50}}
	title := "March support"
	updated, err := env.documents.Update(ctx, doc.ID, &domain.UpdateDocumentRequest{Items: &items, Title: &title})

	require.NoError(t, err)
	assert.Equal(t, 100.0, updated.Subtotal)
	assert.Equal(t, 121.0, updated.Total)
	assert.Equal(t, "March support", updated.Title)
	assert.Equal(t, doc.DocumentNumber, updated.DocumentNumber)
}

func TestDocumentService_CustomerSnapshotIsFrozen(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	doc := createDocument(t, env, domain.DocumentTypeInvoice, c.ID)

	renamed := "Acme Holding"
	_, err := env.customers.Update(ctx, c.ID, &domain.UpdateCustomerRequest{Name: &renamed})
	require.NoError(t, err)

	got, err := env.documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Customer.Name)

	other := env.customer(t, "Globex")
	updated, err := env.documents.Update(ctx, doc.ID, &domain.UpdateDocumentRequest{CustomerID: &other.ID})
	require.NoError(t, err)
	assert.Equal(t, "Globex", updated.Customer.Name)
}

func TestDocumentService_Delete(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	doc := createDocument(t, env, domain.DocumentTypeInvoice, c.ID)

	require.NoError(t, env.documents.Delete(ctx, doc.ID))

	_, err := env.documents.GetByID(ctx, doc.ID)
	assert.ErrorIs(t, err, service.ErrNotFound)
	next := createDocument(t, env, domain.DocumentTypeInvoice, c.ID)
	assert.Equal(t, "INV-2025-0002", next.DocumentNumber, "numbers are not reused")
}

// ============================================================================
// Status Tests
// ============================================================================

func TestDocumentService_StatusHistoryIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	doc := createDocument(t, env, domain.DocumentTypeInvoice, c.ID)

	_, err := env.documents.UpdateStatus(ctx, doc.ID, &domain.UpdateStatusRequest{Status: domain.StatusPaid})
	assert.ErrorIs(t, err, service.ErrInvalidTransition)

	sent, err := env.documents.UpdateStatus(ctx, doc.ID, &domain.UpdateStatusRequest{Status: domain.StatusSent})
	require.NoError(t, err)
	paid, err := env.documents.UpdateStatus(ctx, doc.ID, &domain.UpdateStatusRequest{Status: domain.StatusPaid, Note: "bank"})
	require.NoError(t, err)

	require.Len(t, paid.StatusHistory, 3)
	assert.Equal(t, sent.StatusHistory, paid.StatusHistory[:2])
	assert.Equal(t, domain.StatusSent, *paid.StatusHistory[2].FromStatus)
	assert.Equal(t, "bank", paid.StatusHistory[2].Note)
	assert.True(t, paid.StatusHistory[2].ChangedAt.After(paid.StatusHistory[1].ChangedAt))

	reloaded, err := env.documents.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, paid.StatusHistory, reloaded.StatusHistory)
}

func TestDocumentService_StatusMustBelongToType(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	doc := createDocument(t, env, domain.DocumentTypeInvoice, c.ID)

	_, err := env.documents.UpdateStatus(ctx, doc.ID, &domain.UpdateStatusRequest{Status: domain.StatusAccepted})

	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

// ============================================================================
// Conversion Tests
// ============================================================================

func TestDocumentService_ConvertOfferToInvoice(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	offer := createDocument(t, env, domain.DocumentTypeOffer, c.ID)
	_, err := env.documents.UpdateStatus(ctx, offer.ID, &domain.UpdateStatusRequest{Status: domain.StatusSent})
	require.NoError(t, err)

	result, err := env.documents.ConvertOfferToInvoice(ctx, offer.ID)
	require.NoError(t, err)

	inv := result.Invoice
	assert.Equal(t, "INV-2025-0001", inv.DocumentNumber)
	assert.Equal(t, domain.StatusDraft, inv.Status)
	assert.Equal(t, offer.Subtotal, inv.Subtotal)
	assert.Len(t, inv.Items, len(offer.Items))
	require.NotNil(t, inv.ConvertedFromOfferID)
	assert.Equal(t, offer.ID, *inv.ConvertedFromOfferID)

	assert.Equal(t, domain.StatusAccepted, result.Offer.Status)
	require.NotNil(t, result.Offer.ConvertedToInvoiceID)
	assert.Equal(t, inv.ID, *result.Offer.ConvertedToInvoiceID)
	last := result.Offer.StatusHistory[len(result.Offer.StatusHistory)-1]
	assert.Equal(t, domain.StatusSent, *last.FromStatus)
	assert.Equal(t, domain.StatusAccepted, last.ToStatus)

	_, err = env.documents.ConvertOfferToInvoice(ctx, offer.ID)
	assert.ErrorIs(t, err, service.ErrAlreadyConverted)

	_, err = env.documents.ConvertOfferToInvoice(ctx, inv.ID)
	assert.ErrorIs(t, err, service.ErrNotFound, "invoices cannot be converted")
}

func TestDocumentService_ConcurrentConversionsYieldOneInvoice(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	offer := createDocument(t, env, domain.DocumentTypeOffer, c.ID)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.documents.ConvertOfferToInvoice(ctx, offer.ID); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	invoices, err := env.documents.List(ctx, domain.DocumentTypeInvoice)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestDocumentService_PartialConversionCanBeLinked(t *testing.T) {
	ctx := context.Background()
	var failOffers atomic.Bool
	writer := storage.NewAtomicWriter(storage.WithRenameFunc(func(oldpath, newpath string) error {
		if failOffers.Load() && filepath.Base(filepath.Dir(filepath.Dir(newpath))) == "offers" {
			return errors.New("permission denied")
		}
		return os.Rename(oldpath, newpath)
	}))
	env := newEnv(t, writer)
	c := env.customer(t, "Acme")
	offer := createDocument(t, env, domain.DocumentTypeOffer, c.ID)

	failOffers.Store(true)
	_, err := env.documents.ConvertOfferToInvoice(ctx, offer.ID)

	var partial *service.PartialConversionError
	require.ErrorAs(t, err, &partial)
	assert.ErrorIs(t, err, service.ErrPartialConversion)
	assert.ErrorIs(t, err, storage.ErrWriteFailed)
	assert.Equal(t, offer.ID, partial.OfferID)

	inv, err := env.documents.GetByID(ctx, partial.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, offer.ID, *inv.ConvertedFromOfferID)

	stale, err := env.documents.GetByID(ctx, offer.ID)
	require.NoError(t, err)
	assert.Nil(t, stale.ConvertedToInvoiceID)
	assert.Equal(t, domain.StatusDraft, stale.Status)

	failOffers.Store(false)
	linked, err := env.documents.LinkConversion(ctx, offer.ID, partial.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, linked.Offer.Status)
	assert.Equal(t, partial.InvoiceID, *linked.Offer.ConvertedToInvoiceID)

	again, err := env.documents.LinkConversion(ctx, offer.ID, partial.InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, linked.Offer.StatusHistory, again.Offer.StatusHistory, "linking twice is a no-op")

	invoices, err := env.documents.List(ctx, domain.DocumentTypeInvoice)
	require.NoError(t, err)
	assert.Len(t, invoices, 1)
}

func TestDocumentService_LinkRejectsForeignInvoice(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	offer := createDocument(t, env, domain.DocumentTypeOffer, c.ID)
	inv := createDocument(t, env, domain.DocumentTypeInvoice, c.ID)

	_, err := env.documents.LinkConversion(ctx, offer.ID, inv.ID)

	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

// ============================================================================
// Listing Tests
// ============================================================================

func TestDocumentService_ListAndPeek(t *testing.T) {
	ctx := context.Background()
	env := newEnv(t, nil)
	c := env.customer(t, "Acme")
	createDocument(t, env, domain.DocumentTypeOffer, c.ID)
	createDocument(t, env, domain.DocumentTypeInvoice, c.ID)

	all, err := env.documents.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = env.documents.List(ctx, "receipt")
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	next, err := env.documents.PeekNumber(ctx, domain.DocumentTypeOffer)
	require.NoError(t, err)
	assert.Equal(t, "OFF-2025-0002", next)

	again, err := env.documents.PeekNumber(ctx, domain.DocumentTypeOffer)
	require.NoError(t, err)
	assert.Equal(t, next, again)
}
