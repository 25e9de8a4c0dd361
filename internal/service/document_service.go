package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/mapper"
	"github.com/jobsturm/crm-local-sub000/internal/metrics"
	"github.com/jobsturm/crm-local-sub000/internal/numbering"
	"github.com/jobsturm/crm-local-sub000/internal/repository"
	"go.uber.org/zap"
)

// MaxNumberAttempts bounds the skip-forward over numbers whose file exists
const MaxNumberAttempts = 1000

// DocumentService creates and edits offers and invoices
type DocumentService struct {
	backend *Backend
	metrics *metrics.Metrics
	logger  *zap.Logger

	// serializes conversions so one offer cannot yield two invoices
	convertMu sync.Mutex
}

func NewDocumentService(backend *Backend, m *metrics.Metrics, logger *zap.Logger) *DocumentService {
	return &DocumentService{
		backend: backend,
		metrics: m,
		logger:  logger,
	}
}

// Create validates the request, draws the next number of the document type
// and writes the document. The document file is written inside the database
// update that advances the counter, so a failed document write leaves the
// counter unchanged.
func (s *DocumentService) Create(ctx context.Context, req *domain.CreateDocumentRequest) (*domain.Document, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	ws, release := s.backend.Acquire()
	defer release()

	now := s.backend.Now()
	doc, err := s.insert(ctx, ws, now, func(db *domain.Database) (*domain.Document, error) {
		i := db.FindCustomer(req.CustomerID)
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, req.CustomerID)
		}
		return newDocument(req, &db.Customers[i], &db.Settings, now), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", req.DocumentType, err)
	}
	return doc, nil
}

// insert builds a document inside a database update, numbers it and writes
// its file before the update commits the advanced counter
func (s *DocumentService) insert(ctx context.Context, ws *repository.Workspace, now time.Time, build func(db *domain.Database) (*domain.Document, error)) (*domain.Document, error) {
	var doc *domain.Document
	err := ws.DB.Update(func(db *domain.Database) error {
		built, err := build(db)
		if err != nil {
			return err
		}

		number, err := s.issueNumber(ws, db.Settings.Numbering.For(built.DocumentType), built.DocumentType, now)
		if err != nil {
			return err
		}
		built.DocumentNumber = number

		if err := ws.Documents.Save(ctx, built); err != nil {
			return err
		}
		doc = built
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.NumbersIssued.WithLabelValues(string(doc.DocumentType)).Inc()
	s.logger.Info("Document created",
		zap.String("documentId", doc.ID),
		zap.String("documentType", string(doc.DocumentType)),
		zap.String("documentNumber", doc.DocumentNumber),
	)
	return doc, nil
}

func newDocument(req *domain.CreateDocumentRequest, customer *domain.Customer, settings *domain.Settings, now time.Time) *domain.Document {
	doc := &domain.Document{
		ID:              uuid.NewString(),
		DocumentType:    req.DocumentType,
		CustomerID:      customer.ID,
		Customer:        domain.SnapshotOf(customer),
		Items:           mapper.ToItems(req.Items),
		TaxRate:         settings.DefaultTaxRate,
		IssueDate:       now,
		PaymentTermDays: settings.PaymentTermDays,
		Title:           req.Title,
		Introduction:    req.Introduction,
		Notes:           req.Notes,
		Footer:          req.Footer,
		Status:          domain.StatusDraft,
		StatusHistory:   domain.NewStatusHistory(now, ""),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.DocumentType == domain.DocumentTypeOffer {
		doc.PaymentTermDays = settings.OfferValidityDays
	}
	if req.TaxRate != nil {
		doc.TaxRate = *req.TaxRate
	}
	if req.PaymentTermDays != nil {
		doc.PaymentTermDays = *req.PaymentTermDays
	}
	if req.IssueDate != nil {
		doc.IssueDate = req.IssueDate.UTC()
	}
	doc.Recalculate()
	doc.SetDueDate()
	return doc
}

// issueNumber renders and advances the counters of state until it finds a
// number without a file. Skipped numbers stay consumed.
func (s *DocumentService) issueNumber(ws *repository.Workspace, state *domain.NumberingState, t domain.DocumentType, at time.Time) (string, error) {
	for attempt := 0; attempt < MaxNumberAttempts; attempt++ {
		number := numbering.Next(state, at)
		if !repository.ValidFileName(number) {
			return "", invalid("number %q rendered from %q cannot be used as a file name", number, state.Format)
		}

		exists, err := ws.Documents.Exists(t, at.Year(), number)
		if err != nil {
			return "", fmt.Errorf("failed to check number %s: %w", number, err)
		}
		if !exists {
			return number, nil
		}
		s.logger.Warn("Document number already taken, skipping",
			zap.String("documentType", string(t)),
			zap.String("documentNumber", number),
		)
	}
	return "", fmt.Errorf("%w: no free %s number after %d attempts", ErrNumberConflict, t, MaxNumberAttempts)
}

func validateItems(items []domain.DocumentItemInput) error {
	if len(items) == 0 {
		return invalid("at least one item is required")
	}
	for i, item := range items {
		if strings.TrimSpace(item.Description) == "" {
			return invalid("item %d: description is required", i+1)
		}
		if item.Quantity < 0 || item.UnitPrice < 0 {
			return invalid("item %d: quantity and unit price must not be negative", i+1)
		}
	}
	return nil
}

// GetByID returns a document of either type
func (s *DocumentService) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	ws, release := s.backend.Acquire()
	defer release()

	doc, err := ws.Documents.Find(ctx, id)
	if err != nil {
		return nil, documentError(err)
	}
	return doc, nil
}

// Update edits a document. Totals and the due date are recomputed; changing
// the customer refreshes the snapshot.
func (s *DocumentService) Update(ctx context.Context, id string, req *domain.UpdateDocumentRequest) (*domain.Document, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Items != nil {
		if err := validateItems(*req.Items); err != nil {
			return nil, err
		}
	}

	ws, release := s.backend.Acquire()
	defer release()

	current, err := ws.Documents.Find(ctx, id)
	if err != nil {
		return nil, documentError(err)
	}

	var snapshot *domain.CustomerSnapshot
	if req.CustomerID != nil && *req.CustomerID != current.CustomerID {
		customer, err := ws.Customers.GetByID(ctx, *req.CustomerID)
		if err != nil {
			return nil, customerError(err)
		}
		snap := domain.SnapshotOf(customer)
		snapshot = &snap
	}

	now := s.backend.Now()
	doc, err := ws.Documents.Modify(ctx, current.DocumentType, id, func(doc *domain.Document) error {
		applyDocumentUpdate(doc, req, snapshot)
		doc.Recalculate()
		doc.SetDueDate()
		doc.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, documentError(err)
	}
	return doc, nil
}

func applyDocumentUpdate(doc *domain.Document, req *domain.UpdateDocumentRequest, snapshot *domain.CustomerSnapshot) {
	if snapshot != nil {
		doc.CustomerID = *req.CustomerID
		doc.Customer = *snapshot
	}
	if req.Items != nil {
		doc.Items = mapper.ToItems(*req.Items)
	}
	if req.TaxRate != nil {
		doc.TaxRate = *req.TaxRate
	}
	if req.PaymentTermDays != nil {
		doc.PaymentTermDays = *req.PaymentTermDays
	}
	if req.IssueDate != nil {
		doc.IssueDate = req.IssueDate.UTC()
	}
	if req.Title != nil {
		doc.Title = *req.Title
	}
	if req.Introduction != nil {
		doc.Introduction = *req.Introduction
	}
	if req.Notes != nil {
		doc.Notes = *req.Notes
	}
	if req.Footer != nil {
		doc.Footer = *req.Footer
	}
}

// Delete removes a document file. Its number is not reused.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	ws, release := s.backend.Acquire()
	defer release()

	doc, err := ws.Documents.Find(ctx, id)
	if err != nil {
		return documentError(err)
	}
	if err := ws.Documents.Delete(ctx, doc); err != nil {
		return documentError(err)
	}

	s.logger.Info("Document deleted",
		zap.String("documentId", doc.ID),
		zap.String("documentNumber", doc.DocumentNumber),
	)
	return nil
}

// List returns summaries of the given types, newest first
func (s *DocumentService) List(ctx context.Context, types ...domain.DocumentType) ([]domain.DocumentSummary, error) {
	for _, t := range types {
		if !t.IsValid() {
			return nil, invalid("unknown document type %q", t)
		}
	}

	ws, release := s.backend.Acquire()
	defer release()

	return ws.Documents.List(ctx, types...)
}

// PeekNumber returns the number the next document of type t would receive
func (s *DocumentService) PeekNumber(ctx context.Context, t domain.DocumentType) (string, error) {
	if !t.IsValid() {
		return "", invalid("unknown document type %q", t)
	}

	ws, release := s.backend.Acquire()
	defer release()

	db := ws.DB.Snapshot()
	return numbering.Peek(db.Settings.Numbering.For(t), s.backend.Now()), nil
}

func documentError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrDocumentNotFound, err)
	case errors.Is(err, repository.ErrInvalidDocument):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return err
	}
}
