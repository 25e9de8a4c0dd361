package service

// Status changes and offer to invoice conversion. These methods live on
// DocumentService because conversion draws numbers the same way Create does.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/mapper"
	"github.com/jobsturm/crm-local-sub000/internal/repository"
	"go.uber.org/zap"
)

// ============================================================================
// Status transitions
// ============================================================================

// UpdateStatus moves a document to a new status and appends the history entry
func (s *DocumentService) UpdateStatus(ctx context.Context, id string, req *domain.UpdateStatusRequest) (*domain.Document, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ws, release := s.backend.Acquire()
	defer release()

	current, err := ws.Documents.Find(ctx, id)
	if err != nil {
		return nil, documentError(err)
	}

	now := s.backend.Now()
	doc, err := ws.Documents.Modify(ctx, current.DocumentType, id, func(doc *domain.Document) error {
		if !domain.IsValidStatus(doc.DocumentType, req.Status) {
			return fmt.Errorf("%w: %q is not a %s status", ErrInvalidTransition, req.Status, doc.DocumentType)
		}
		if !domain.CanTransition(doc.DocumentType, doc.Status, req.Status) {
			return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidTransition, doc.DocumentType, doc.Status, req.Status)
		}
		doc.ApplyTransition(req.Status, now, req.Note)
		return nil
	})
	if err != nil {
		return nil, documentError(err)
	}

	s.logger.Info("Document status changed",
		zap.String("documentId", doc.ID),
		zap.String("documentNumber", doc.DocumentNumber),
		zap.String("status", string(doc.Status)),
	)
	return doc, nil
}

// ============================================================================
// Conversion
// ============================================================================

// ConvertOfferToInvoice creates a draft invoice from an offer and marks the
// offer accepted. The invoice is written first; when the offer update fails
// afterwards a *PartialConversionError is returned and LinkConversion can
// finish the job without creating a second invoice.
func (s *DocumentService) ConvertOfferToInvoice(ctx context.Context, offerID string) (*domain.ConvertOfferResponse, error) {
	s.convertMu.Lock()
	defer s.convertMu.Unlock()

	ws, release := s.backend.Acquire()
	defer release()

	offer, err := ws.Documents.Load(ctx, domain.DocumentTypeOffer, offerID)
	if err != nil {
		return nil, documentError(err)
	}
	if offer.ConvertedToInvoiceID != nil {
		return nil, fmt.Errorf("%w: offer %s is linked to invoice %s", ErrAlreadyConverted, offer.DocumentNumber, *offer.ConvertedToInvoiceID)
	}

	now := s.backend.Now()
	invoice, err := s.insert(ctx, ws, now, func(db *domain.Database) (*domain.Document, error) {
		return invoiceFromOffer(offer, now), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice from offer %s: %w", offer.DocumentNumber, err)
	}

	updated, err := s.linkOffer(ctx, ws, offerID, invoice)
	if err != nil {
		s.logger.Error("Invoice created but offer not linked",
			zap.String("offerId", offerID),
			zap.String("invoiceId", invoice.ID),
			zap.String("documentNumber", invoice.DocumentNumber),
			zap.Error(err),
		)
		return nil, &PartialConversionError{
			OfferID:       offerID,
			InvoiceID:     invoice.ID,
			InvoiceNumber: invoice.DocumentNumber,
			Err:           err,
		}
	}

	return &domain.ConvertOfferResponse{Offer: updated, Invoice: invoice}, nil
}

func invoiceFromOffer(offer *domain.Document, now time.Time) *domain.Document {
	offerID := offer.ID
	invoice := &domain.Document{
		ID:                   uuid.NewString(),
		DocumentType:         domain.DocumentTypeInvoice,
		CustomerID:           offer.CustomerID,
		Customer:             offer.Customer,
		Items:                mapper.CopyItems(offer.Items),
		TaxRate:              offer.TaxRate,
		IssueDate:            now,
		PaymentTermDays:      offer.PaymentTermDays,
		Title:                offer.Title,
		Introduction:         offer.Introduction,
		Notes:                offer.Notes,
		Footer:               offer.Footer,
		Status:               domain.StatusDraft,
		StatusHistory:        domain.NewStatusHistory(now, "Created from offer "+offer.DocumentNumber),
		CreatedAt:            now,
		UpdatedAt:            now,
		ConvertedFromOfferID: &offerID,
	}
	invoice.Recalculate()
	invoice.SetDueDate()
	return invoice
}

// LinkConversion completes a partial conversion by pointing the offer at an
// invoice that was created from it
func (s *DocumentService) LinkConversion(ctx context.Context, offerID, invoiceID string) (*domain.ConvertOfferResponse, error) {
	s.convertMu.Lock()
	defer s.convertMu.Unlock()

	ws, release := s.backend.Acquire()
	defer release()

	invoice, err := ws.Documents.Load(ctx, domain.DocumentTypeInvoice, invoiceID)
	if err != nil {
		return nil, documentError(err)
	}
	if invoice.ConvertedFromOfferID == nil || *invoice.ConvertedFromOfferID != offerID {
		return nil, invalid("invoice %s was not created from offer %s", invoice.DocumentNumber, offerID)
	}

	offer, err := s.linkOffer(ctx, ws, offerID, invoice)
	if err != nil {
		return nil, documentError(err)
	}
	return &domain.ConvertOfferResponse{Offer: offer, Invoice: invoice}, nil
}

// linkOffer sets convertedToInvoiceId and moves the offer to accepted. An
// offer already linked to the same invoice is returned unchanged.
func (s *DocumentService) linkOffer(ctx context.Context, ws *repository.Workspace, offerID string, invoice *domain.Document) (*domain.Document, error) {
	now := s.backend.Now()
	var unchanged *domain.Document

	offer, err := ws.Documents.Modify(ctx, domain.DocumentTypeOffer, offerID, func(doc *domain.Document) error {
		if doc.ConvertedToInvoiceID != nil {
			if *doc.ConvertedToInvoiceID == invoice.ID {
				unchanged = doc
				return errLinked
			}
			return fmt.Errorf("%w: offer %s is linked to invoice %s", ErrAlreadyConverted, doc.DocumentNumber, *doc.ConvertedToInvoiceID)
		}

		if doc.Status != domain.StatusAccepted {
			doc.ApplyTransition(domain.StatusAccepted, now, "Converted to invoice "+invoice.DocumentNumber)
		}
		invoiceID := invoice.ID
		doc.ConvertedToInvoiceID = &invoiceID
		doc.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errLinked) {
		return unchanged, nil
	}
	return offer, err
}

var errLinked = errors.New("offer already linked")
