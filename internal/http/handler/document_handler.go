package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"go.uber.org/zap"
)

// DocumentHandler serves offers and invoices
type DocumentHandler struct {
	documentService *service.DocumentService
	logger          *zap.Logger
}

func NewDocumentHandler(documentService *service.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          logger,
	}
}

// List returns document summaries. ?type=offer,invoice narrows the result.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	var types []domain.DocumentType
	if raw := r.URL.Query().Get("type"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			types = append(types, domain.DocumentType(strings.TrimSpace(t)))
		}
	}

	summaries, err := h.documentService.List(r.Context(), types...)
	if err != nil {
		handleError(w, h.logger, err, "Failed to list documents")
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

func (h *DocumentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documentService.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, h.logger, err, "Failed to get document")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	doc, err := h.documentService.Create(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to create document")
		return
	}

	w.Header().Set("Location", "/api/v1/documents/"+doc.ID)
	respondJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	doc, err := h.documentService.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to update document")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.documentService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, h.logger, err, "Failed to delete document")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	doc, err := h.documentService.UpdateStatus(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to update document status")
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// Convert creates an invoice from an offer
func (h *DocumentHandler) Convert(w http.ResponseWriter, r *http.Request) {
	result, err := h.documentService.ConvertOfferToInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, h.logger, err, "Failed to convert offer")
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

type linkConversionRequest struct {
	InvoiceID string `json:"invoiceId"`
}

// LinkConversion completes a conversion whose offer update failed
func (h *DocumentHandler) LinkConversion(w http.ResponseWriter, r *http.Request) {
	var req linkConversionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.InvoiceID == "" {
		respondWithError(w, http.StatusBadRequest, "invoiceId is required")
		return
	}

	result, err := h.documentService.LinkConversion(r.Context(), chi.URLParam(r, "id"), req.InvoiceID)
	if err != nil {
		handleError(w, h.logger, err, "Failed to link conversion")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// NextNumber previews the number the next document of ?type= would get
func (h *DocumentHandler) NextNumber(w http.ResponseWriter, r *http.Request) {
	t := domain.DocumentType(r.URL.Query().Get("type"))
	number, err := h.documentService.PeekNumber(r.Context(), t)
	if err != nil {
		handleError(w, h.logger, err, "Failed to preview document number")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"documentType":   string(t),
		"documentNumber": number,
	})
}
