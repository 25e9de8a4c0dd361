package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"go.uber.org/zap"
)

type CustomerHandler struct {
	customerService *service.CustomerService
	logger          *zap.Logger
}

func NewCustomerHandler(customerService *service.CustomerService, logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{
		customerService: customerService,
		logger:          logger,
	}
}

// List returns all customers, optionally filtered by ?search=
func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customerService.List(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		handleError(w, h.logger, err, "Failed to list customers")
		return
	}
	respondJSON(w, http.StatusOK, customers)
}

func (h *CustomerHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	customer, err := h.customerService.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, h.logger, err, "Failed to get customer")
		return
	}
	respondJSON(w, http.StatusOK, customer)
}

func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	customer, err := h.customerService.Create(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to create customer")
		return
	}

	w.Header().Set("Location", "/api/v1/customers/"+customer.ID)
	respondJSON(w, http.StatusCreated, customer)
}

func (h *CustomerHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	customer, err := h.customerService.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to update customer")
		return
	}
	respondJSON(w, http.StatusOK, customer)
}

// Delete removes a customer. Documents keep their customer snapshot.
func (h *CustomerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.customerService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, h.logger, err, "Failed to delete customer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
