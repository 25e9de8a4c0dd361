package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"go.uber.org/zap"
)

type ProductHandler struct {
	productService *service.ProductService
	logger         *zap.Logger
}

func NewProductHandler(productService *service.ProductService, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		logger:         logger,
	}
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.productService.List(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "Failed to list products")
		return
	}
	respondJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	product, err := h.productService.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, h.logger, err, "Failed to get product")
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := h.productService.Create(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to create product")
		return
	}

	w.Header().Set("Location", "/api/v1/products/"+product.ID)
	respondJSON(w, http.StatusCreated, product)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := h.productService.Update(r.Context(), chi.URLParam(r, "id"), &req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to update product")
		return
	}
	respondJSON(w, http.StatusOK, product)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.productService.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleError(w, h.logger, err, "Failed to delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
