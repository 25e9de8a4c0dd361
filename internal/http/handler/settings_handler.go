package handler

import (
	"net/http"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"go.uber.org/zap"
)

// SettingsHandler serves the business profile and application settings
type SettingsHandler struct {
	settingsService *service.SettingsService
	logger          *zap.Logger
}

func NewSettingsHandler(settingsService *service.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		settingsService: settingsService,
		logger:          logger,
	}
}

func (h *SettingsHandler) GetBusiness(w http.ResponseWriter, r *http.Request) {
	business, err := h.settingsService.GetBusiness(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "Failed to get business profile")
		return
	}
	respondJSON(w, http.StatusOK, business)
}

func (h *SettingsHandler) UpdateBusiness(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateBusinessRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	business, err := h.settingsService.UpdateBusiness(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to update business profile")
		return
	}
	respondJSON(w, http.StatusOK, business)
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.GetSettings(r.Context())
	if err != nil {
		handleError(w, h.logger, err, "Failed to get settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateSettingsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	settings, err := h.settingsService.UpdateSettings(r.Context(), &req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to update settings")
		return
	}
	respondJSON(w, http.StatusOK, settings)
}
