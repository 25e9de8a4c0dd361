package handler

import (
	"net/http"
	"time"

	"github.com/jobsturm/crm-local-sub000/internal/finance"
	"github.com/jobsturm/crm-local-sub000/internal/service"
	"go.uber.org/zap"
)

type ReportHandler struct {
	reportService *service.ReportService
	logger        *zap.Logger
}

func NewReportHandler(reportService *service.ReportService, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		logger:        logger,
	}
}

// Overview returns the financial overview.
// Query: preset, year, quarter, start and end (2006-01-02, inclusive).
func (h *ReportHandler) Overview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := finance.ParsePeriodRequest(q.Get("preset"), q.Get("year"), q.Get("quarter"), q.Get("start"), q.Get("end"), time.Local)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	overview, err := h.reportService.Overview(r.Context(), req)
	if err != nil {
		handleError(w, h.logger, err, "Failed to compute financial overview")
		return
	}
	respondJSON(w, http.StatusOK, overview)
}
