package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/finance"
	"github.com/jobsturm/crm-local-sub000/internal/metrics"
	"go.uber.org/zap"
)

// ReportService computes financial overviews. Nothing is cached; each call
// scans the invoice corpus.
type ReportService struct {
	backend *Backend
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewReportService(backend *Backend, m *metrics.Metrics, logger *zap.Logger) *ReportService {
	return &ReportService{backend: backend, metrics: m, logger: logger}
}

// Overview resolves the requested period against the fiscal year settings
// and aggregates every readable invoice
func (s *ReportService) Overview(ctx context.Context, req finance.PeriodRequest) (*finance.Overview, error) {
	ws, release := s.backend.Acquire()
	defer release()

	settings := ws.DB.Snapshot().Settings
	invoices, err := ws.Documents.LoadAll(ctx, domain.DocumentTypeInvoice)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoices: %w", err)
	}

	now := s.backend.Now()
	period, err := finance.ResolvePeriod(req, now, time.Month(settings.FiscalYearStartMonth), finance.EarliestIssue(invoices))
	if err != nil {
		if errors.Is(err, finance.ErrInvalidPeriod) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}

	overview := finance.Compute(invoices, period, now)
	overview.Currency = settings.Currency
	s.metrics.ReportComputations.Inc()

	s.logger.Debug("Financial overview computed",
		zap.String("period", period.Label),
		zap.Int("invoices", len(invoices)),
	)
	return &overview, nil
}
