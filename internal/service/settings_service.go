package service

import (
	"context"
	"fmt"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/mapper"
	"github.com/jobsturm/crm-local-sub000/internal/numbering"
	"github.com/jobsturm/crm-local-sub000/internal/repository"
	"go.uber.org/zap"
)

// SettingsService owns the business profile and the settings record
type SettingsService struct {
	backend *Backend
	logger  *zap.Logger
}

func NewSettingsService(backend *Backend, logger *zap.Logger) *SettingsService {
	return &SettingsService{backend: backend, logger: logger}
}

// GetBusiness returns the business profile, ErrBusinessNotFound before one
// was saved
func (s *SettingsService) GetBusiness(ctx context.Context) (*domain.Business, error) {
	ws, release := s.backend.Acquire()
	defer release()

	db := ws.DB.Snapshot()
	if db.Business == nil {
		return nil, ErrBusinessNotFound
	}
	return db.Business, nil
}

// UpdateBusiness merges the provided fields, creating the profile on first use
func (s *SettingsService) UpdateBusiness(ctx context.Context, req *domain.UpdateBusinessRequest) (*domain.Business, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ws, release := s.backend.Acquire()
	defer release()

	now := s.backend.Now()
	var updated domain.Business
	err := ws.DB.Update(func(db *domain.Database) error {
		b := mapper.MergeBusiness(db.Business, req, now)
		if b.Name == "" {
			return invalid("business name is required")
		}
		db.Business = b
		updated = *b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update business profile: %w", err)
	}
	return &updated, nil
}

func (s *SettingsService) GetSettings(ctx context.Context) (*domain.Settings, error) {
	ws, release := s.backend.Acquire()
	defer release()

	settings := ws.DB.Snapshot().Settings
	return &settings, nil
}

// UpdateSettings merges the provided fields. Numbering prefixes and templates
// are validated; counters cannot be changed here.
func (s *SettingsService) UpdateSettings(ctx context.Context, req *domain.UpdateSettingsRequest) (*domain.Settings, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	for name, in := range map[string]*domain.NumberingFormatInput{"offerNumbering": req.OfferNumbering, "invoiceNumbering": req.InvoiceNumbering} {
		if err := validateNumbering(name, in); err != nil {
			return nil, err
		}
	}

	ws, release := s.backend.Acquire()
	defer release()

	var updated domain.Settings
	err := ws.DB.Update(func(db *domain.Database) error {
		mapper.MergeSettings(&db.Settings, req)
		updated = db.Settings
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}

	s.logger.Info("Settings updated")
	return &updated, nil
}

func validateNumbering(name string, in *domain.NumberingFormatInput) error {
	if in == nil {
		return nil
	}
	if in.Format != nil {
		if err := numbering.Validate(*in.Format); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidInput, name, err)
		}
	}
	if in.Prefix != nil && *in.Prefix != "" && !repository.ValidFileName(*in.Prefix) {
		return invalid("%s: prefix %q cannot be used in a file name", name, *in.Prefix)
	}
	return nil
}
