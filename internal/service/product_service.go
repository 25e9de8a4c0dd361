package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jobsturm/crm-local-sub000/internal/domain"
	"github.com/jobsturm/crm-local-sub000/internal/mapper"
	"github.com/jobsturm/crm-local-sub000/internal/repository"
	"go.uber.org/zap"
)

// ProductService manages the product catalog used to prefill document lines
type ProductService struct {
	backend *Backend
	logger  *zap.Logger
}

func NewProductService(backend *Backend, logger *zap.Logger) *ProductService {
	return &ProductService{backend: backend, logger: logger}
}

func (s *ProductService) Create(ctx context.Context, req *domain.CreateProductRequest) (*domain.Product, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ws, release := s.backend.Acquire()
	defer release()

	product := mapper.ToProduct(req, s.backend.Now())
	if err := ws.Products.Create(ctx, &product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	return &product, nil
}

func (s *ProductService) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	ws, release := s.backend.Acquire()
	defer release()

	product, err := ws.Products.GetByID(ctx, id)
	if err != nil {
		return nil, productError(err)
	}
	return product, nil
}

func (s *ProductService) Update(ctx context.Context, id string, req *domain.UpdateProductRequest) (*domain.Product, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ws, release := s.backend.Acquire()
	defer release()

	now := s.backend.Now()
	product, err := ws.Products.Update(ctx, id, func(p *domain.Product) error {
		mapper.MergeProduct(p, req, now)
		return nil
	})
	if err != nil {
		return nil, productError(err)
	}
	return product, nil
}

func (s *ProductService) Delete(ctx context.Context, id string) error {
	ws, release := s.backend.Acquire()
	defer release()

	if err := ws.Products.Delete(ctx, id); err != nil {
		return productError(err)
	}
	return nil
}

func (s *ProductService) List(ctx context.Context) ([]domain.Product, error) {
	ws, release := s.backend.Acquire()
	defer release()

	return ws.Products.List(ctx)
}

func productError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrProductNotFound, err)
	}
	return fmt.Errorf("product operation failed: %w", err)
}
