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

type CustomerService struct {
	backend *Backend
	logger  *zap.Logger
}

func NewCustomerService(backend *Backend, logger *zap.Logger) *CustomerService {
	return &CustomerService{
		backend: backend,
		logger:  logger,
	}
}

func (s *CustomerService) Create(ctx context.Context, req *domain.CreateCustomerRequest) (*domain.Customer, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	ws, release := s.backend.Acquire()
	defer release()

	customer := mapper.ToCustomer(req, s.backend.Now())
	if err := ws.Customers.Create(ctx, &customer); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	s.logger.Info("Customer created", zap.String("customerId", customer.ID))
	return &customer, nil
}

func (s *CustomerService) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	ws, release := s.backend.Acquire()
	defer release()

	customer, err := ws.Customers.GetByID(ctx, id)
	if err != nil {
		return nil, customerError(err)
	}
	return customer, nil
}

// Update merges the provided fields into the stored customer. Documents keep
// the snapshot taken when they were created.
func (s *CustomerService) Update(ctx context.Context, id string, req *domain.UpdateCustomerRequest) (*domain.Customer, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Name != nil && *req.Name == "" {
		return nil, invalid("name must not be empty")
	}

	ws, release := s.backend.Acquire()
	defer release()

	now := s.backend.Now()
	customer, err := ws.Customers.Update(ctx, id, func(c *domain.Customer) error {
		mapper.MergeCustomer(c, req, now)
		return nil
	})
	if err != nil {
		return nil, customerError(err)
	}
	return customer, nil
}

// Delete removes a customer. Documents referring to it are kept.
func (s *CustomerService) Delete(ctx context.Context, id string) error {
	ws, release := s.backend.Acquire()
	defer release()

	if err := ws.Customers.Delete(ctx, id); err != nil {
		return customerError(err)
	}

	s.logger.Info("Customer deleted", zap.String("customerId", id))
	return nil
}

func (s *CustomerService) List(ctx context.Context, search string) ([]domain.Customer, error) {
	ws, release := s.backend.Acquire()
	defer release()

	return ws.Customers.List(ctx, search)
}

func customerError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrCustomerNotFound, err)
	}
	return fmt.Errorf("customer operation failed: %w", err)
}
