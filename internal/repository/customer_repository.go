package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jobsturm/crm-local-sub000/internal/database"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
)

// CustomerRepository manages the customers array of the database
type CustomerRepository struct {
	store *database.Store
}

func NewCustomerRepository(store *database.Store) *CustomerRepository {
	return &CustomerRepository{store: store}
}

func (r *CustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	return r.store.Update(func(db *domain.Database) error {
		if db.FindCustomer(customer.ID) >= 0 {
			return fmt.Errorf("customer %s already exists", customer.ID)
		}
		db.Customers = append(db.Customers, *customer)
		return nil
	})
}

func (r *CustomerRepository) GetByID(ctx context.Context, id string) (*domain.Customer, error) {
	var customer *domain.Customer
	err := r.store.View(func(db *domain.Database) error {
		i := db.FindCustomer(id)
		if i < 0 {
			return fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		c := db.Customers[i]
		customer = &c
		return nil
	})
	return customer, err
}

// Update applies fn to the stored customer and persists the result
func (r *CustomerRepository) Update(ctx context.Context, id string, fn func(c *domain.Customer) error) (*domain.Customer, error) {
	var updated domain.Customer
	err := r.store.Update(func(db *domain.Database) error {
		i := db.FindCustomer(id)
		if i < 0 {
			return fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		if err := fn(&db.Customers[i]); err != nil {
			return err
		}
		updated = db.Customers[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *CustomerRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(func(db *domain.Database) error {
		i := db.FindCustomer(id)
		if i < 0 {
			return fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		db.Customers = append(db.Customers[:i], db.Customers[i+1:]...)
		return nil
	})
}

// List returns customers sorted by name, optionally filtered by a
// case-insensitive search over name, company and email
func (r *CustomerRepository) List(ctx context.Context, search string) ([]domain.Customer, error) {
	snapshot := r.store.Snapshot()

	search = strings.ToLower(strings.TrimSpace(search))
	customers := make([]domain.Customer, 0, len(snapshot.Customers))
	for _, c := range snapshot.Customers {
		if search != "" &&
			!strings.Contains(strings.ToLower(c.Name), search) &&
			!strings.Contains(strings.ToLower(c.CompanyName), search) &&
			!strings.Contains(strings.ToLower(c.Email), search) {
			continue
		}
		customers = append(customers, c)
	}

	sort.SliceStable(customers, func(i, j int) bool {
		return strings.ToLower(customers[i].Name) < strings.ToLower(customers[j].Name)
	})
	return customers, nil
}
