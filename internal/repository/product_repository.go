package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jobsturm/crm-local-sub000/internal/database"
	"github.com/jobsturm/crm-local-sub000/internal/domain"
)

// ProductRepository manages the product catalog of the database
type ProductRepository struct {
	store *database.Store
}

func NewProductRepository(store *database.Store) *ProductRepository {
	return &ProductRepository{store: store}
}

func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	return r.store.Update(func(db *domain.Database) error {
		if db.FindProduct(product.ID) >= 0 {
			return fmt.Errorf("product %s already exists", product.ID)
		}
		db.Products = append(db.Products, *product)
		return nil
	})
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	snapshot := r.store.Snapshot()
	i := snapshot.FindProduct(id)
	if i < 0 {
		return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
	}
	return &snapshot.Products[i], nil
}

func (r *ProductRepository) Update(ctx context.Context, id string, fn func(p *domain.Product) error) (*domain.Product, error) {
	var updated domain.Product
	err := r.store.Update(func(db *domain.Database) error {
		i := db.FindProduct(id)
		if i < 0 {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		if err := fn(&db.Products[i]); err != nil {
			return err
		}
		updated = db.Products[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	return r.store.Update(func(db *domain.Database) error {
		i := db.FindProduct(id)
		if i < 0 {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		db.Products = append(db.Products[:i], db.Products[i+1:]...)
		return nil
	})
}

func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	products := r.store.Snapshot().Products
	sort.SliceStable(products, func(i, j int) bool {
		return strings.ToLower(products[i].Description) < strings.ToLower(products[j].Description)
	})
	return products, nil
}
