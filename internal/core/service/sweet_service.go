package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/sweetshop/backend/internal/core/domain"
	"github.com/sweetshop/backend/internal/port"
)

var ErrInvalidSweet = errors.New("invalid sweet")

const (
	minNameLen        = 2
	maxNameLen        = 100
	maxDescriptionLen = 500
)

// SweetService owns the sweets catalog: admin create/update/delete/restock
// plus the open read paths.
type SweetService struct {
	catalog port.CatalogRepository
	store   port.InventoryStore
}

func NewSweetService(catalog port.CatalogRepository, store port.InventoryStore) *SweetService {
	return &SweetService{catalog: catalog, store: store}
}

func validateSweet(name string, category domain.Category, price float64, quantity int, description string) error {
	if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
		return fmt.Errorf("%w: name must be %d-%d characters", ErrInvalidSweet, minNameLen, maxNameLen)
	}
	if !category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidSweet, category)
	}
	if price <= 0 {
		return fmt.Errorf("%w: price must be greater than zero", ErrInvalidSweet)
	}
	if quantity < 0 {
		return fmt.Errorf("%w: quantity must not be negative", ErrInvalidSweet)
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return fmt.Errorf("%w: description must be at most %d characters", ErrInvalidSweet, maxDescriptionLen)
	}
	return nil
}

func (s *SweetService) Create(ctx context.Context, name string, category domain.Category, price float64, quantity int, description string) (*domain.Sweet, error) {
	if err := validateSweet(name, category, price, quantity, description); err != nil {
		return nil, err
	}

	now := time.Now()
	sweet := domain.Sweet{
		ID:          uuid.New().String(),
		Name:        name,
		Category:    category,
		Price:       price,
		Quantity:    quantity,
		InStock:     quantity > 0,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.catalog.CreateSweet(ctx, sweet); err != nil {
		return nil, fmt.Errorf("create sweet: %w", err)
	}
	return &sweet, nil
}

func (s *SweetService) Get(ctx context.Context, id string) (*domain.Sweet, error) {
	sweet, err := s.catalog.GetSweet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get sweet: %w", err)
	}
	if sweet == nil {
		return nil, ErrNotFound
	}
	return sweet, nil
}

func (s *SweetService) List(ctx context.Context) ([]domain.Sweet, error) {
	sweets, err := s.catalog.ListSweets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sweets: %w", err)
	}
	return sweets, nil
}

func (s *SweetService) Search(ctx context.Context, filter port.SearchFilter) ([]domain.Sweet, error) {
	if filter.Category != "" && !filter.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidSweet, filter.Category)
	}
	sweets, err := s.catalog.SearchSweets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search sweets: %w", err)
	}
	return sweets, nil
}

func (s *SweetService) Update(ctx context.Context, id, name string, category domain.Category, price float64, quantity int, description string) (*domain.Sweet, error) {
	if err := validateSweet(name, category, price, quantity, description); err != nil {
		return nil, err
	}

	updated, err := s.catalog.UpdateSweet(ctx, domain.Sweet{
		ID:          id,
		Name:        name,
		Category:    category,
		Price:       price,
		Quantity:    quantity,
		InStock:     quantity > 0,
		Description: description,
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("update sweet: %w", err)
	}
	if updated == nil {
		return nil, ErrNotFound
	}
	return updated, nil
}

func (s *SweetService) Delete(ctx context.Context, id string) error {
	deleted, err := s.catalog.DeleteSweet(ctx, id)
	if err != nil {
		return fmt.Errorf("delete sweet: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

// Restock increases the sweet's quantity through the store's atomic
// increment so InStock flips in the same step as the quantity change.
func (s *SweetService) Restock(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	sweet, err := s.store.ConditionalIncrement(ctx, id, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: conditional increment: %v", ErrStoreUnavailable, err)
	}
	if sweet == nil {
		return nil, ErrNotFound
	}
	return sweet, nil
}
