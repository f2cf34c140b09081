package port

import (
	"context"

	"github.com/sweetshop/backend/internal/core/domain"
)

// SearchFilter narrows a catalog search. Zero values mean "no constraint".
type SearchFilter struct {
	Name     string
	Category domain.Category
	MinPrice float64
	MaxPrice float64
}

// CatalogRepository is the durable sweets catalog.
type CatalogRepository interface {
	CreateSweet(ctx context.Context, sweet domain.Sweet) error
	GetSweet(ctx context.Context, id string) (*domain.Sweet, error)
	ListSweets(ctx context.Context) ([]domain.Sweet, error)
	SearchSweets(ctx context.Context, filter SearchFilter) ([]domain.Sweet, error)
	// UpdateSweet replaces the mutable fields of an existing sweet,
	// recomputing InStock from the new quantity in the same statement.
	// Returns the updated sweet, or nil when the id does not exist.
	UpdateSweet(ctx context.Context, sweet domain.Sweet) (*domain.Sweet, error)
	// DeleteSweet reports whether a row was actually removed.
	DeleteSweet(ctx context.Context, id string) (bool, error)
}
