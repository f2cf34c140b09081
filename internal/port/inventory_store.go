package port

import (
	"context"

	"github.com/sweetshop/backend/internal/core/domain"
)

// InventoryStore is the atomic stock primitive the purchase service
// delegates to. Implementations must perform the check and the mutation
// as one indivisible operation.
type InventoryStore interface {
	// ConditionalDecrement decreases the sweet's quantity by amount only if
	// quantity >= amount, recomputing InStock in the same atomic operation.
	// Returns the post-update sweet, or nil when no row matched the
	// id + sufficient-quantity condition.
	ConditionalDecrement(ctx context.Context, id string, amount int) (*domain.Sweet, error)

	// ConditionalIncrement increases the sweet's quantity by amount,
	// setting InStock true in the same operation. Returns the post-update
	// sweet, or nil when the id does not exist.
	ConditionalIncrement(ctx context.Context, id string, amount int) (*domain.Sweet, error)

	// Get returns the sweet, or nil when it does not exist.
	Get(ctx context.Context, id string) (*domain.Sweet, error)
}
