package port

import (
	"context"

	"github.com/sweetshop/backend/internal/core/domain"
)

type UserRepository interface {
	// CreateUser persists a new user. Implementations report a duplicate
	// email via their native uniqueness error.
	CreateUser(ctx context.Context, user domain.User) error

	// GetUserByEmail returns the user, or nil when no user has that email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}
