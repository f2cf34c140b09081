package port

import "github.com/sweetshop/backend/internal/core/domain"

// TokenIssuer mints an access token for an authenticated user.
type TokenIssuer interface {
	Issue(user domain.User) (string, error)
}
