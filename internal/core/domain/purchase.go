package domain

import "time"

// Purchase is a ledger entry for a successful stock decrement.
// UserID is empty for anonymous purchases.
type Purchase struct {
	ID        string
	SweetID   string
	UserID    string
	Quantity  int
	UnitPrice float64
	CreatedAt time.Time
}
