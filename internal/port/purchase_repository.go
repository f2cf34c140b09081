package port

import (
	"context"

	"github.com/sweetshop/backend/internal/core/domain"
)

type PurchaseRepository interface {
	// RecordPurchase appends a ledger entry for an already-applied decrement.
	RecordPurchase(ctx context.Context, purchase domain.Purchase) error

	// ApplyPurchase appends the ledger entry and mirrors the decrement into
	// the durable catalog in one transaction. Used when a cache-fronted
	// store performed the authoritative decrement.
	ApplyPurchase(ctx context.Context, purchase domain.Purchase) error
}
