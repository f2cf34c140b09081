package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sweetshop/backend/internal/core/domain"
	"github.com/sweetshop/backend/internal/port"
)

var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrNotFound          = errors.New("sweet not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// InsufficientStockError carries the quantity seen by the disambiguating
// read after a failed conditional decrement. The value is diagnostic only;
// a concurrent purchase may already have changed it.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: %d available", e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// PurchaseService decrements stock with exactly-once semantics. It holds no
// item state of its own and takes no locks; correctness is delegated to the
// store's atomic decrement-if-at-least primitive, so any number of callers
// may run Purchase concurrently.
type PurchaseService struct {
	store  port.InventoryStore
	ledger chan domain.Purchase
}

func NewPurchaseService(store port.InventoryStore, queueSize int) *PurchaseService {
	return &PurchaseService{
		store:  store,
		ledger: make(chan domain.Purchase, queueSize),
	}
}

// Purchase decrements the sweet's quantity by amount and returns the updated
// sweet. amount must be positive; validation happens before any store access.
func (s *PurchaseService) Purchase(ctx context.Context, sweetID, userID string, amount int) (*domain.Sweet, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	sweet, err := s.store.ConditionalDecrement(ctx, sweetID, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: conditional decrement: %v", ErrStoreUnavailable, err)
	}
	if sweet != nil {
		s.ledger <- domain.Purchase{
			ID:        uuid.New().String(),
			SweetID:   sweet.ID,
			UserID:    userID,
			Quantity:  amount,
			UnitPrice: sweet.Price,
			CreatedAt: time.Now(),
		}
		return sweet, nil
	}

	// No row matched: one follow-up read to tell "missing" from "too few".
	current, err := s.store.Get(ctx, sweetID)
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrStoreUnavailable, err)
	}
	if current == nil {
		return nil, ErrNotFound
	}
	return nil, &InsufficientStockError{Available: current.Quantity}
}

// Ledger exposes the queue of successful purchases for worker persistence.
func (s *PurchaseService) Ledger() <-chan domain.Purchase {
	return s.ledger
}

func (s *PurchaseService) Close() {
	close(s.ledger)
}
