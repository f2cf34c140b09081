package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sweetshop/backend/internal/core/domain"
)

// Mock InventoryStore with call counters so tests can assert which
// primitives the service touched.
type mockInventoryStore struct {
	mu             sync.Mutex
	sweets         map[string]domain.Sweet
	decrementCalls int
	getCalls       int
	failWith       error
}

func newMockInventoryStore(sweets ...domain.Sweet) *mockInventoryStore {
	m := &mockInventoryStore{sweets: make(map[string]domain.Sweet)}
	for _, s := range sweets {
		s.InStock = s.Quantity > 0
		m.sweets[s.ID] = s
	}
	return m
}

func (m *mockInventoryStore) ConditionalDecrement(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decrementCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}

	sweet, ok := m.sweets[id]
	if !ok || sweet.Quantity < amount {
		return nil, nil
	}
	sweet.Quantity -= amount
	sweet.InStock = sweet.Quantity > 0
	m.sweets[id] = sweet
	return &sweet, nil
}

func (m *mockInventoryStore) ConditionalIncrement(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sweet, ok := m.sweets[id]
	if !ok {
		return nil, nil
	}
	sweet.Quantity += amount
	sweet.InStock = true
	m.sweets[id] = sweet
	return &sweet, nil
}

func (m *mockInventoryStore) Get(ctx context.Context, id string) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	sweet, ok := m.sweets[id]
	if !ok {
		return nil, nil
	}
	return &sweet, nil
}

func (m *mockInventoryStore) quantity(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweets[id].Quantity
}

func (m *mockInventoryStore) inStock(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweets[id].InStock
}

func drain(svc *PurchaseService) {
	go func() {
		for range svc.Ledger() {
		}
	}()
}

func TestPurchase_Success(t *testing.T) {
	store := newMockInventoryStore(domain.Sweet{ID: "fudge", Price: 1.25, Quantity: 10})
	svc := NewPurchaseService(store, 100)
	defer svc.Close()
	drain(svc)

	sweet, err := svc.Purchase(context.Background(), "fudge", "", 3)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if sweet.Quantity != 7 {
		t.Errorf("expected quantity 7, got %d", sweet.Quantity)
	}
	if !sweet.InStock {
		t.Error("expected inStock true")
	}
	if store.quantity("fudge") != 7 {
		t.Errorf("expected store quantity 7, got %d", store.quantity("fudge"))
	}
}

func TestPurchase_DepletesStock(t *testing.T) {
	store := newMockInventoryStore(domain.Sweet{ID: "last-one", Price: 0.50, Quantity: 1})
	svc := NewPurchaseService(store, 100)
	defer svc.Close()
	drain(svc)

	sweet, err := svc.Purchase(context.Background(), "last-one", "", 1)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if sweet.Quantity != 0 {
		t.Errorf("expected quantity 0, got %d", sweet.Quantity)
	}
	if sweet.InStock {
		t.Error("expected inStock false once quantity hits 0")
	}
}

func TestPurchase_InsufficientStock(t *testing.T) {
	store := newMockInventoryStore(domain.Sweet{ID: "taffy", Price: 0.75, Quantity: 5})
	svc := NewPurchaseService(store, 100)
	defer svc.Close()
	drain(svc)

	_, err := svc.Purchase(context.Background(), "taffy", "", 10)
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got: %v", err)
	}

	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got: %v", err)
	}
	if insufficient.Available != 5 {
		t.Errorf("expected available 5, got %d", insufficient.Available)
	}

	// Failure must leave state untouched.
	if store.quantity("taffy") != 5 {
		t.Errorf("expected quantity still 5, got %d", store.quantity("taffy"))
	}
	if !store.inStock("taffy") {
		t.Error("expected inStock still true")
	}
	if store.getCalls != 1 {
		t.Errorf("expected exactly one disambiguating read, got %d", store.getCalls)
	}
}

func TestPurchase_NotFound(t *testing.T) {
	store := newMockInventoryStore()
	svc := NewPurchaseService(store, 100)
	defer svc.Close()
	drain(svc)

	_, err := svc.Purchase(context.Background(), "missing", "", 1)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}
}

func TestPurchase_InvalidAmount(t *testing.T) {
	for _, amount := range []int{0, -1} {
		store := newMockInventoryStore(domain.Sweet{ID: "gum", Price: 0.10, Quantity: 10})
		svc := NewPurchaseService(store, 100)
		drain(svc)

		_, err := svc.Purchase(context.Background(), "gum", "", amount)
		if !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("amount %d: expected ErrInvalidAmount, got: %v", amount, err)
		}

		// Validation fails before any store access.
		if store.decrementCalls != 0 || store.getCalls != 0 {
			t.Errorf("amount %d: expected zero store calls, got decrement=%d get=%d",
				amount, store.decrementCalls, store.getCalls)
		}
		svc.Close()
	}
}

func TestPurchase_StoreUnavailable(t *testing.T) {
	store := newMockInventoryStore(domain.Sweet{ID: "fudge", Price: 1.25, Quantity: 10})
	store.failWith = errors.New("connection refused")
	svc := NewPurchaseService(store, 100)
	defer svc.Close()

	_, err := svc.Purchase(context.Background(), "fudge", "", 1)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got: %v", err)
	}

	select {
	case p := <-svc.Ledger():
		t.Errorf("expected no ledger entry on failure, got %+v", p)
	default:
	}
}

func TestPurchase_MixedAmountsConcurrent(t *testing.T) {
	store := newMockInventoryStore(domain.Sweet{ID: "mix", Price: 1.00, Quantity: 10})
	svc := NewPurchaseService(store, 100)
	defer svc.Close()
	drain(svc)

	amounts := []int{3, 2, 4}
	var wg sync.WaitGroup
	errs := make([]error, len(amounts))

	for i, amount := range amounts {
		wg.Add(1)
		go func(i, amount int) {
			defer wg.Done()
			_, errs[i] = svc.Purchase(context.Background(), "mix", "", amount)
		}(i, amount)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("purchase of %d failed: %v", amounts[i], err)
		}
	}

	// 10 - (3+2+4): every decrement applied exactly once.
	if store.quantity("mix") != 1 {
		t.Errorf("expected final quantity 1, got %d", store.quantity("mix"))
	}
	if !store.inStock("mix") {
		t.Error("expected inStock true at quantity 1")
	}
}

func TestPurchase_NoOversell(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	store := newMockInventoryStore(domain.Sweet{ID: "limited", Price: 5.00, Quantity: initialStock})
	svc := NewPurchaseService(store, 100)
	defer svc.Close()
	drain(svc)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Purchase(context.Background(), "limited", "", 1); err == nil {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	if successCount.Load() != int32(initialStock) {
		t.Errorf("expected %d successes, got %d", initialStock, successCount.Load())
	}
	if store.quantity("limited") != 0 {
		t.Errorf("expected quantity 0, got %d", store.quantity("limited"))
	}
	if store.inStock("limited") {
		t.Error("expected inStock false at quantity 0")
	}
}

func TestPurchase_LedgerEntry(t *testing.T) {
	store := newMockInventoryStore(domain.Sweet{ID: "bonbon", Price: 2.20, Quantity: 10})
	svc := NewPurchaseService(store, 100)

	before := time.Now()
	if _, err := svc.Purchase(context.Background(), "bonbon", "user-1", 2); err != nil {
		t.Fatalf("purchase failed: %v", err)
	}

	entry := <-svc.Ledger()

	if entry.SweetID != "bonbon" {
		t.Errorf("expected sweet bonbon, got %s", entry.SweetID)
	}
	if entry.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", entry.UserID)
	}
	if entry.Quantity != 2 {
		t.Errorf("expected quantity 2, got %d", entry.Quantity)
	}
	if entry.UnitPrice != 2.20 {
		t.Errorf("expected unit price 2.20, got %f", entry.UnitPrice)
	}
	if entry.ID == "" {
		t.Error("expected non-empty purchase ID")
	}
	if entry.CreatedAt.Before(before) {
		t.Error("expected CreatedAt after test start")
	}

	svc.Close()
}
