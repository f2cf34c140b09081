package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sweetshop/backend/internal/core/domain"
	"github.com/sweetshop/backend/internal/port"
)

var ErrDuplicateEmail = errors.New("duplicate email")

// MemoryAdapter implements every storage port in process memory. A single
// mutex makes each operation indivisible, which is all the conditional
// decrement contract asks for. Used by tests and the no-database dev mode.
type MemoryAdapter struct {
	mu        sync.Mutex
	sweets    map[string]domain.Sweet
	users     map[string]domain.User
	purchases []domain.Purchase
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		sweets: make(map[string]domain.Sweet),
		users:  make(map[string]domain.User),
	}
}

func (m *MemoryAdapter) ConditionalDecrement(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sweet, ok := m.sweets[id]
	if !ok || sweet.Quantity < amount {
		return nil, nil
	}

	sweet.Quantity -= amount
	sweet.InStock = sweet.Quantity > 0
	sweet.UpdatedAt = time.Now()
	m.sweets[id] = sweet
	return &sweet, nil
}

func (m *MemoryAdapter) ConditionalIncrement(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sweet, ok := m.sweets[id]
	if !ok {
		return nil, nil
	}

	sweet.Quantity += amount
	sweet.InStock = true
	sweet.UpdatedAt = time.Now()
	m.sweets[id] = sweet
	return &sweet, nil
}

func (m *MemoryAdapter) Get(ctx context.Context, id string) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sweet, ok := m.sweets[id]
	if !ok {
		return nil, nil
	}
	return &sweet, nil
}

func (m *MemoryAdapter) CreateSweet(ctx context.Context, sweet domain.Sweet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweets[sweet.ID] = sweet
	return nil
}

func (m *MemoryAdapter) GetSweet(ctx context.Context, id string) (*domain.Sweet, error) {
	return m.Get(ctx, id)
}

func (m *MemoryAdapter) ListSweets(ctx context.Context) ([]domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sweets := make([]domain.Sweet, 0, len(m.sweets))
	for _, s := range m.sweets {
		sweets = append(sweets, s)
	}
	sort.Slice(sweets, func(i, j int) bool { return sweets[i].Name < sweets[j].Name })
	return sweets, nil
}

func (m *MemoryAdapter) SearchSweets(ctx context.Context, filter port.SearchFilter) ([]domain.Sweet, error) {
	all, _ := m.ListSweets(ctx)

	var matched []domain.Sweet
	for _, s := range all {
		if filter.Name != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if filter.Category != "" && s.Category != filter.Category {
			continue
		}
		if filter.MinPrice > 0 && s.Price < filter.MinPrice {
			continue
		}
		if filter.MaxPrice > 0 && s.Price > filter.MaxPrice {
			continue
		}
		matched = append(matched, s)
	}
	return matched, nil
}

func (m *MemoryAdapter) UpdateSweet(ctx context.Context, sweet domain.Sweet) (*domain.Sweet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.sweets[sweet.ID]
	if !ok {
		return nil, nil
	}

	sweet.CreatedAt = existing.CreatedAt
	sweet.InStock = sweet.Quantity > 0
	sweet.UpdatedAt = time.Now()
	m.sweets[sweet.ID] = sweet
	return &sweet, nil
}

func (m *MemoryAdapter) DeleteSweet(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sweets[id]; !ok {
		return false, nil
	}
	delete(m.sweets, id)
	return true, nil
}

func (m *MemoryAdapter) CreateUser(ctx context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Email]; ok {
		return ErrDuplicateEmail
	}
	m.users[user.Email] = user
	return nil
}

func (m *MemoryAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[email]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (m *MemoryAdapter) RecordPurchase(ctx context.Context, p domain.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.purchases = append(m.purchases, p)
	return nil
}

func (m *MemoryAdapter) ApplyPurchase(ctx context.Context, p domain.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sweet, ok := m.sweets[p.SweetID]
	if !ok || sweet.Quantity < p.Quantity {
		return errors.New("sweet missing or out of sync")
	}
	sweet.Quantity -= p.Quantity
	sweet.InStock = sweet.Quantity > 0
	m.sweets[p.SweetID] = sweet
	m.purchases = append(m.purchases, p)
	return nil
}

// Purchases returns a copy of the ledger, for tests.
func (m *MemoryAdapter) Purchases() []domain.Purchase {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Purchase, len(m.purchases))
	copy(out, m.purchases)
	return out
}
