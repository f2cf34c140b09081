package storage

import (
	"context"
	"fmt"

	"github.com/sweetshop/backend/internal/core/domain"
)

// WriteThrough fronts the durable catalog with Redis on the stock path.
// Catalog writes land in MySQL first and are mirrored into the cache;
// the atomic inventory contract is served by Redis, so every purchase
// gate runs against the cache. Purchases are settled back into MySQL by
// the ledger workers.
type WriteThrough struct {
	*MySQLAdapter
	cache *RedisAdapter
}

func NewWriteThrough(db *MySQLAdapter, cache *RedisAdapter) *WriteThrough {
	return &WriteThrough{MySQLAdapter: db, cache: cache}
}

func (w *WriteThrough) ConditionalDecrement(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	return w.cache.ConditionalDecrement(ctx, id, amount)
}

// ConditionalIncrement applies the restock to the cache, which is
// authoritative for quantity, then mirrors it into MySQL.
func (w *WriteThrough) ConditionalIncrement(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	sweet, err := w.cache.ConditionalIncrement(ctx, id, amount)
	if err != nil || sweet == nil {
		return sweet, err
	}
	if _, err := w.MySQLAdapter.ConditionalIncrement(ctx, id, amount); err != nil {
		return nil, fmt.Errorf("mirror restock: %w", err)
	}
	return sweet, nil
}

func (w *WriteThrough) Get(ctx context.Context, id string) (*domain.Sweet, error) {
	sweet, err := w.cache.Get(ctx, id)
	if err != nil || sweet != nil {
		return sweet, err
	}
	return w.MySQLAdapter.Get(ctx, id)
}

func (w *WriteThrough) CreateSweet(ctx context.Context, sweet domain.Sweet) error {
	if err := w.MySQLAdapter.CreateSweet(ctx, sweet); err != nil {
		return err
	}
	return w.cache.SetSweet(ctx, sweet)
}

func (w *WriteThrough) UpdateSweet(ctx context.Context, sweet domain.Sweet) (*domain.Sweet, error) {
	updated, err := w.MySQLAdapter.UpdateSweet(ctx, sweet)
	if err != nil || updated == nil {
		return updated, err
	}
	if err := w.cache.SetSweet(ctx, *updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (w *WriteThrough) DeleteSweet(ctx context.Context, id string) (bool, error) {
	deleted, err := w.MySQLAdapter.DeleteSweet(ctx, id)
	if err != nil || !deleted {
		return deleted, err
	}
	return true, w.cache.DeleteSweet(ctx, id)
}

// WarmCache mirrors the whole catalog into Redis, called once at startup.
func (w *WriteThrough) WarmCache(ctx context.Context) (int, error) {
	sweets, err := w.MySQLAdapter.ListSweets(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range sweets {
		if err := w.cache.SetSweet(ctx, s); err != nil {
			return 0, err
		}
	}
	return len(sweets), nil
}
