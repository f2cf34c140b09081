package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sweetshop/backend/internal/core/domain"
)

const sweetKeyPrefix = "sweet:"

// Each sweet lives in one hash; the scripts run as a single EVAL so the
// sufficient-quantity check, the decrement, the in_stock recompute, and the
// returned snapshot are indivisible.
var conditionalDecrementScript = redis.NewScript(`
local key = KEYS[1]
local amount = tonumber(ARGV[1])

local current = redis.call('HGET', key, 'quantity')
if not current then
	return false
end

current = tonumber(current)
if current < amount then
	return false
end

local remaining = current - amount
local in_stock = 0
if remaining > 0 then
	in_stock = 1
end
redis.call('HSET', key, 'quantity', remaining, 'in_stock', in_stock, 'updated_at', ARGV[2])
return redis.call('HGETALL', key)
`)

var conditionalIncrementScript = redis.NewScript(`
local key = KEYS[1]
local amount = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
	return false
end

redis.call('HINCRBY', key, 'quantity', amount)
redis.call('HSET', key, 'in_stock', 1, 'updated_at', ARGV[2])
return redis.call('HGETALL', key)
`)

// RedisAdapter keeps whole sweets as hashes and implements the same atomic
// inventory contract as the MySQL store, for deployments that front the
// durable catalog with Redis on the purchase path.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) ConditionalDecrement(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	return r.runConditional(ctx, conditionalDecrementScript, id, amount)
}

func (r *RedisAdapter) ConditionalIncrement(ctx context.Context, id string, amount int) (*domain.Sweet, error) {
	return r.runConditional(ctx, conditionalIncrementScript, id, amount)
}

func (r *RedisAdapter) runConditional(ctx context.Context, script *redis.Script, id string, amount int) (*domain.Sweet, error) {
	key := sweetKeyPrefix + id

	result, err := script.Run(ctx, r.client, []string{key},
		amount, time.Now().UnixNano()).Result()
	if err == redis.Nil {
		// Script returned false: no key or insufficient quantity.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run stock script: %w", err)
	}

	reply, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected script reply %T", result)
	}
	return sweetFromReply(id, reply)
}

func (r *RedisAdapter) Get(ctx context.Context, id string) (*domain.Sweet, error) {
	fields, err := r.client.HGetAll(ctx, sweetKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall sweet: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return sweetFromHash(id, fields)
}

// SetSweet mirrors a catalog write into the cache; used at startup and by
// the write-through wiring in cmd/server.
func (r *RedisAdapter) SetSweet(ctx context.Context, sweet domain.Sweet) error {
	inStock := 0
	if sweet.InStock {
		inStock = 1
	}
	err := r.client.HSet(ctx, sweetKeyPrefix+sweet.ID, map[string]interface{}{
		"name":        sweet.Name,
		"category":    string(sweet.Category),
		"price":       sweet.Price,
		"quantity":    sweet.Quantity,
		"in_stock":    inStock,
		"description": sweet.Description,
		"created_at":  sweet.CreatedAt.UnixNano(),
		"updated_at":  sweet.UpdatedAt.UnixNano(),
	}).Err()
	if err != nil {
		return fmt.Errorf("hset sweet: %w", err)
	}
	return nil
}

func (r *RedisAdapter) DeleteSweet(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, sweetKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("del sweet: %w", err)
	}
	return nil
}

func sweetFromReply(id string, reply []interface{}) (*domain.Sweet, error) {
	fields := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		k, kok := reply[i].(string)
		v, vok := reply[i+1].(string)
		if !kok || !vok {
			return nil, fmt.Errorf("unexpected hash entry %v=%v", reply[i], reply[i+1])
		}
		fields[k] = v
	}
	return sweetFromHash(id, fields)
}

func sweetFromHash(id string, fields map[string]string) (*domain.Sweet, error) {
	price, err := strconv.ParseFloat(fields["price"], 64)
	if err != nil {
		return nil, fmt.Errorf("parse price: %w", err)
	}
	quantity, err := strconv.Atoi(fields["quantity"])
	if err != nil {
		return nil, fmt.Errorf("parse quantity: %w", err)
	}

	sweet := &domain.Sweet{
		ID:          id,
		Name:        fields["name"],
		Category:    domain.Category(fields["category"]),
		Price:       price,
		Quantity:    quantity,
		InStock:     fields["in_stock"] == "1",
		Description: fields["description"],
	}
	if ns, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		sweet.CreatedAt = time.Unix(0, ns)
	}
	if ns, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		sweet.UpdatedAt = time.Unix(0, ns)
	}
	return sweet, nil
}
