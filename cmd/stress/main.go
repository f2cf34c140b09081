package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sweetshop/backend/internal/adapter/storage"
	"github.com/sweetshop/backend/internal/core/domain"
	"github.com/sweetshop/backend/internal/core/service"
)

const (
	redisAddr     = "localhost:6379"
	initialStock  = 20
	totalRequests = 50
	queueSize     = 100
)

// Fires concurrent purchases at a Redis-backed sweet and checks that
// exactly initialStock of them succeed and the final quantity is zero.
func main() {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	sweetID := uuid.New().String()
	adapter := storage.NewRedisAdapter(rdb)

	now := time.Now()
	err := adapter.SetSweet(ctx, domain.Sweet{
		ID:        sweetID,
		Name:      "Stress Fudge",
		Category:  domain.CategoryChocolate,
		Price:     2.50,
		Quantity:  initialStock,
		InStock:   true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		log.Fatalf("failed to seed sweet: %v", err)
	}
	defer adapter.DeleteSweet(ctx, sweetID)

	purchaseService := service.NewPurchaseService(adapter, queueSize)
	defer purchaseService.Close()

	// Drain the ledger in background
	go func() {
		for range purchaseService.Ledger() {
		}
	}()

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			_, err := purchaseService.Purchase(ctx, sweetID, fmt.Sprintf("user-%d", userID), 1)
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d purchases succeeded, %d failed\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	final, err := adapter.Get(ctx, sweetID)
	if err != nil || final == nil {
		log.Fatalf("failed to read final state: %v", err)
	}
	fmt.Printf("Final Quantity: %d, InStock: %v\n", final.Quantity, final.InStock)

	if final.Quantity == 0 && !final.InStock {
		fmt.Println("PASS: Stock depleted to 0 and inStock false")
	} else {
		fmt.Printf("FAIL: Expected quantity 0/inStock false, got %d/%v\n", final.Quantity, final.InStock)
	}
}
