package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sweetshop/backend/internal/adapter/handler"
	"github.com/sweetshop/backend/internal/adapter/storage"
	"github.com/sweetshop/backend/internal/adapter/token"
	"github.com/sweetshop/backend/internal/core/domain"
	"github.com/sweetshop/backend/internal/core/service"
	"github.com/sweetshop/backend/internal/infra/metrics"
	"github.com/sweetshop/backend/internal/port"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var (
		httpAddr    = getenv("HTTP_ADDR", ":8080")
		mysqlDSN    = getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/sweetshop?parseTime=true")
		redisAddr   = os.Getenv("REDIS_ADDR") // empty disables the cache front
		jwtSecret   = getenv("JWT_SECRET", "dev-secret-change-me")
		jwtTTL      = getenvDuration("JWT_TTL", 24*time.Hour)
		workerCount = getenvInt("WORKER_COUNT", 10)
		queueSize   = getenvInt("QUEUE_SIZE", 10000)
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		logger.Fatal("open mysql", zap.Error(err))
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("ping mysql", zap.Error(err))
	}
	logger.Info("connected to mysql")

	mysqlAdapter := storage.NewMySQLAdapter(db)

	var (
		inventory port.InventoryStore    = mysqlAdapter
		catalog   port.CatalogRepository = mysqlAdapter
		cache     *storage.RedisAdapter
		rdb       *redis.Client
	)

	if redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("ping redis", zap.Error(err))
		}
		logger.Info("connected to redis")

		cache = storage.NewRedisAdapter(rdb)
		front := storage.NewWriteThrough(mysqlAdapter, cache)
		warmed, err := front.WarmCache(ctx)
		if err != nil {
			logger.Fatal("warm cache", zap.Error(err))
		}
		logger.Info("warmed sweet cache", zap.Int("sweets", warmed))

		inventory = front
		catalog = front
	}

	purchaseService := service.NewPurchaseService(inventory, queueSize)
	sweetService := service.NewSweetService(catalog, inventory)

	jwtManager := token.NewJWTManager([]byte(jwtSecret), jwtTTL)
	authService := service.NewAuthService(mysqlAdapter, jwtManager)

	seedAdmin(ctx, authService, logger)

	// Ledger workers settle successful purchases into MySQL.
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, purchaseService.Ledger(), mysqlAdapter, cache, logger)
		}(i)
	}
	logger.Info("started ledger workers", zap.Int("count", workerCount))

	httpHandler := handler.NewHTTPHandler(authService, sweetService, purchaseService, jwtManager, logger)
	mux := http.NewServeMux()
	httpHandler.Routes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: metrics.Middleware(mux),
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", httpAddr))
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	logger.Info("http server stopped")

	purchaseService.Close()
	wg.Wait()
	logger.Info("workers stopped")

	if rdb != nil {
		rdb.Close()
	}
	db.Close()
	logger.Info("connections closed")
}

// workerLoop drains the purchase ledger. With a cache front the decrement
// was applied in Redis only, so the worker mirrors it into MySQL and rolls
// the cache back when the settle fails. Without one the decrement is
// already durable and only the ledger row is written.
func workerLoop(id int, ledger <-chan domain.Purchase, db port.PurchaseRepository, cache *storage.RedisAdapter, logger *zap.Logger) {
	for p := range ledger {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		var err error
		if cache == nil {
			err = db.RecordPurchase(ctx, p)
		} else {
			err = db.ApplyPurchase(ctx, p)
		}

		if err != nil {
			logger.Error("settle purchase",
				zap.Int("worker", id), zap.String("purchase_id", p.ID), zap.Error(err))
			if cache != nil {
				if _, rbErr := cache.ConditionalIncrement(ctx, p.SweetID, p.Quantity); rbErr != nil {
					logger.Error("CRITICAL: stock rollback failed",
						zap.Int("worker", id), zap.String("purchase_id", p.ID), zap.Error(rbErr))
				} else {
					logger.Warn("rolled back cached stock",
						zap.Int("worker", id), zap.String("purchase_id", p.ID))
				}
			}
		}

		cancel()
	}
}

func seedAdmin(ctx context.Context, auth *service.AuthService, logger *zap.Logger) {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return
	}
	if _, err := auth.Register(ctx, email, password, domain.RoleAdmin); err != nil {
		if !errors.Is(err, service.ErrEmailTaken) {
			logger.Warn("seed admin", zap.Error(err))
		}
		return
	}
	logger.Info("seeded admin user", zap.String("email", email))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
