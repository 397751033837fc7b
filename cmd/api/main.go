/**
 * @description
 * This is the main entry point for the banking API server. It loads the
 * configuration, connects to PostgreSQL, applies migrations, wires the services
 * and serves the HTTP API until SIGINT/SIGTERM.
 *
 * @dependencies
 * - github.com/joho/godotenv: Local .env loading.
 * - github.com/redis/go-redis/v9: Optional shared store for login rate limiting.
 * - internal/api, internal/app, internal/auth, internal/config, internal/store.
 */
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/avsbank/banking-service/internal/api"
	"github.com/avsbank/banking-service/internal/app"
	"github.com/avsbank/banking-service/internal/auth"
	"github.com/avsbank/banking-service/internal/config"
	"github.com/avsbank/banking-service/internal/store"
	"github.com/avsbank/banking-service/pkg/blobstore"
	"github.com/avsbank/banking-service/pkg/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("level=info component=bootstrap msg=\"no .env file loaded\" err=%v", err)
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if err := cfg.Require("DATABASE_URL", "JWT_SECRET"); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid configuration\" err=%v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	ctx := context.Background()
	pool, err := store.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer pool.Close()
	logger.Info("database connected")

	if err := store.Migrate(ctx, pool, logger); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"migrations failed\" err=%v", err)
	}

	blobs, err := blobstore.NewLocalStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"upload dir unavailable\" err=%v", err)
	}

	var limiter middleware.Limiter = middleware.NewMemoryLimiter()
	if redisClient := connectRedis(cfg.RedisURL); redisClient != nil {
		defer redisClient.Close()
		limiter = middleware.NewRedisLimiter(redisClient, cfg.RedisRateLimitPrefix)
		logger.Info("redis connected; using shared login rate limiting")
	}

	db := store.NewPostgresStore(pool)
	hasher := auth.NewBcryptHasher(bcrypt.DefaultCost)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiry)

	accounts := app.NewAccountService(db, hasher, tokens, logger)
	ledger := app.NewLedgerService(db, logger)
	updates := app.NewUpdateRequestService(db, logger)
	kyc := app.NewKYCService(db, blobs, cfg.MaxUploadBytes, logger)
	admin := app.NewAdminService(db, accounts, ledger, updates, kyc, hasher, tokens, logger)

	handlers := api.NewHandlers(accounts, ledger, updates, kyc, admin, logger)
	router := api.NewRouter(handlers, api.RouterOptions{
		Tokens:                  tokens,
		Limiter:                 limiter,
		LoginRateLimitPerMinute: cfg.LoginRateLimitPerMinute,
		AllowedOrigins:          cfg.AllowedOrigins(),
		RequestTimeout:          cfg.RequestTimeout,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	logger.Info("shutdown complete")
}

// connectRedis returns a pinged client, or nil when Redis is not configured or
// unreachable. Login throttling then stays per process.
func connectRedis(redisURL string) *redis.Client {
	if strings.TrimSpace(redisURL) == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; using in-memory rate limiting\" err=%v", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; using in-memory rate limiting\" err=%v", err)
		client.Close()
		return nil
	}
	return client
}
