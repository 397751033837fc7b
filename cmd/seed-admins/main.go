// Command seed-admins provisions a back-office operator account.
//
// Usage:
//
//	go run ./cmd/seed-admins -username ops -name "Ops Team" -password 's3cret-pass'
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/avsbank/banking-service/internal/app"
	"github.com/avsbank/banking-service/internal/auth"
	"github.com/avsbank/banking-service/internal/config"
	"github.com/avsbank/banking-service/internal/store"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	username := flag.String("username", "", "admin login name")
	name := flag.String("name", "", "admin display name")
	password := flag.String("password", "", "admin password (min 8 characters)")
	migrate := flag.Bool("migrate", true, "apply pending migrations before seeding")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("level=info component=bootstrap msg=\"no .env file loaded\" err=%v", err)
	}
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if err := cfg.Require("DATABASE_URL"); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid configuration\" err=%v", err)
	}
	logger := config.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := store.NewPool(ctx, cfg.DatabaseURL, 2)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer pool.Close()

	if *migrate {
		if err := store.Migrate(ctx, pool, logger); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"migrations failed\" err=%v", err)
		}
	}

	// Token issuing is not needed to provision an admin.
	admins := app.NewAdminService(store.NewPostgresStore(pool), nil, nil, nil, nil,
		auth.NewBcryptHasher(bcrypt.DefaultCost), nil, logger)

	admin, err := admins.CreateAdmin(ctx, *username, *name, *password)
	if err != nil {
		log.Fatalf("level=fatal component=seed msg=\"admin creation failed\" err=%v", err)
	}
	log.Printf("level=info component=seed msg=\"admin created\" id=%s username=%s", admin.ID, admin.Username)
}
