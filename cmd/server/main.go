package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/clickarena/backend/internal/api"
	"github.com/clickarena/backend/internal/config"
	"github.com/clickarena/backend/internal/database"
	"github.com/clickarena/backend/internal/game"
	"github.com/clickarena/backend/internal/migrations"
	"github.com/clickarena/backend/internal/redis"
	"github.com/clickarena/backend/internal/tron"
	"github.com/clickarena/backend/internal/wallet"
	"github.com/clickarena/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("↗ Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Initialize TRON node client (if configured)
	if cfg.TronNodeURL != "" {
		tron.SetDefault(tron.NewClient(cfg))
		log.Printf("[TRON] Node client initialized (node=%s)", cfg.TronNodeURL)
	} else {
		log.Printf("[TRON] Node not configured - deposits and withdrawals disabled")
	}

	// Initialize Game Manager with the bank, the WS hub, Redis and config
	bank := wallet.NewPostgresBank(db)
	game.InitializeManager(bank, ws.GameHub, rdb, cfg)

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Initialize API handlers
	api.SetupRoutes(router, db, rdb, cfg)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting ClickArena server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
