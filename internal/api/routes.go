package api

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/clickarena/backend/internal/api/handlers"
	"github.com/clickarena/backend/internal/config"
	"github.com/clickarena/backend/internal/middleware"
	"github.com/clickarena/backend/internal/wallet"
	"github.com/clickarena/backend/internal/ws"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, db *sqlx.DB, rdb *redis.Client, cfg *config.Config) {
	// CORS middleware for the React development server
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] Aggressive no-cache headers enabled for all routes")
	}

	bank := wallet.NewPostgresBank(db)
	requireAuth := middleware.RequireAuth(cfg.JWTSecret)
	rateLimit := middleware.RateLimit(rdb, time.Duration(cfg.RateLimitWindowSeconds)*time.Second, cfg.RateLimitMaxRequests)

	// WebSocket endpoint; authenticated via token query parameter.
	router.GET("/ws", ws.HandleWebSocket(cfg))

	// API v1 group
	v1 := router.Group("/api/v1")
	v1.Use(rateLimit)
	{
		v1.GET("/health", handlers.HealthCheck)

		auth := v1.Group("/auth")
		{
			auth.POST("/register", handlers.Register(db, cfg))
			auth.POST("/login", handlers.Login(db, cfg))
		}

		user := v1.Group("/user")
		user.Use(requireAuth)
		{
			user.GET("/me", handlers.Me(db))
			user.GET("/transactions", handlers.Transactions(db))
			user.GET("/games", handlers.GameHistory(db))
		}

		walletGroup := v1.Group("/wallet")
		walletGroup.Use(requireAuth)
		{
			walletGroup.GET("/deposit-address", handlers.DepositAddress(db, cfg))
			walletGroup.POST("/check-deposits", handlers.CheckDeposits(db, bank, cfg))
			walletGroup.POST("/withdraw", handlers.Withdraw(db, bank, cfg))
		}
	}
}
