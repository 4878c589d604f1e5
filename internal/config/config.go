package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	Environment string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port        string
	FrontendURL string

	// Game Settings
	MinStakeTRX        float64
	WinThreshold       int
	WinnerSharePercent int
	CountdownSeconds   int
	SettleRetries      int

	// Wallet Settings
	MinDepositTRX  float64
	MinWithdrawTRX float64
	FlatNetworkFee float64

	// TRON node
	TronNodeURL      string
	TronAPIKey       string
	SystemAddress    string
	SystemPrivateKey string
	EncryptionKey    string

	// Rate limiting
	RateLimitWindowSeconds int
	RateLimitMaxRequests   int

	// Security
	JWTSecret string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	return &Config{
		// Environment
		Environment: getEnv("APP_ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/clickarena?sslmode=disable"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		// Server
		Port:        getEnv("APP_PORT", "5000"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),

		// Game Settings
		MinStakeTRX:        getEnvFloat("MIN_STAKE_TRX", 2.0),
		WinThreshold:       getEnvInt("WIN_THRESHOLD", 50),
		WinnerSharePercent: getEnvInt("WINNER_SHARE_PERCENT", 85),
		CountdownSeconds:   getEnvInt("GAME_COUNTDOWN_SECONDS", 3),
		SettleRetries:      getEnvInt("SETTLE_RETRIES", 3),

		// Wallet Settings
		MinDepositTRX:  getEnvFloat("MIN_DEPOSIT_TRX", 2.0),
		MinWithdrawTRX: getEnvFloat("MIN_WITHDRAW_TRX", 5.0),
		FlatNetworkFee: getEnvFloat("TRON_FLAT_FEE_TRX", 1.1),

		// TRON node
		TronNodeURL:      getEnv("TRON_NODE_URL", ""),
		TronAPIKey:       getEnv("TRON_API_KEY", ""),
		SystemAddress:    getEnv("SYSTEM_ADDRESS", ""),
		SystemPrivateKey: getEnv("SYSTEM_PRIVATE_KEY", ""),
		EncryptionKey:    getEnv("ENCRYPTION_KEY", "change-me-in-production"),

		// Rate limiting
		RateLimitWindowSeconds: getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 900),
		RateLimitMaxRequests:   getEnvInt("RATE_LIMIT_MAX_REQUESTS", 100),

		// Security
		JWTSecret: getEnv("JWT_SECRET", "change-me-in-production"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
