package handlers

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/clickarena/backend/internal/config"
	"github.com/clickarena/backend/internal/middleware"
	"github.com/clickarena/backend/internal/models"
	"github.com/clickarena/backend/internal/tron"
)

const tokenTTL = 7 * 24 * time.Hour

// Register creates a user account. When the TRON node is configured a
// dedicated deposit address is generated up front; otherwise the account is
// created without one and the address is provisioned on first request.
func Register(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Email    string `json:"email"`
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email, username and password required"})
			return
		}

		email := strings.ToLower(strings.TrimSpace(req.Email))
		username := strings.TrimSpace(req.Username)
		if email == "" || username == "" || len(req.Password) < 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email, username and a password of at least 6 characters required"})
			return
		}

		var exists bool
		if err := db.Get(&exists, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1 OR username=$2)`, email, username); err != nil {
			log.Printf("[AUTH] Register lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if exists {
			c.JSON(http.StatusConflict, gin.H{"error": "email or username already taken"})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[AUTH] Password hash failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		depositAddress := sql.NullString{}
		encryptedKey := sql.NullString{}
		if tron.Default != nil {
			if acct, err := tron.Default.GenerateDepositAddress(context.Background()); err != nil {
				log.Printf("[AUTH] Deposit address generation failed for %s: %v", username, err)
			} else if enc, err := tron.EncryptPrivateKey(acct.PrivateKey, cfg.EncryptionKey); err != nil {
				log.Printf("[AUTH] Private key encryption failed for %s: %v", username, err)
			} else {
				depositAddress = sql.NullString{String: acct.Address, Valid: true}
				encryptedKey = sql.NullString{String: enc, Valid: true}
			}
		}

		var user models.User
		if err := db.Get(&user,
			`INSERT INTO users (email, username, password_hash, deposit_address, address_private_key, created_at)
			 VALUES ($1,$2,$3,$4,$5,NOW())
			 RETURNING id, email, username, password_hash, balance_trx, deposit_address, address_private_key, wins, losses, created_at`,
			email, username, string(hash), depositAddress, encryptedKey); err != nil {
			log.Printf("[AUTH] Register insert failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		token, err := middleware.IssueToken(user.ID, user.Username, cfg.JWTSecret, tokenTTL)
		if err != nil {
			log.Printf("[AUTH] Token issue failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		log.Printf("[AUTH] User %d (%s) registered", user.ID, user.Username)
		c.JSON(http.StatusCreated, gin.H{
			"token": token,
			"user":  publicUser(&user),
		})
	}
}

// Login verifies credentials and issues a fresh token.
func Login(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
			return
		}

		var user models.User
		err := db.Get(&user,
			`SELECT id, email, username, password_hash, balance_trx, deposit_address, address_private_key, wins, losses, created_at
			 FROM users WHERE username=$1 OR email=$1`,
			strings.TrimSpace(req.Username))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		if err != nil {
			log.Printf("[AUTH] Login lookup failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		token, err := middleware.IssueToken(user.ID, user.Username, cfg.JWTSecret, tokenTTL)
		if err != nil {
			log.Printf("[AUTH] Token issue failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		log.Printf("[AUTH] User %d (%s) logged in", user.ID, user.Username)
		c.JSON(http.StatusOK, gin.H{
			"token": token,
			"user":  publicUser(&user),
		})
	}
}
