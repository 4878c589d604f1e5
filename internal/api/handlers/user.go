package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/clickarena/backend/internal/game"
	"github.com/clickarena/backend/internal/models"
)

// Me returns the authenticated user's profile and balance.
func Me(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		var user models.User
		if err := db.Get(&user,
			`SELECT id, email, username, password_hash, balance_trx, deposit_address, address_private_key, wins, losses, created_at
			 FROM users WHERE id=$1`, userID); err != nil {
			log.Printf("[API] Me lookup failed for user %d: %v", userID, err)
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		resp := gin.H{"user": publicUser(&user)}
		if game.Manager != nil {
			resp["in_queue"] = game.Manager.IsQueued(userID)
			resp["in_game"] = game.Manager.SessionForUser(userID) != nil
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Transactions returns the user's most recent ledger entries.
func Transactions(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		txs := []models.Transaction{}
		if err := db.Select(&txs,
			`SELECT id, user_id, type, amount, trx_amount, tron_address, transaction_hash, status, created_at
			 FROM transactions WHERE user_id=$1 ORDER BY created_at DESC LIMIT 20`, userID); err != nil {
			log.Printf("[API] Transactions lookup failed for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}

// GameHistory returns the user's most recent finished games.
func GameHistory(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		games := []models.Game{}
		if err := db.Select(&games,
			`SELECT id, player1_id, player2_id, stake, pot, status, winner_id, created_at, started_at, finished_at
			 FROM games WHERE (player1_id=$1 OR player2_id=$1) AND status='SETTLED'
			 ORDER BY finished_at DESC LIMIT 20`, userID); err != nil {
			log.Printf("[API] Game history lookup failed for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"games": games})
	}
}
