package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/clickarena/backend/internal/models"
)

// currentUserID extracts the authenticated user's id set by the auth
// middleware.
func currentUserID(c *gin.Context) int {
	return c.GetInt("user_id")
}

// publicUser strips credentials and key material from a user record.
func publicUser(u *models.User) gin.H {
	out := gin.H{
		"id":          u.ID,
		"email":       u.Email,
		"username":    u.Username,
		"balance_trx": u.BalanceTRX,
		"wins":        u.Wins,
		"losses":      u.Losses,
		"created_at":  u.CreatedAt,
	}
	if u.DepositAddress.Valid {
		out["deposit_address"] = u.DepositAddress.String
	}
	return out
}
