package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/clickarena/backend/internal/config"
	"github.com/clickarena/backend/internal/tron"
	"github.com/clickarena/backend/internal/wallet"
)

// DepositAddress returns the user's deposit address, provisioning one if the
// account was created while the TRON node was unavailable.
func DepositAddress(db *sqlx.DB, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		var address sql.NullString
		if err := db.Get(&address, `SELECT deposit_address FROM users WHERE id=$1`, userID); err != nil {
			log.Printf("[WALLET] Deposit address lookup failed for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if !address.Valid {
			if tron.Default == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "deposits are temporarily unavailable"})
				return
			}
			acct, err := tron.Default.GenerateDepositAddress(context.Background())
			if err != nil {
				log.Printf("[WALLET] Deposit address generation failed for user %d: %v", userID, err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "deposits are temporarily unavailable"})
				return
			}
			enc, err := tron.EncryptPrivateKey(acct.PrivateKey, cfg.EncryptionKey)
			if err != nil {
				log.Printf("[WALLET] Private key encryption failed for user %d: %v", userID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			if _, err := db.Exec(
				`UPDATE users SET deposit_address=$1, address_private_key=$2 WHERE id=$3 AND deposit_address IS NULL`,
				acct.Address, enc, userID); err != nil {
				log.Printf("[WALLET] Deposit address save failed for user %d: %v", userID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			address = sql.NullString{String: acct.Address, Valid: true}
			log.Printf("[WALLET] Deposit address provisioned for user %d", userID)
		}

		c.JSON(http.StatusOK, gin.H{
			"deposit_address": address.String,
			"min_deposit_trx": cfg.MinDepositTRX,
		})
	}
}

// CheckDeposits looks up the on-chain balance of the user's deposit address,
// sweeps it to the system wallet and credits the account. Crediting happens
// only after the sweep broadcast succeeds, so funds are never counted twice.
func CheckDeposits(db *sqlx.DB, bank *wallet.PostgresBank, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		if tron.Default == nil || cfg.SystemAddress == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "deposits are temporarily unavailable"})
			return
		}

		var row struct {
			Address sql.NullString `db:"deposit_address"`
			Key     sql.NullString `db:"address_private_key"`
		}
		if err := db.Get(&row, `SELECT deposit_address, address_private_key FROM users WHERE id=$1`, userID); err != nil {
			log.Printf("[WALLET] Deposit check lookup failed for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if !row.Address.Valid || !row.Key.Valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no deposit address on file"})
			return
		}

		ctx := context.Background()
		balance, err := tron.Default.GetAddressBalance(ctx, row.Address.String)
		if err != nil {
			log.Printf("[WALLET] Balance check failed for user %d: %v", userID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "could not reach the TRON network"})
			return
		}

		if balance < cfg.MinDepositTRX {
			c.JSON(http.StatusOK, gin.H{"credited": 0.0, "pending_trx": balance})
			return
		}

		privateKey, err := tron.DecryptPrivateKey(row.Key.String, cfg.EncryptionKey)
		if err != nil {
			log.Printf("[WALLET] Key decryption failed for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		// Network fee comes out of the swept amount; the user is credited
		// what arrives at the system wallet.
		sweepAmount := balance - cfg.FlatNetworkFee
		if sweepAmount <= 0 {
			c.JSON(http.StatusOK, gin.H{"credited": 0.0, "pending_trx": balance})
			return
		}

		txid, err := tron.Default.SendTRX(ctx, privateKey, row.Address.String, cfg.SystemAddress, sweepAmount)
		if err != nil {
			log.Printf("[WALLET] Sweep failed for user %d: %v", userID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "deposit processing failed, please try again"})
			return
		}

		newBalance, err := bank.Deposit(ctx, userID, sweepAmount, row.Address.String)
		if err != nil {
			// Funds reached the system wallet but the credit failed. Loud log
			// for manual reconciliation against txid.
			log.Printf("[WALLET ERROR] Credit failed for user %d after sweep %s: %v", userID, txid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		log.Printf("[WALLET] User %d deposited %.2f TRX (txid=%s)", userID, sweepAmount, txid)
		c.JSON(http.StatusOK, gin.H{
			"credited":         sweepAmount,
			"new_balance":      newBalance,
			"transaction_hash": txid,
		})
	}
}

// Withdraw sends TRX from the system wallet to an external address and debits
// the user's balance plus the flat network fee.
func Withdraw(db *sqlx.DB, bank *wallet.PostgresBank, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := currentUserID(c)

		var req struct {
			Amount  float64 `json:"amount"`
			Address string  `json:"address"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount and address required"})
			return
		}

		address := strings.TrimSpace(req.Address)
		if req.Amount < cfg.MinWithdrawTRX {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("minimum withdrawal is %.0f TRX", cfg.MinWithdrawTRX)})
			return
		}
		if tron.Default == nil || cfg.SystemPrivateKey == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "withdrawals are temporarily unavailable"})
			return
		}

		ctx := context.Background()
		if !tron.Default.IsValidAddress(ctx, address) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid TRON address"})
			return
		}

		total := req.Amount + cfg.FlatNetworkFee
		balance, err := bank.Balance(ctx, userID)
		if err != nil {
			log.Printf("[WALLET] Withdraw balance check failed for user %d: %v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if balance < total {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("insufficient balance (need %.2f TRX including network fee)", total)})
			return
		}

		txid, err := tron.Default.SendTRX(ctx, cfg.SystemPrivateKey, cfg.SystemAddress, address, req.Amount)
		if err != nil {
			log.Printf("[WALLET] Withdraw send failed for user %d: %v", userID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "withdrawal failed, please try again"})
			return
		}

		newBalance, err := bank.Withdraw(ctx, userID, req.Amount, total, address, txid)
		if err != nil {
			// Transfer broadcast but the debit failed. Loud log for manual
			// reconciliation against txid.
			log.Printf("[WALLET ERROR] Debit failed for user %d after withdraw %s: %v", userID, txid, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		log.Printf("[WALLET] User %d withdrew %.2f TRX to %s (txid=%s)", userID, req.Amount, address, txid)
		c.JSON(http.StatusOK, gin.H{
			"withdrawn":        req.Amount,
			"fee":              cfg.FlatNetworkFee,
			"new_balance":      newBalance,
			"transaction_hash": txid,
		})
	}
}
