package models

import (
	"database/sql"
	"time"
)

// User represents a registered player
type User struct {
	ID                int            `db:"id" json:"id"`
	Email             string         `db:"email" json:"email"`
	Username          string         `db:"username" json:"username"`
	PasswordHash      string         `db:"password_hash" json:"-"`
	BalanceTRX        float64        `db:"balance_trx" json:"balance_trx"`
	DepositAddress    sql.NullString `db:"deposit_address" json:"deposit_address,omitempty"`
	AddressPrivateKey sql.NullString `db:"address_private_key" json:"-"`
	Wins              int            `db:"wins" json:"wins"`
	Losses            int            `db:"losses" json:"losses"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// Transaction types
const (
	TxTypeStake    = "stake"
	TxTypePayout   = "payout"
	TxTypeFee      = "fee"
	TxTypeDeposit  = "deposit"
	TxTypeWithdraw = "withdraw"
)

// Transaction statuses
const (
	TxStatusConfirmed = "confirmed"
	TxStatusPending   = "pending"
)

// Transaction is an append-only record of one balance-affecting event.
// UserID is NULL for system fee entries.
type Transaction struct {
	ID              int             `db:"id" json:"id"`
	UserID          sql.NullInt64   `db:"user_id" json:"user_id,omitempty"`
	Type            string          `db:"type" json:"type"`
	Amount          float64         `db:"amount" json:"amount"`
	TRXAmount       sql.NullFloat64 `db:"trx_amount" json:"trx_amount,omitempty"`
	TronAddress     sql.NullString  `db:"tron_address" json:"tron_address,omitempty"`
	TransactionHash sql.NullString  `db:"transaction_hash" json:"transaction_hash,omitempty"`
	Status          string          `db:"status" json:"status"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Game represents a persisted game session record
type Game struct {
	ID         int           `db:"id" json:"id"`
	Player1ID  int           `db:"player1_id" json:"player1_id"`
	Player2ID  int           `db:"player2_id" json:"player2_id"`
	Stake      float64       `db:"stake" json:"stake"`
	Pot        float64       `db:"pot" json:"pot"`
	Status     string        `db:"status" json:"status"`
	WinnerID   sql.NullInt64 `db:"winner_id" json:"winner_id,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	StartedAt  sql.NullTime  `db:"started_at" json:"started_at,omitempty"`
	FinishedAt sql.NullTime  `db:"finished_at" json:"finished_at,omitempty"`
}
