package wallet

import (
	"context"
	"fmt"
	"log"

	"github.com/clickarena/backend/internal/game"
	"github.com/clickarena/backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// PostgresBank implements the game.Bank boundary on top of the users,
// games and transactions tables. Every multi-step mutation runs inside a
// single database transaction; balances are guarded against going negative
// at the statement level.
type PostgresBank struct {
	db *sqlx.DB
}

// NewPostgresBank creates a bank backed by PostgreSQL.
func NewPostgresBank(db *sqlx.DB) *PostgresBank {
	return &PostgresBank{db: db}
}

// Balance returns the user's spendable TRX balance.
func (b *PostgresBank) Balance(ctx context.Context, userID int) (float64, error) {
	var balance float64
	if err := b.db.GetContext(ctx, &balance, `SELECT balance_trx FROM users WHERE id=$1`, userID); err != nil {
		return 0, fmt.Errorf("read balance for user %d: %w", userID, err)
	}
	return balance, nil
}

// debitTx subtracts amount from a user's balance inside tx. The WHERE guard
// makes the debit fail rather than take the balance below zero.
func debitTx(tx *sqlx.Tx, userID int, amount float64) error {
	res, err := tx.Exec(`UPDATE users SET balance_trx = balance_trx - $1 WHERE id=$2 AND balance_trx >= $1`, amount, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.ErrInsufficientFunds
	}
	return nil
}

// OpenGame debits the stake from both players, creates the game row and
// appends a stake ledger entry per player. All-or-nothing: if the second
// debit fails the first is rolled back with the transaction.
func (b *PostgresBank) OpenGame(ctx context.Context, player1ID, player2ID int, stake, pot float64) (int64, error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin open game tx: %w", err)
	}
	defer tx.Rollback()

	if err := debitTx(tx, player1ID, stake); err != nil {
		return 0, fmt.Errorf("debit player %d: %w", player1ID, err)
	}
	if err := debitTx(tx, player2ID, stake); err != nil {
		return 0, fmt.Errorf("debit player %d: %w", player2ID, err)
	}

	var gameID int64
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO games (player1_id, player2_id, stake, pot, status, created_at) VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`,
		player1ID, player2ID, stake, pot, string(game.StatusMatched)).Scan(&gameID); err != nil {
		return 0, fmt.Errorf("create game row: %w", err)
	}

	for _, pid := range []int{player1ID, player2ID} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (user_id, type, amount, status, created_at) VALUES ($1,$2,$3,$4,NOW())`,
			pid, models.TxTypeStake, stake, models.TxStatusConfirmed); err != nil {
			return 0, fmt.Errorf("record stake for player %d: %w", pid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit open game tx: %w", err)
	}

	log.Printf("[BANK] Game %d opened: players %d/%d staked %.2f each", gameID, player1ID, player2ID, stake)
	return gameID, nil
}

// MarkGameStarted stamps the game row's start time.
func (b *PostgresBank) MarkGameStarted(ctx context.Context, gameID int64) error {
	_, err := b.db.ExecContext(ctx,
		`UPDATE games SET status=$1, started_at = COALESCE(started_at, NOW()) WHERE id=$2`,
		string(game.StatusActive), gameID)
	return err
}

// CloseGame settles a finished game: winner credited, win/loss counters
// bumped, payout and fee ledger entries appended and the game row marked
// finished. The status flip on the game row doubles as a store-level
// exactly-once backstop: a game already settled settles no funds twice.
func (b *PostgresBank) CloseGame(ctx context.Context, gameID int64, winnerID, loserID int, payout, fee float64) error {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin close game tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE games SET status=$1, winner_id=$2, finished_at=NOW() WHERE id=$3 AND status <> $1`,
		string(game.StatusSettled), winnerID, gameID)
	if err != nil {
		return fmt.Errorf("mark game %d finished: %w", gameID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		log.Printf("[BANK] Game %d already settled, skipping", gameID)
		return nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET balance_trx = balance_trx + $1, wins = wins + 1 WHERE id=$2`,
		payout, winnerID); err != nil {
		return fmt.Errorf("credit winner %d: %w", winnerID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET losses = losses + 1 WHERE id=$1`, loserID); err != nil {
		return fmt.Errorf("update loser %d: %w", loserID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, amount, status, created_at) VALUES ($1,$2,$3,$4,NOW())`,
		winnerID, models.TxTypePayout, payout, models.TxStatusConfirmed); err != nil {
		return fmt.Errorf("record payout: %w", err)
	}
	// System fee entry carries no user.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, amount, status, created_at) VALUES (NULL,$1,$2,$3,NOW())`,
		models.TxTypeFee, fee, models.TxStatusConfirmed); err != nil {
		return fmt.Errorf("record fee: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit close game tx: %w", err)
	}

	log.Printf("[BANK] Game %d closed: winner=%d payout=%.2f fee=%.2f", gameID, winnerID, payout, fee)
	return nil
}

// Deposit credits a confirmed on-chain deposit and appends the ledger entry
// in one transaction. Returns the new balance.
func (b *PostgresBank) Deposit(ctx context.Context, userID int, amount float64, address string) (float64, error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin deposit tx: %w", err)
	}
	defer tx.Rollback()

	var newBalance float64
	if err := tx.QueryRowxContext(ctx,
		`UPDATE users SET balance_trx = balance_trx + $1 WHERE id=$2 RETURNING balance_trx`,
		amount, userID).Scan(&newBalance); err != nil {
		return 0, fmt.Errorf("credit deposit for user %d: %w", userID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, amount, trx_amount, tron_address, status, created_at) VALUES ($1,$2,$3,$4,$5,$6,NOW())`,
		userID, models.TxTypeDeposit, amount, amount, address, models.TxStatusConfirmed); err != nil {
		return 0, fmt.Errorf("record deposit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit deposit tx: %w", err)
	}
	return newBalance, nil
}

// Withdraw debits amount plus the network fee and appends the ledger entry
// with the on-chain transaction hash. Returns the new balance.
func (b *PostgresBank) Withdraw(ctx context.Context, userID int, amount, total float64, address, txHash string) (float64, error) {
	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin withdraw tx: %w", err)
	}
	defer tx.Rollback()

	var newBalance float64
	if err := tx.QueryRowxContext(ctx,
		`UPDATE users SET balance_trx = balance_trx - $1 WHERE id=$2 AND balance_trx >= $1 RETURNING balance_trx`,
		total, userID).Scan(&newBalance); err != nil {
		return 0, fmt.Errorf("debit withdraw for user %d: %w", userID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (user_id, type, amount, trx_amount, tron_address, transaction_hash, status, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())`,
		userID, models.TxTypeWithdraw, amount, amount, address, txHash, models.TxStatusConfirmed); err != nil {
		return 0, fmt.Errorf("record withdraw: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit withdraw tx: %w", err)
	}
	return newBalance, nil
}
