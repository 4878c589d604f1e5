package game

import "context"

// Bank is the balance store and ledger boundary consumed by the game core.
// The core never computes a balance itself; it only requests atomic
// mutations and trusts the store's transactional guarantees.
type Bank interface {
	// Balance returns the user's current spendable TRX balance.
	Balance(ctx context.Context, userID int) (float64, error)

	// OpenGame debits the stake from both players, creates the game record
	// and appends a stake ledger entry per player, all in one transaction.
	// Returns ErrInsufficientFunds without any balance change if either
	// player cannot cover the stake.
	OpenGame(ctx context.Context, player1ID, player2ID int, stake, pot float64) (int64, error)

	// MarkGameStarted stamps the game record's start time when the session
	// goes ACTIVE.
	MarkGameStarted(ctx context.Context, gameID int64) error

	// CloseGame credits the winner's payout, increments the winner's win
	// counter and the loser's loss counter, appends payout and fee ledger
	// entries and marks the game record finished, all in one transaction.
	CloseGame(ctx context.Context, gameID int64, winnerID, loserID int, payout, fee float64) error
}

// Events delivers named events to a connected player. Implemented by the
// websocket hub; delivery is best-effort and must never block the caller.
type Events interface {
	ToUser(userID int, event string, payload interface{})
}
