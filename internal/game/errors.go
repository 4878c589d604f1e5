package game

import "errors"

var (
	// ErrInsufficientFunds is returned when a balance cannot cover the
	// minimum stake. Bank implementations return it from OpenGame when
	// either debit would take a balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyQueued is returned when a user already holds a queue entry.
	ErrAlreadyQueued = errors.New("already in queue")

	// ErrAlreadyInGame is returned when a user is a participant of a
	// non-settled session (or a pairing debit for them is in flight).
	ErrAlreadyInGame = errors.New("already in a game")
)
