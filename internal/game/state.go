package game

// Status represents the current state of a session. Transitions only move
// forward: MATCHED -> ACTIVE -> SETTLED.
type Status string

const (
	StatusMatched Status = "MATCHED"
	StatusActive  Status = "ACTIVE"
	StatusSettled Status = "SETTLED"
)
