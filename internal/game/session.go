package game

import (
	"sync"
	"time"
)

// Participant is one side of a session.
type Participant struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	Progress int    `json:"progress"`
}

// Session is the in-memory state machine for one paired game. All mutations
// to progress and status are serialized through the session mutex, so two
// click events can never be evaluated concurrently and a click can never be
// evaluated concurrently with a disconnect forfeit.
type Session struct {
	ID         int64
	Player1    *Participant
	Player2    *Participant
	Stake      float64
	Pot        float64
	Status     Status
	WinnerID   int
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time

	mu        sync.Mutex
	prev      Status // status before the settle gate flipped, for compensation
	threshold int
	events    Events
}

// NewSession creates a session in MATCHED state. The pot is fixed at
// creation and never recomputed.
func NewSession(id int64, p1, p2 *Participant, stake float64, threshold int, events Events) *Session {
	return &Session{
		ID:        id,
		Player1:   p1,
		Player2:   p2,
		Stake:     stake,
		Pot:       stake * 2,
		Status:    StatusMatched,
		CreatedAt: time.Now(),
		threshold: threshold,
		events:    events,
	}
}

// PlayerNumber returns 1 or 2 for a participant, 0 for anyone else.
func (s *Session) PlayerNumber(userID int) int {
	switch {
	case s.Player1.UserID == userID:
		return 1
	case s.Player2.UserID == userID:
		return 2
	default:
		return 0
	}
}

func (s *Session) participant(userID int) *Participant {
	switch userID {
	case s.Player1.UserID:
		return s.Player1
	case s.Player2.UserID:
		return s.Player2
	default:
		return nil
	}
}

func (s *Session) opponentOf(p *Participant) *Participant {
	if p == s.Player1 {
		return s.Player2
	}
	return s.Player1
}

// Opponent returns the other participant, or nil if userID is not part of
// the session.
func (s *Session) Opponent(userID int) *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.participant(userID)
	if p == nil {
		return nil
	}
	return s.opponentOf(p)
}

// Activate transitions MATCHED -> ACTIVE after the countdown. Returns false
// if the session already left MATCHED (e.g. forfeited during the countdown).
func (s *Session) Activate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status != StatusMatched {
		return false
	}
	now := time.Now()
	s.Status = StatusActive
	s.StartedAt = &now
	return true
}

// Click registers one progress increment for userID. Clicks for a session
// that is not ACTIVE, or from a user who is not a participant, are silently
// ignored. The progress broadcast happens while the mutex is held so every
// observer sees monotonically non-decreasing values.
//
// When this click crosses the win threshold the settle gate flips
// ACTIVE -> SETTLED atomically with the check, and the winner/loser pair is
// returned; exactly one click can win the gate.
func (s *Session) Click(userID int) (winner, loser *Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status != StatusActive {
		return nil, nil
	}
	p := s.participant(userID)
	if p == nil {
		return nil, nil
	}

	p.Progress++
	s.broadcastProgressLocked()

	if p.Progress >= s.threshold {
		s.prev = s.Status
		s.Status = StatusSettled
		s.WinnerID = p.UserID
		return p, s.opponentOf(p)
	}
	return nil, nil
}

// Forfeit awards the session to the remaining participant when leaverID
// disconnects. Valid from MATCHED or ACTIVE; a no-op once settled or for a
// non-participant.
func (s *Session) Forfeit(leaverID int) (winner, loser *Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status == StatusSettled {
		return nil, nil
	}
	l := s.participant(leaverID)
	if l == nil {
		return nil, nil
	}
	w := s.opponentOf(l)

	s.prev = s.Status
	s.Status = StatusSettled
	s.WinnerID = w.UserID
	return w, l
}

// Reopen reverts a settle gate whose balance-store transaction failed, so a
// later click or disconnect can retry. A completed settlement is never
// reverted.
func (s *Session) Reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status == StatusSettled && s.FinishedAt == nil {
		s.Status = s.prev
		s.WinnerID = 0
	}
}

// Finish records settlement completion. After this the session is immutable.
func (s *Session) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	s.FinishedAt = &now
}

// Progress returns both participants' current progress.
func (s *Session) Progress() (p1, p2 int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Player1.Progress, s.Player2.Progress
}

// CurrentStatus returns the session status.
func (s *Session) CurrentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

func (s *Session) broadcastProgressLocked() {
	payload := map[string]interface{}{
		"player1_progress": s.Player1.Progress,
		"player2_progress": s.Player2.Progress,
	}
	s.events.ToUser(s.Player1.UserID, "progress_update", payload)
	s.events.ToUser(s.Player2.UserID, "progress_update", payload)
}

// Snapshot returns a serializable copy of the session state for persistence.
func (s *Session) Snapshot() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := map[string]interface{}{
		"id":                s.ID,
		"player1_id":        s.Player1.UserID,
		"player1_username":  s.Player1.Username,
		"player1_progress":  s.Player1.Progress,
		"player2_id":        s.Player2.UserID,
		"player2_username":  s.Player2.Username,
		"player2_progress":  s.Player2.Progress,
		"stake":             s.Stake,
		"pot":               s.Pot,
		"status":            s.Status,
		"winner_id":         s.WinnerID,
		"created_at":        s.CreatedAt,
	}
	if s.StartedAt != nil {
		snap["started_at"] = *s.StartedAt
	}
	if s.FinishedAt != nil {
		snap["finished_at"] = *s.FinishedAt
	}
	return snap
}
