package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/clickarena/backend/internal/config"
	"github.com/redis/go-redis/v9"
)

// GameManager owns the matchmaking queue and the session registry. Queue
// mutations are serialized under one lock so pairing decisions always see a
// consistent queue length; sessions are keyed by user ID with both
// participants pointing at the same *Session.
type GameManager struct {
	mu       sync.RWMutex
	queue    []QueueEntry
	sessions map[int]*Session // user ID -> active session (shared by the pair)
	pending  map[int]bool     // users whose pairing debit is in flight

	bank   Bank
	events Events
	rdb    *redis.Client // optional, best-effort session snapshots
	cfg    *config.Config
}

// QueueEntry represents a player waiting in the matchmaking queue.
type QueueEntry struct {
	UserID   int
	Username string
	JoinedAt time.Time
}

// Manager is the global game manager instance.
var Manager *GameManager

// InitializeManager initializes the global game manager.
func InitializeManager(bank Bank, events Events, rdb *redis.Client, cfg *config.Config) {
	Manager = NewGameManager(bank, events, rdb, cfg)
}

// NewGameManager creates a new game manager.
func NewGameManager(bank Bank, events Events, rdb *redis.Client, cfg *config.Config) *GameManager {
	return &GameManager{
		sessions: make(map[int]*Session),
		pending:  make(map[int]bool),
		bank:     bank,
		events:   events,
		rdb:      rdb,
		cfg:      cfg,
	}
}

// JoinQueue adds a player to the matchmaking queue and immediately pairs the
// two oldest entries when the queue reaches two. Returns the 1-based queue
// position. Rejections (low balance, duplicate entry, active session) leave
// the queue unchanged.
func (gm *GameManager) JoinQueue(ctx context.Context, userID int, username string) (int, error) {
	// Balance read happens before the queue lock; the authoritative
	// all-or-nothing check is the pair debit at session creation.
	balance, err := gm.bank.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	if balance < gm.cfg.MinStakeTRX {
		return 0, ErrInsufficientFunds
	}

	gm.mu.Lock()
	if gm.pending[userID] || gm.sessions[userID] != nil {
		gm.mu.Unlock()
		return 0, ErrAlreadyInGame
	}
	for _, e := range gm.queue {
		if e.UserID == userID {
			gm.mu.Unlock()
			return 0, ErrAlreadyQueued
		}
	}

	gm.queue = append(gm.queue, QueueEntry{UserID: userID, Username: username, JoinedAt: time.Now()})
	position := len(gm.queue)

	// Pair check runs on every successful enqueue: strict FIFO, the two
	// oldest entries. They are marked pending before the lock drops so
	// neither can re-enter the queue while the debit is in flight.
	var e1, e2 QueueEntry
	paired := false
	if len(gm.queue) >= 2 {
		e1, e2 = gm.queue[0], gm.queue[1]
		gm.queue = gm.queue[2:]
		gm.pending[e1.UserID] = true
		gm.pending[e2.UserID] = true
		paired = true
	}
	gm.mu.Unlock()

	gm.events.ToUser(userID, "queue_joined", map[string]interface{}{"position": position})
	log.Printf("[QUEUE] Player %d joined at position %d", userID, position)

	if paired {
		go gm.createSession(context.Background(), e1, e2)
	}
	return position, nil
}

// LeaveQueue removes a player from the queue. Idempotent; safe to call for a
// player who was never queued.
func (gm *GameManager) LeaveQueue(userID int) bool {
	gm.mu.Lock()
	removed := false
	for i, e := range gm.queue {
		if e.UserID == userID {
			gm.queue = append(gm.queue[:i], gm.queue[i+1:]...)
			removed = true
			break
		}
	}
	gm.mu.Unlock()

	gm.events.ToUser(userID, "queue_left", map[string]interface{}{})
	if removed {
		log.Printf("[QUEUE] Player %d left the queue", userID)
	}
	return removed
}

// createSession performs the MATCHED entry: both stakes debited atomically,
// the game row created, then the session published into the registry. The
// debit happens before publication so no caller ever observes a
// half-initialized session.
func (gm *GameManager) createSession(ctx context.Context, e1, e2 QueueEntry) {
	stake := gm.cfg.MinStakeTRX
	pot := stake * 2

	gameID, err := gm.bank.OpenGame(ctx, e1.UserID, e2.UserID, stake, pot)
	if err != nil {
		gm.mu.Lock()
		delete(gm.pending, e1.UserID)
		delete(gm.pending, e2.UserID)
		gm.mu.Unlock()

		log.Printf("[MATCH] Failed to open game for players %d/%d: %v", e1.UserID, e2.UserID, err)
		msg := "Failed to start game, please try again"
		if errors.Is(err, ErrInsufficientFunds) {
			msg = fmt.Sprintf("Insufficient balance (minimum %.0f TRX)", gm.cfg.MinStakeTRX)
		}
		gm.events.ToUser(e1.UserID, "error", map[string]interface{}{"message": msg})
		gm.events.ToUser(e2.UserID, "error", map[string]interface{}{"message": msg})
		return
	}

	sess := NewSession(gameID,
		&Participant{UserID: e1.UserID, Username: e1.Username},
		&Participant{UserID: e2.UserID, Username: e2.Username},
		stake, gm.cfg.WinThreshold, gm.events)

	gm.mu.Lock()
	gm.sessions[e1.UserID] = sess
	gm.sessions[e2.UserID] = sess
	delete(gm.pending, e1.UserID)
	delete(gm.pending, e2.UserID)
	gm.mu.Unlock()

	log.Printf("[MATCH] Game %d created: %s vs %s (stake=%.2f pot=%.2f)",
		gameID, e1.Username, e2.Username, stake, pot)
	gm.saveSessionToRedis(sess)

	gm.events.ToUser(e1.UserID, "game_matched", map[string]interface{}{
		"game_id":       gameID,
		"opponent":      e2.Username,
		"stake":         stake,
		"pot":           pot,
		"player_number": 1,
	})
	gm.events.ToUser(e2.UserID, "game_matched", map[string]interface{}{
		"game_id":       gameID,
		"opponent":      e1.Username,
		"stake":         stake,
		"pot":           pot,
		"player_number": 2,
	})

	// Countdown grace delay before clicks count.
	time.AfterFunc(time.Duration(gm.cfg.CountdownSeconds)*time.Second, func() {
		gm.startSession(sess)
	})
}

// startSession transitions MATCHED -> ACTIVE after the countdown and tells
// both players. A session forfeited during the countdown stays settled.
func (gm *GameManager) startSession(s *Session) {
	if !s.Activate() {
		return
	}
	log.Printf("[GAME] Game %d started: %d vs %d", s.ID, s.Player1.UserID, s.Player2.UserID)
	gm.saveSessionToRedis(s)

	if err := gm.bank.MarkGameStarted(context.Background(), s.ID); err != nil {
		log.Printf("[DB] Failed to mark game %d started: %v", s.ID, err)
	}

	gm.events.ToUser(s.Player1.UserID, "game_start", map[string]interface{}{})
	gm.events.ToUser(s.Player2.UserID, "game_start", map[string]interface{}{})
}

// HandleClick processes one game_click event. Clicks with no active session
// for the sender are stale events and silently dropped.
func (gm *GameManager) HandleClick(userID int) {
	gm.mu.RLock()
	sess := gm.sessions[userID]
	gm.mu.RUnlock()
	if sess == nil {
		return
	}

	winner, loser := sess.Click(userID)
	if winner != nil {
		gm.settle(sess, winner, loser)
	}
}

// HandleDisconnect cleans up queue membership and forfeits any non-settled
// session the player is part of. Stakes are already debited at MATCHED
// entry, so a disconnect always resolves through settlement, never a drop.
func (gm *GameManager) HandleDisconnect(userID int) {
	gm.mu.Lock()
	for i, e := range gm.queue {
		if e.UserID == userID {
			gm.queue = append(gm.queue[:i], gm.queue[i+1:]...)
			log.Printf("[QUEUE] Player %d removed after disconnect", userID)
			break
		}
	}
	sess := gm.sessions[userID]
	gm.mu.Unlock()
	if sess == nil {
		return
	}

	winner, loser := sess.Forfeit(userID)
	if winner != nil {
		log.Printf("[GAME] Game %d forfeited by player %d, player %d wins", sess.ID, loser.UserID, winner.UserID)
		gm.settle(sess, winner, loser)
	}
}

// settle runs the settlement effects for a session whose gate the caller
// just won. On persistent store failure the gate is compensated (reverted)
// so a later event can retry; effects are never partially applied.
func (gm *GameManager) settle(sess *Session, winner, loser *Participant) {
	payout := sess.Pot * float64(gm.cfg.WinnerSharePercent) / 100.0
	fee := sess.Pot - payout

	var err error
	for attempt := 1; attempt <= gm.cfg.SettleRetries; attempt++ {
		err = gm.bank.CloseGame(context.Background(), sess.ID, winner.UserID, loser.UserID, payout, fee)
		if err == nil {
			break
		}
		log.Printf("[SETTLE] Attempt %d/%d failed for game %d: %v", attempt, gm.cfg.SettleRetries, sess.ID, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		sess.Reopen()
		log.Printf("[SETTLE ERROR] Game %d left unsettled after %d attempts: %v", sess.ID, gm.cfg.SettleRetries, err)
		return
	}
	sess.Finish()

	// Both registry keys drop together, atomically with settlement.
	gm.mu.Lock()
	delete(gm.sessions, winner.UserID)
	delete(gm.sessions, loser.UserID)
	gm.mu.Unlock()

	log.Printf("[SETTLE] Game %d settled: winner=%d payout=%.2f fee=%.2f", sess.ID, winner.UserID, payout, fee)
	gm.deleteSessionFromRedis(sess)

	gm.events.ToUser(winner.UserID, "game_finished", map[string]interface{}{
		"result": "win",
		"payout": payout,
		"winner": winner.Username,
	})
	gm.events.ToUser(loser.UserID, "game_finished", map[string]interface{}{
		"result": "lose",
		"payout": 0.0,
		"winner": winner.Username,
	})
}

// SessionForUser returns the active session for a player, or nil.
func (gm *GameManager) SessionForUser(userID int) *Session {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return gm.sessions[userID]
}

// IsQueued reports whether a player currently holds a queue entry.
func (gm *GameManager) IsQueued(userID int) bool {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	for _, e := range gm.queue {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

// QueueLength returns the number of waiting players.
func (gm *GameManager) QueueLength() int {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	return len(gm.queue)
}

// ActiveSessionCount returns the number of non-settled sessions.
func (gm *GameManager) ActiveSessionCount() int {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	seen := make(map[int64]bool)
	for _, s := range gm.sessions {
		seen[s.ID] = true
	}
	return len(seen)
}

// saveSessionToRedis persists a session snapshot for observability and
// recovery. Best-effort; a missing Redis client is not an error.
func (gm *GameManager) saveSessionToRedis(s *Session) {
	if gm.rdb == nil {
		return
	}
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		log.Printf("[REDIS] Failed to marshal session %d: %v", s.ID, err)
		return
	}
	key := fmt.Sprintf("game:%d:state", s.ID)
	if err := gm.rdb.SetEx(context.Background(), key, data, time.Hour).Err(); err != nil {
		log.Printf("[REDIS] Failed to save session %d: %v", s.ID, err)
	}
}

func (gm *GameManager) deleteSessionFromRedis(s *Session) {
	if gm.rdb == nil {
		return
	}
	key := fmt.Sprintf("game:%d:state", s.ID)
	if err := gm.rdb.Del(context.Background(), key).Err(); err != nil {
		log.Printf("[REDIS] Failed to delete session %d: %v", s.ID, err)
	}
}
