package game

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/clickarena/backend/internal/config"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// fakeBank is an in-memory balance store for manager tests.
type fakeBank struct {
	mu         sync.Mutex
	balances   map[int]float64
	nextGameID int64

	openErr       error
	closeFailures int // fail this many CloseGame calls before succeeding

	opened  []int64
	started []int64
	closed  []closeCall
}

type closeCall struct {
	gameID   int64
	winnerID int
	loserID  int
	payout   float64
	fee      float64
}

func newFakeBank(balances map[int]float64) *fakeBank {
	return &fakeBank{balances: balances}
}

func (b *fakeBank) Balance(_ context.Context, userID int) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[userID], nil
}

func (b *fakeBank) OpenGame(_ context.Context, p1, p2 int, stake, pot float64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return 0, b.openErr
	}
	if b.balances[p1] < stake || b.balances[p2] < stake {
		return 0, ErrInsufficientFunds
	}
	b.balances[p1] -= stake
	b.balances[p2] -= stake
	b.nextGameID++
	b.opened = append(b.opened, b.nextGameID)
	return b.nextGameID, nil
}

func (b *fakeBank) MarkGameStarted(_ context.Context, gameID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = append(b.started, gameID)
	return nil
}

func (b *fakeBank) CloseGame(_ context.Context, gameID int64, winnerID, loserID int, payout, fee float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeFailures > 0 {
		b.closeFailures--
		return errors.New("store unavailable")
	}
	b.balances[winnerID] += payout
	b.closed = append(b.closed, closeCall{gameID, winnerID, loserID, payout, fee})
	return nil
}

func (b *fakeBank) closeCalls() []closeCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]closeCall, len(b.closed))
	copy(out, b.closed)
	return out
}

func (b *fakeBank) balance(userID int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[userID]
}

// fakeEvents records every event per user in delivery order.
type fakeEvents struct {
	mu     sync.Mutex
	events map[int][]recordedEvent
}

type recordedEvent struct {
	name    string
	payload map[string]interface{}
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{events: make(map[int][]recordedEvent)}
}

func (f *fakeEvents) ToUser(userID int, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, _ := payload.(map[string]interface{})
	f.events[userID] = append(f.events[userID], recordedEvent{name: event, payload: fields})
}

func (f *fakeEvents) forUser(userID int) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedEvent, len(f.events[userID]))
	copy(out, f.events[userID])
	return out
}

func (f *fakeEvents) last(userID int, name string) *recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	evs := f.events[userID]
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].name == name {
			return &evs[i]
		}
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		MinStakeTRX:        2.0,
		WinThreshold:       5,
		WinnerSharePercent: 85,
		CountdownSeconds:   3600, // tests drive activation directly
		SettleRetries:      3,
	}
}

func newTestManager(balances map[int]float64) (*GameManager, *fakeBank, *fakeEvents) {
	bank := newFakeBank(balances)
	events := newFakeEvents()
	return NewGameManager(bank, events, nil, testConfig()), bank, events
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func waitForSession(t *testing.T, gm *GameManager, userID int) *Session {
	t.Helper()
	waitFor(t, func() bool { return gm.SessionForUser(userID) != nil }, "session creation")
	return gm.SessionForUser(userID)
}

func TestJoinQueueReturnsPosition(t *testing.T) {
	gm, _, events := newTestManager(map[int]float64{1: 10})

	pos, err := gm.JoinQueue(context.Background(), 1, "alice")
	if err != nil {
		t.Fatalf("JoinQueue failed: %v", err)
	}
	if pos != 1 {
		t.Errorf("expected position 1, got %d", pos)
	}
	ev := events.last(1, "queue_joined")
	if ev == nil {
		t.Fatal("no queue_joined event delivered")
	}
	if ev.payload["position"] != 1 {
		t.Errorf("expected position 1 in event, got %v", ev.payload["position"])
	}
}

func TestJoinQueueRejectsLowBalance(t *testing.T) {
	gm, _, _ := newTestManager(map[int]float64{1: 1.5})

	if _, err := gm.JoinQueue(context.Background(), 1, "alice"); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got %v", err)
	}
	if gm.QueueLength() != 0 {
		t.Errorf("queue should stay empty, got %d entries", gm.QueueLength())
	}
}

func TestJoinQueueRejectsDuplicate(t *testing.T) {
	gm, _, _ := newTestManager(map[int]float64{1: 10})

	if _, err := gm.JoinQueue(context.Background(), 1, "alice"); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	if _, err := gm.JoinQueue(context.Background(), 1, "alice"); !errors.Is(err, ErrAlreadyQueued) {
		t.Errorf("expected ErrAlreadyQueued, got %v", err)
	}
	if gm.QueueLength() != 1 {
		t.Errorf("expected 1 queue entry, got %d", gm.QueueLength())
	}
}

func TestPairingCreatesSessionAndDebitsStakes(t *testing.T) {
	gm, bank, events := newTestManager(map[int]float64{1: 10, 2: 10})
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.JoinQueue(ctx, 2, "bob")

	sess := waitForSession(t, gm, 1)
	if gm.SessionForUser(2) != sess {
		t.Error("both players should share one session")
	}
	if sess.CurrentStatus() != StatusMatched {
		t.Errorf("expected MATCHED, got %s", sess.CurrentStatus())
	}
	if sess.Pot != 4 {
		t.Errorf("expected pot 4, got %.2f", sess.Pot)
	}
	if got := bank.balance(1); got != 8 {
		t.Errorf("expected alice debited to 8, got %.2f", got)
	}
	if got := bank.balance(2); got != 8 {
		t.Errorf("expected bob debited to 8, got %.2f", got)
	}
	if gm.QueueLength() != 0 {
		t.Errorf("queue should be empty after pairing, got %d", gm.QueueLength())
	}

	ev := events.last(1, "game_matched")
	if ev == nil {
		t.Fatal("no game_matched event for alice")
	}
	if ev.payload["opponent"] != "bob" {
		t.Errorf("expected opponent bob, got %v", ev.payload["opponent"])
	}
	if ev.payload["player_number"] != 1 {
		t.Errorf("expected player_number 1, got %v", ev.payload["player_number"])
	}
	ev = events.last(2, "game_matched")
	if ev == nil {
		t.Fatal("no game_matched event for bob")
	}
	if ev.payload["player_number"] != 2 {
		t.Errorf("expected player_number 2, got %v", ev.payload["player_number"])
	}
}

func TestPairingIsFIFO(t *testing.T) {
	gm, _, _ := newTestManager(map[int]float64{1: 10, 2: 10, 3: 10})
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.JoinQueue(ctx, 2, "bob")
	gm.JoinQueue(ctx, 3, "carol")

	sess := waitForSession(t, gm, 1)
	if sess.PlayerNumber(1) != 1 || sess.PlayerNumber(2) != 2 {
		t.Error("the two oldest entries should be paired in join order")
	}
	if gm.SessionForUser(3) != nil {
		t.Error("third player should not be in a session")
	}
	if !gm.IsQueued(3) {
		t.Error("third player should remain queued")
	}
}

func TestPairDebitFailureClearsPending(t *testing.T) {
	gm, bank, events := newTestManager(map[int]float64{1: 10, 2: 10})
	bank.openErr = errors.New("db down")
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.JoinQueue(ctx, 2, "bob")

	waitFor(t, func() bool { return events.last(1, "error") != nil }, "error event")
	if events.last(2, "error") == nil {
		t.Error("both players should receive the error event")
	}
	if gm.SessionForUser(1) != nil || gm.SessionForUser(2) != nil {
		t.Error("no session should exist after a failed pair debit")
	}

	// Pending state must be cleared so both can queue again.
	bank.openErr = nil
	if _, err := gm.JoinQueue(ctx, 1, "alice"); err != nil {
		t.Errorf("rejoin after failed pairing should succeed, got %v", err)
	}
}

func TestLeaveQueue(t *testing.T) {
	gm, _, events := newTestManager(map[int]float64{1: 10})
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	if !gm.LeaveQueue(1) {
		t.Error("expected LeaveQueue to report removal")
	}
	if gm.QueueLength() != 0 {
		t.Errorf("expected empty queue, got %d", gm.QueueLength())
	}
	if events.last(1, "queue_left") == nil {
		t.Error("no queue_left event delivered")
	}

	// Idempotent for a player who is not queued.
	if gm.LeaveQueue(1) {
		t.Error("second LeaveQueue should report nothing removed")
	}
}

func TestWinSettlement(t *testing.T) {
	gm, bank, events := newTestManager(map[int]float64{1: 10, 2: 10})
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.JoinQueue(ctx, 2, "bob")
	sess := waitForSession(t, gm, 1)
	gm.startSession(sess)

	for i := 0; i < gm.cfg.WinThreshold; i++ {
		gm.HandleClick(1)
	}

	calls := bank.closeCalls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one settlement, got %d", len(calls))
	}
	call := calls[0]
	if call.winnerID != 1 || call.loserID != 2 {
		t.Errorf("expected winner=1 loser=2, got winner=%d loser=%d", call.winnerID, call.loserID)
	}
	if !almostEqual(call.payout, 3.4) {
		t.Errorf("expected payout 3.40 (85%% of 4), got %.2f", call.payout)
	}
	if !almostEqual(call.fee, 0.6) {
		t.Errorf("expected fee 0.60, got %.2f", call.fee)
	}
	if got := bank.balance(1); !almostEqual(got, 11.4) {
		t.Errorf("expected winner balance 11.40, got %.2f", got)
	}
	if got := bank.balance(2); got != 8 {
		t.Errorf("expected loser balance 8.00, got %.2f", got)
	}

	if gm.SessionForUser(1) != nil || gm.SessionForUser(2) != nil {
		t.Error("both session keys should be removed after settlement")
	}

	win := events.last(1, "game_finished")
	if win == nil {
		t.Fatal("no game_finished event for winner")
	}
	if win.payload["result"] != "win" || !almostEqual(win.payload["payout"].(float64), 3.4) {
		t.Errorf("unexpected winner payload: %v", win.payload)
	}
	lose := events.last(2, "game_finished")
	if lose == nil {
		t.Fatal("no game_finished event for loser")
	}
	if lose.payload["result"] != "lose" || lose.payload["payout"] != 0.0 {
		t.Errorf("unexpected loser payload: %v", lose.payload)
	}
}

func TestClickBeforeStartDoesNotCount(t *testing.T) {
	gm, bank, _ := newTestManager(map[int]float64{1: 10, 2: 10})
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.JoinQueue(ctx, 2, "bob")
	sess := waitForSession(t, gm, 1)

	for i := 0; i < gm.cfg.WinThreshold; i++ {
		gm.HandleClick(1)
	}
	if p1, _ := sess.Progress(); p1 != 0 {
		t.Errorf("clicks before game_start should not count, got progress %d", p1)
	}
	if len(bank.closeCalls()) != 0 {
		t.Error("no settlement should have happened")
	}
}

func TestDisconnectForfeitsActiveGame(t *testing.T) {
	gm, bank, events := newTestManager(map[int]float64{1: 10, 2: 10})
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.JoinQueue(ctx, 2, "bob")
	sess := waitForSession(t, gm, 1)
	gm.startSession(sess)

	gm.HandleDisconnect(2)

	calls := bank.closeCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one settlement, got %d", len(calls))
	}
	if calls[0].winnerID != 1 {
		t.Errorf("remaining player should win, got winner=%d", calls[0].winnerID)
	}
	if ev := events.last(1, "game_finished"); ev == nil || ev.payload["result"] != "win" {
		t.Error("remaining player should receive a win event")
	}
}

func TestDisconnectForfeitsDuringCountdown(t *testing.T) {
	gm, bank, _ := newTestManager(map[int]float64{1: 10, 2: 10})
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.JoinQueue(ctx, 2, "bob")
	sess := waitForSession(t, gm, 1)

	gm.HandleDisconnect(1)

	calls := bank.closeCalls()
	if len(calls) != 1 || calls[0].winnerID != 2 {
		t.Fatalf("expected bob to win by forfeit, got %+v", calls)
	}
	// The countdown callback must not resurrect a forfeited session.
	if sess.Activate() {
		t.Error("settled session should not activate")
	}
}

func TestDisconnectRemovesQueuedPlayer(t *testing.T) {
	gm, bank, _ := newTestManager(map[int]float64{1: 10})
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.HandleDisconnect(1)

	if gm.IsQueued(1) {
		t.Error("disconnected player should leave the queue")
	}
	if len(bank.closeCalls()) != 0 {
		t.Error("no settlement for a queued-only player")
	}
}

func TestStaleClickIsIgnored(t *testing.T) {
	gm, _, _ := newTestManager(map[int]float64{})
	gm.HandleClick(42) // no session; must not panic
	gm.HandleDisconnect(42)
}

func TestSettleRetriesTransientFailure(t *testing.T) {
	gm, bank, _ := newTestManager(map[int]float64{1: 10, 2: 10})
	bank.closeFailures = 1
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.JoinQueue(ctx, 2, "bob")
	sess := waitForSession(t, gm, 1)
	gm.startSession(sess)

	for i := 0; i < gm.cfg.WinThreshold; i++ {
		gm.HandleClick(1)
	}

	if len(bank.closeCalls()) != 1 {
		t.Fatalf("settlement should succeed on retry, got %d calls", len(bank.closeCalls()))
	}
}

func TestSettleFailureReopensGate(t *testing.T) {
	gm, bank, _ := newTestManager(map[int]float64{1: 10, 2: 10})
	bank.closeFailures = 100 // more than SettleRetries
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.JoinQueue(ctx, 2, "bob")
	sess := waitForSession(t, gm, 1)
	gm.startSession(sess)

	for i := 0; i < gm.cfg.WinThreshold; i++ {
		gm.HandleClick(1)
	}

	if len(bank.closeCalls()) != 0 {
		t.Fatal("settlement should not have been recorded")
	}
	if sess.CurrentStatus() != StatusActive {
		t.Errorf("gate should reopen after store failure, got %s", sess.CurrentStatus())
	}
	if gm.SessionForUser(1) == nil {
		t.Error("session should remain registered for retry")
	}

	// Store recovers; the next winning click settles.
	bank.mu.Lock()
	bank.closeFailures = 0
	bank.mu.Unlock()
	gm.HandleClick(1)
	if len(bank.closeCalls()) != 1 {
		t.Errorf("expected settlement after recovery, got %d calls", len(bank.closeCalls()))
	}
}

func TestConcurrentFinishersSettleOnce(t *testing.T) {
	gm, bank, _ := newTestManager(map[int]float64{1: 10, 2: 10})
	ctx := context.Background()

	gm.JoinQueue(ctx, 1, "alice")
	gm.JoinQueue(ctx, 2, "bob")
	sess := waitForSession(t, gm, 1)
	gm.startSession(sess)

	// Winner is one click from the threshold; the winning click races a
	// disconnect forfeit of the other player.
	for i := 0; i < gm.cfg.WinThreshold-1; i++ {
		gm.HandleClick(1)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		gm.HandleClick(1)
	}()
	go func() {
		defer wg.Done()
		gm.HandleDisconnect(2)
	}()
	wg.Wait()

	calls := bank.closeCalls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one settlement, got %d", len(calls))
	}
	if calls[0].winnerID != 1 {
		t.Errorf("expected player 1 to win either way, got winner=%d", calls[0].winnerID)
	}
}
