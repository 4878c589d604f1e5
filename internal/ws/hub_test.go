package ws

import (
	"encoding/json"
	"testing"
)

func addTestClient(h *Hub, userID int, buffer int) *Client {
	c := &Client{userID: userID, send: make(chan []byte, buffer)}
	h.mu.Lock()
	h.clients[userID] = c
	h.mu.Unlock()
	return c
}

func TestToUserFlattensPayload(t *testing.T) {
	h := NewHub()
	c := addTestClient(h, 1, 1)

	h.ToUser(1, "game_matched", map[string]interface{}{"opponent": "bob", "pot": 4.0})

	var msg map[string]interface{}
	select {
	case data := <-c.send:
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
	default:
		t.Fatal("no message delivered")
	}

	if msg["type"] != "game_matched" {
		t.Errorf("expected type game_matched, got %v", msg["type"])
	}
	if msg["opponent"] != "bob" {
		t.Errorf("expected opponent bob, got %v", msg["opponent"])
	}
	if msg["pot"] != 4.0 {
		t.Errorf("expected pot 4, got %v", msg["pot"])
	}
}

func TestToUserDropsWhenBufferFull(t *testing.T) {
	h := NewHub()
	c := addTestClient(h, 1, 1)

	h.ToUser(1, "progress_update", map[string]interface{}{"n": 1})
	h.ToUser(1, "progress_update", map[string]interface{}{"n": 2}) // dropped, must not block

	if len(c.send) != 1 {
		t.Errorf("expected 1 buffered message, got %d", len(c.send))
	}
}

func TestToUserUnknownUserIsNoop(t *testing.T) {
	h := NewHub()
	h.ToUser(99, "game_start", nil) // must not panic
}

func TestIsConnected(t *testing.T) {
	h := NewHub()
	if h.IsConnected(1) {
		t.Error("empty hub should report disconnected")
	}
	addTestClient(h, 1, 1)
	if !h.IsConnected(1) {
		t.Error("registered client should report connected")
	}
	if h.ConnectedCount() != 1 {
		t.Errorf("expected 1 connection, got %d", h.ConnectedCount())
	}
}
