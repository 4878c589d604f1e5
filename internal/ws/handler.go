package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/clickarena/backend/internal/config"
	"github.com/clickarena/backend/internal/game"
	"github.com/clickarena/backend/internal/middleware"
)

// GameHub is the single hub for all connected players.
var GameHub *Hub

func init() {
	GameHub = NewHub()
	go runGameHub(GameHub)
}

// HandleWebSocket authenticates and upgrades a game connection. The access
// token rides in the query string because browsers cannot set headers on
// WebSocket upgrades.
func HandleWebSocket(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
			return
		}

		claims, err := middleware.ParseToken(tokenString, cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[WS] Upgrade error: %v", err)
			return
		}

		client := &Client{
			conn:     conn,
			userID:   claims.UserID,
			username: claims.Username,
			send:     make(chan []byte, 256),
		}

		GameHub.register <- client

		go client.writePump()
		go client.readPump(cfg)
	}
}

// runGameHub processes connect and disconnect events for the hub.
func runGameHub(h *Hub) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if oldClient, exists := h.clients[client.userID]; exists {
				log.Printf("[WS] User %d reconnecting - closing old connection", client.userID)
				if err := oldClient.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "replaced by new connection"), time.Now().Add(5*time.Second)); err != nil {
					log.Printf("Error writing close control to old client %d: %v", oldClient.userID, err)
				}
				oldClient.conn.Close()
				select {
				case <-oldClient.send:
				default:
					close(oldClient.send)
				}
				delete(h.clients, client.userID)
			}
			h.clients[client.userID] = client
			h.mu.Unlock()

			log.Printf("[WS] User %d (%s) connected", client.userID, client.username)

		case client := <-h.unregister:
			h.mu.Lock()
			current, ok := h.clients[client.userID]
			if ok && current == client {
				delete(h.clients, client.userID)
			}
			h.mu.Unlock()

			// A replaced connection must not forfeit the game the new
			// connection is still playing.
			if ok && current == client {
				log.Printf("[WS] User %d disconnected", client.userID)
				if game.Manager != nil {
					game.Manager.HandleDisconnect(client.userID)
				}
			}
		}
	}
}

// readPump reads messages from the connection and dispatches game events.
func (c *Client) readPump(cfg *config.Config) {
	defer func() {
		GameHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error for user %d: %v", c.userID, err)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.sendError("Invalid message format")
			continue
		}

		c.handleMessage(msg, cfg)
	}
}

func (c *Client) handleMessage(msg WSMessage, cfg *config.Config) {
	if game.Manager == nil {
		c.sendError("Game service unavailable")
		return
	}

	switch msg.Type {
	case "join_queue":
		if _, err := game.Manager.JoinQueue(context.Background(), c.userID, c.username); err != nil {
			c.sendError(queueErrorMessage(err, cfg))
		}

	case "leave_queue":
		game.Manager.LeaveQueue(c.userID)

	case "game_click":
		game.Manager.HandleClick(c.userID)

	default:
		log.Printf("[WS] Unknown message type %q from user %d", msg.Type, c.userID)
	}
}

func queueErrorMessage(err error, cfg *config.Config) string {
	switch {
	case errors.Is(err, game.ErrInsufficientFunds):
		return fmt.Sprintf("Insufficient balance (minimum %.0f TRX)", cfg.MinStakeTRX)
	case errors.Is(err, game.ErrAlreadyQueued):
		return "Already in queue"
	case errors.Is(err, game.ErrAlreadyInGame):
		return "Already in an active game"
	default:
		return "Failed to join queue, please try again"
	}
}
