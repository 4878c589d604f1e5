package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clickarena/backend/internal/game"
	"github.com/clickarena/backend/internal/ws"
)

var startTime = time.Now()

const version = "1.0.0"

// HealthCheck returns server health status
func HealthCheck(c *gin.Context) {
	resp := gin.H{
		"status":  "ok",
		"service": "clickarena-api",
		"version": version,
		"uptime":  time.Since(startTime).String(),
	}
	if game.Manager != nil {
		resp["queue_length"] = game.Manager.QueueLength()
		resp["active_games"] = game.Manager.ActiveSessionCount()
	}
	if ws.GameHub != nil {
		resp["connected_players"] = ws.GameHub.ConnectedCount()
	}
	c.JSON(http.StatusOK, resp)
}
