package websocket

import (
	"errors"
	"net/http"

	"geminichat/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// HTTP upgrade handler to WebSocket connections

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// allow all origins for development purpose; CORS_ORIGINS guards the REST API
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler: upgrade GET /ws/chatrooms/:id and stream the room view
func WSHandler(hub *Hub, sessions service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("id")
		ctrl, err := sessions.Open(c.Request.Context(), roomID)
		if err != nil {
			if errors.Is(err, service.ErrInvalidRoomID) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open chat room"})
			return
		}

		// upgrade HTTP connection to WebSocket; Upgrade already replied on failure
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.logger.Warn("websocket_upgrade_failed", "room_id", roomID, "error", err)
			return
		}

		client := NewClient(uuid.NewString(), roomID, conn, hub, sessions, ctrl)
		if !hub.join(client) {
			conn.Close()
			return
		}

		// start goroutines for read and write pumps; the hub already queued
		// the history snapshot
		go client.WritePump()
		go client.ReadPump()

		client.logger.Info("websocket_client_joined")
	}
}
