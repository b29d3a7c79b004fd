package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"geminichat/internal/microservices/chatroom"
	"geminichat/internal/microservices/http-api/dto"
	"geminichat/internal/microservices/http-api/service"

	"github.com/gin-gonic/gin"
)

type ChatroomHandler struct {
	sessions service.SessionService
	logger   *slog.Logger
}

func NewChatroomHandler(sessions service.SessionService, logger *slog.Logger) *ChatroomHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatroomHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers chat room routes; sendMiddleware guards message posting
func (h *ChatroomHandler) RegisterRoutes(router *gin.RouterGroup, sendMiddleware ...gin.HandlerFunc) {
	rooms := router.Group("/chatrooms/:id")
	{
		rooms.GET("/messages", h.History)                          // Visible window of the room
		rooms.POST("/messages", append(sendMiddleware, h.Send)...) // Send a user message
		rooms.POST("/messages/older", h.LoadOlder)                 // Reveal one older page
		rooms.DELETE("/messages", h.Clear)                         // Drop the stored log
		rooms.GET("/state", h.State)                               // View flags only
		rooms.DELETE("/session", h.CloseSession)                   // Tear the view down
	}
}

// History opens the room view and returns its visible window
// GET /api/chatrooms/:id/messages
func (h *ChatroomHandler) History(c *gin.Context) {
	ctrl, err := h.sessions.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWindowResponse(ctrl.Window(), ctrl.State()))
}

// State returns the view flags of an open room
// GET /api/chatrooms/:id/state
func (h *ChatroomHandler) State(c *gin.Context) {
	ctrl, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, ctrl.State())
}

// Send appends a user message and schedules the reply
// POST /api/chatrooms/:id/messages
func (h *ChatroomHandler) Send(c *gin.Context) {
	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	attachment, err := dto.ParseDataURL(req.Image)
	if err != nil {
		switch {
		case errors.Is(err, dto.ErrNotImage):
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": err.Error()})
		case errors.Is(err, dto.ErrImageTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	ctrl, err := h.sessions.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}

	msg, err := ctrl.AppendUserMessage(c.Request.Context(), req.Text, attachment)
	if msg == nil {
		if err != nil {
			h.sessionError(c, err)
			return
		}
		// nothing to send
		c.Status(http.StatusNoContent)
		return
	}

	persisted := err == nil
	if !persisted {
		h.logger.Warn("chat_message_not_persisted", "room_id", ctrl.RoomID(), "error", err)
	}
	c.JSON(http.StatusCreated, dto.SendMessageResponse{
		Message:   dto.FromMessage(*msg),
		State:     ctrl.State(),
		Persisted: persisted,
	})
}

// LoadOlder reveals one older page, waiting for it unless wait=false
// POST /api/chatrooms/:id/messages/older
func (h *ChatroomHandler) LoadOlder(c *gin.Context) {
	ctrl, err := h.sessions.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}

	done := ctrl.LoadOlderPage()
	if c.Query("wait") == "false" {
		c.JSON(http.StatusAccepted, ctrl.State())
		return
	}

	select {
	case <-done:
	case <-c.Request.Context().Done():
		// client went away, the page still lands for the next read
		return
	}
	c.JSON(http.StatusOK, dto.NewWindowResponse(ctrl.Window(), ctrl.State()))
}

// Clear deletes the stored log and reseeds the room
// DELETE /api/chatrooms/:id/messages
func (h *ChatroomHandler) Clear(c *gin.Context) {
	ctrl, err := h.sessions.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.sessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewWindowResponse(ctrl.Window(), ctrl.State()))
}

// CloseSession tears down the room view, dropping pending replies
// DELETE /api/chatrooms/:id/session
func (h *ChatroomHandler) CloseSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("id")); err != nil {
		h.sessionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatroomHandler) sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRoomID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chatroom.ErrClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, errors.ErrUnsupported):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "store backend cannot delete chat logs"})
	default:
		h.logger.Error("chat_room_request_failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
