// Package handler provides the public HTTP surface of the orchestrator.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/stihelp/orchestrator/internal/coordinator"
	"github.com/stihelp/orchestrator/internal/domain"
	"github.com/stihelp/orchestrator/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{service: svc}
}

// RegisterRoutes registers the public routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/greeting", h.Greeting)
	e.POST("/api/chat", h.Chat)
	e.POST("/api/conversations/:conversation_id/reopen", h.Reopen)
	e.GET("/api/conversations/:conversation_id/events", h.GetEvents)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// Greeting starts a conversation and returns the opening turn.
// GET /api/greeting
func (h *Handler) Greeting(c echo.Context) error {
	ctx := c.Request().Context()

	resp, err := h.service.StartConversation(ctx, c.QueryParam("userRef"))
	if err != nil {
		// Reservation or persistence trouble; details stay in the logs.
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not start conversation"})
	}
	return c.JSON(http.StatusOK, resp)
}

// ChatRequest is one inbound turn.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId,omitempty"`
	Text      string `json:"text,omitempty"`
	ButtonID  string `json:"buttonId,omitempty"`
}

// Chat submits one turn for an existing session.
// POST /api/chat
func (h *Handler) Chat(c echo.Context) error {
	ctx := c.Request().Context()

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
	}
	if req.Text == "" && req.ButtonID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text or buttonId is required"})
	}
	if req.Text != "" && req.ButtonID != "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "text and buttonId are mutually exclusive"})
	}

	resp, err := h.service.SubmitTurn(ctx, req.SessionID, req.RequestID, domain.TurnInput{
		Text:     req.Text,
		ButtonID: req.ButtonID,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found or expired"})
		case errors.Is(err, coordinator.ErrLockTimeout):
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "conversation is busy, retry shortly"})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not process turn"})
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Reopen revives a closed conversation with a fresh session.
// POST /api/conversations/:conversation_id/reopen
func (h *Handler) Reopen(c echo.Context) error {
	ctx := c.Request().Context()
	conversationID := c.Param("conversation_id")

	resp, err := h.service.Reopen(ctx, conversationID)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "conversation not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not reopen conversation"})
	}
	return c.JSON(http.StatusOK, resp)
}

// GetEvents returns a slice of a conversation's transcript.
// GET /api/conversations/:conversation_id/events?after_seq=&types=&limit=
func (h *Handler) GetEvents(c echo.Context) error {
	ctx := c.Request().Context()
	conversationID := c.Param("conversation_id")

	var afterSeq int64
	if v := c.QueryParam("after_seq"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid after_seq"})
		}
		afterSeq = parsed
	}

	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = parsed
	}

	var types []string
	if v := c.QueryParams()["type"]; len(v) > 0 {
		types = v
	}

	events, err := h.service.Events(ctx, conversationID, afterSeq, types, limit)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "conversation not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "could not load events"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"events":          events,
	})
}
