package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"boardroom/internal/models"
	"boardroom/internal/services"
)

// ChatHandler serves session and message endpoints, including the SSE stream
type ChatHandler struct {
	chat   *services.ChatService
	logger *log.Logger
}

// NewChatHandler creates a chat handler
func NewChatHandler(chat *services.ChatService, logger *log.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger,
	}
}

// CreateSessionRequest is the body for creating a session
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// SendMessageRequest is the body for sending a chat message
type SendMessageRequest struct {
	Message string `json:"message"`
}

// CreateSession godoc
// @Summary Create a chat session
// @Description Creates a new conversation for the acting user
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body CreateSessionRequest true "Session options"
// @Success 201 {object} models.ChatSession
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/sessions [post]
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req CreateSessionRequest
	if r.Body != nil {
		// an empty body is fine, the title just defaults
		json.NewDecoder(r.Body).Decode(&req)
	}

	session, err := h.chat.CreateSession(r.Context(), userID, req.Title)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, session)
}

// ListSessions godoc
// @Summary List chat sessions
// @Description Returns the acting user's sessions, most recently active first
// @Tags sessions
// @Produce json
// @Param skip query int false "Offset"
// @Param limit query int false "Page size"
// @Success 200 {object} models.SessionListResponse
// @Router /api/v1/sessions [get]
func (h *ChatHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	response, err := h.chat.ListSessions(r.Context(), userID, queryInt(r, "skip", 0), queryInt(r, "limit", 20))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, response)
}

// DeleteSession godoc
// @Summary Delete a chat session
// @Description Removes a session and all of its messages
// @Tags sessions
// @Produce json
// @Param id path int true "Session ID"
// @Success 200 {object} models.BasicResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id} [delete]
func (h *ChatHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sessionID, err := pathInt(r, "id")
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	if err := h.chat.DeleteSession(r.Context(), sessionID, userID); err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, models.BasicResponse{Message: "session deleted", Status: "ok"})
}

// GetMessages godoc
// @Summary Get session messages
// @Description Returns a session's messages in order
// @Tags sessions
// @Produce json
// @Param id path int true "Session ID"
// @Success 200 {array} models.ChatMessage
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/messages [get]
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sessionID, err := pathInt(r, "id")
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	messages, err := h.chat.GetMessages(r.Context(), sessionID, userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if messages == nil {
		messages = []*models.ChatMessage{}
	}
	sendJSON(w, http.StatusOK, messages)
}

// SendMessage godoc
// @Summary Send a chat message
// @Description Runs the chat pipeline and returns the full response at once
// @Tags chat
// @Accept json
// @Produce json
// @Param id path int true "Session ID"
// @Param request body SendMessageRequest true "The user message"
// @Success 200 {object} models.ChatResponse
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/messages [post]
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sessionID, err := pathInt(r, "id")
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	response, err := h.chat.SendMessage(r.Context(), userID, sessionID, req.Message)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, response)
}

// StreamMessage godoc
// @Summary Stream a chat response
// @Description Runs the chat pipeline and streams citation, content and terminal events as server-sent events
// @Tags chat
// @Accept json
// @Produce text/event-stream
// @Param id path int true "Session ID"
// @Param request body SendMessageRequest true "The user message"
// @Success 200 {string} string "SSE stream"
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/sessions/{id}/messages/stream [post]
func (h *ChatHandler) StreamMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sessionID, err := pathInt(r, "id")
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := h.chat.StreamMessage(r.Context(), userID, sessionID, req.Message)
	if err != nil {
		sendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Printf("failed to marshal stream event: %v", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}
