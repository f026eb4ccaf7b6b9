package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"boardroom/internal/handlers"
)

// Handlers bundles everything RegisterRoutes needs
type Handlers struct {
	Health http.HandlerFunc

	Chat      *handlers.ChatHandler
	Documents *handlers.DocumentHandler
	Search    *handlers.SearchHandler
}

// RegisterRoutes sets up all application routes
func RegisterRoutes(router *mux.Router, h *Handlers) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Sessions and chat
	api.HandleFunc("/sessions", h.Chat.CreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", h.Chat.ListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", h.Chat.DeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/messages", h.Chat.GetMessages).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/messages", h.Chat.SendMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/messages/stream", h.Chat.StreamMessage).Methods(http.MethodPost)

	// Documents
	api.HandleFunc("/documents", h.Documents.Upload).Methods(http.MethodPost)
	api.HandleFunc("/documents", h.Documents.List).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}/process", h.Documents.Process).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/chunks", h.Documents.GetChunks).Methods(http.MethodGet)

	// Direct retrieval
	api.HandleFunc("/search", h.Search.Search).Methods(http.MethodPost)
}
