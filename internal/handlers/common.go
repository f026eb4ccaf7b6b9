package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"boardroom/internal/services"
)

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

// sendJSON writes a JSON response with the given status code
func sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// sendError writes a JSON error response
func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Code:    status,
		Message: message,
	})
}

// sendServiceError maps service sentinel errors onto HTTP statuses
func sendServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound):
		sendError(w, http.StatusNotFound, err.Error())
	default:
		sendError(w, http.StatusInternalServerError, err.Error())
	}
}

// actingUserID reads the user id set by the upstream auth layer. Requests
// without one are rejected before reaching any service.
func actingUserID(r *http.Request) (int, bool) {
	header := r.Header.Get("X-User-ID")
	if header == "" {
		return 0, false
	}
	id, err := strconv.Atoi(header)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// requireUser extracts the acting user or writes a 401
func requireUser(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := actingUserID(r)
	if !ok {
		sendError(w, http.StatusUnauthorized, "missing or invalid X-User-ID header")
	}
	return id, ok
}

// pathInt reads an integer path variable
func pathInt(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}

// queryInt reads an integer query parameter with a default
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
