package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"boardroom/internal/models"
	"boardroom/internal/services"
)

// SearchHandler serves the direct retrieval endpoint used by the search UI
type SearchHandler struct {
	search *services.SearchService
	logger *log.Logger
}

// NewSearchHandler creates a search handler
func NewSearchHandler(search *services.SearchService, logger *log.Logger) *SearchHandler {
	return &SearchHandler{
		search: search,
		logger: logger,
	}
}

// SearchRequest is the body for a direct retrieval query
type SearchRequest struct {
	Query       string  `json:"query"`
	Limit       int     `json:"limit"`
	MinScore    float64 `json:"min_score"`
	DocumentIDs []int   `json:"document_ids,omitempty"`
}

// SearchResponse wraps the ranked matches
type SearchResponse struct {
	Results []*models.RetrievedChunk `json:"results"`
	Total   int                      `json:"total"`
}

// Search godoc
// @Summary Search document chunks
// @Description Embeds the query and returns the best-matching chunks from the acting user's documents
// @Tags search
// @Accept json
// @Produce json
// @Param request body SearchRequest true "Search parameters"
// @Success 200 {object} SearchResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/search [post]
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := h.search.Search(r.Context(), userID, req.Query, req.Limit, req.MinScore, req.DocumentIDs)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusOK, SearchResponse{Results: results, Total: len(results)})
}
