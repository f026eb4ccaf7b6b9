package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"boardroom/internal/models"
	"boardroom/internal/repositories"
)

// SearchService answers direct retrieval queries against the vector index,
// outside any chat session
type SearchService struct {
	embedder Embedder
	index    repositories.VectorIndex
	logger   *log.Logger
}

// NewSearchService creates a search service
func NewSearchService(embedder Embedder, index repositories.VectorIndex, logger *log.Logger) *SearchService {
	return &SearchService{
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// Search embeds the query and returns the ranked matching chunks from the
// user's documents. Zero limit and min score fall back to the direct-mode
// defaults; a non-empty documentIDs restricts matches to those documents.
func (s *SearchService) Search(ctx context.Context, userID int, query string, limit int, minScore float64, documentIDs []int) ([]*models.RetrievedChunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultRetrievalLimit
	}
	if minScore <= 0 {
		minScore = DirectSearchMinScore
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := s.index.Search(ctx, vector, repositories.SearchOptions{
		OwnerID:     userID,
		DocumentIDs: documentIDs,
		Limit:       limit,
		MinScore:    minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if chunks == nil {
		chunks = []*models.RetrievedChunk{}
	}
	return chunks, nil
}
