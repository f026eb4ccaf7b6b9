package repositories

import (
	"context"
	"sort"

	"boardroom/internal/models"
)

// SearchOptions controls a similarity search over the index
type SearchOptions struct {
	// OwnerID restricts results to chunks of documents owned by this user.
	// Zero means no owner filter.
	OwnerID int
	// DocumentIDs restricts results to chunks of these documents. Empty
	// means no document filter.
	DocumentIDs []int
	// Limit is the maximum number of results to return
	Limit int
	// MinScore drops results with cosine similarity strictly below this value
	MinScore float64
}

// VectorIndex stores embedded document chunks and answers similarity queries.
// Results are ordered by descending similarity; equal scores are broken by
// ascending chunk id so rankings are deterministic. Chunks without an
// embedding are never indexed.
type VectorIndex interface {
	// IndexChunks adds or replaces the embedded chunks of a document
	IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error

	// RemoveDocument drops every indexed chunk belonging to a document
	RemoveDocument(ctx context.Context, documentID int) error

	// Search returns the best-matching chunks for a query embedding
	Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]*models.RetrievedChunk, error)

	// Count returns the number of indexed chunks
	Count(ctx context.Context) (int, error)
}

// matchesDocumentFilter reports whether a document id passes the optional
// DocumentIDs restriction
func (o SearchOptions) matchesDocumentFilter(documentID int) bool {
	if len(o.DocumentIDs) == 0 {
		return true
	}
	for _, id := range o.DocumentIDs {
		if id == documentID {
			return true
		}
	}
	return false
}

// rankMatches sorts candidates by descending score with ascending chunk id as
// the tie break, then applies the min-score floor and limit. Shared by index
// implementations so both honor the same contract.
func rankMatches(candidates []*models.RetrievedChunk, opts SearchOptions) []*models.RetrievedChunk {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RelevanceScore != candidates[j].RelevanceScore {
			return candidates[i].RelevanceScore > candidates[j].RelevanceScore
		}
		return candidates[i].ChunkID < candidates[j].ChunkID
	})

	results := make([]*models.RetrievedChunk, 0, len(candidates))
	for _, c := range candidates {
		if c.RelevanceScore < opts.MinScore {
			continue
		}
		results = append(results, c)
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}
	return results
}
