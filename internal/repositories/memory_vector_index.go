package repositories

import (
	"context"
	"sync"

	"boardroom/internal/models"
)

type memoryIndexEntry struct {
	chunkID       int
	documentID    int
	documentTitle string
	ownerID       int
	content       string
	pageNumber    *int
	embedding     []float32
}

// MemoryVectorIndex is an in-process VectorIndex backed by a map. It performs
// exact cosine scoring over every stored chunk, which makes it the reference
// implementation for the ranking contract and a usable fallback when ChromaDB
// is not configured.
type MemoryVectorIndex struct {
	mu      sync.RWMutex
	entries map[int]memoryIndexEntry
}

// NewMemoryVectorIndex creates an empty in-memory vector index
func NewMemoryVectorIndex() *MemoryVectorIndex {
	return &MemoryVectorIndex{
		entries: make(map[int]memoryIndexEntry),
	}
}

// IndexChunks adds or replaces the embedded chunks of a document. Chunks
// without an embedding are skipped; previously indexed chunks of the same
// document are dropped first.
func (m *MemoryVectorIndex) IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, entry := range m.entries {
		if entry.documentID == doc.ID {
			delete(m.entries, id)
		}
	}

	for _, chunk := range chunks {
		if !chunk.HasEmbedding() {
			continue
		}
		m.entries[chunk.ID] = memoryIndexEntry{
			chunkID:       chunk.ID,
			documentID:    doc.ID,
			documentTitle: doc.Title(),
			ownerID:       doc.OwnerID,
			content:       chunk.Content,
			pageNumber:    chunk.PageNumber,
			embedding:     chunk.Embedding,
		}
	}
	return nil
}

// RemoveDocument drops every indexed chunk belonging to a document
func (m *MemoryVectorIndex) RemoveDocument(ctx context.Context, documentID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, entry := range m.entries {
		if entry.documentID == documentID {
			delete(m.entries, id)
		}
	}
	return nil
}

// Search scores every stored chunk against the query embedding and returns
// the ranked matches
func (m *MemoryVectorIndex) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]*models.RetrievedChunk, error) {
	if len(embedding) == 0 {
		return nil, NewVectorIndexError("search", "query embedding is empty", nil)
	}

	m.mu.RLock()
	candidates := make([]*models.RetrievedChunk, 0, len(m.entries))
	for _, entry := range m.entries {
		if opts.OwnerID != 0 && entry.ownerID != opts.OwnerID {
			continue
		}
		if !opts.matchesDocumentFilter(entry.documentID) {
			continue
		}
		candidates = append(candidates, &models.RetrievedChunk{
			ChunkID:        entry.chunkID,
			DocumentID:     entry.documentID,
			DocumentTitle:  entry.documentTitle,
			Content:        entry.content,
			PageNumber:     entry.pageNumber,
			RelevanceScore: CosineSimilarity(embedding, entry.embedding),
		})
	}
	m.mu.RUnlock()

	return rankMatches(candidates, opts), nil
}

// Count returns the number of indexed chunks
func (m *MemoryVectorIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}
