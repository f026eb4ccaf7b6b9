package repositories

import (
	"context"
	"log"
	"strconv"

	"boardroom/internal/db"
	"boardroom/internal/models"
)

// DefaultCollectionName is the ChromaDB collection holding document chunks
const DefaultCollectionName = "board_documents"

// candidateMultiplier controls over-fetching from ChromaDB. Approximate
// nearest-neighbor recall can miss true matches near the limit boundary, so
// we pull extra candidates and re-rank them with exact cosine in-process.
const candidateMultiplier = 4

// ChromaVectorIndex implements VectorIndex on top of ChromaDB. Candidates come
// back from Chroma with their stored embeddings and are re-scored locally so
// the ranking contract (exact cosine, min-score floor, id tie break) holds
// regardless of backend behavior.
type ChromaVectorIndex struct {
	client     *db.ChromaClient
	collection string
	logger     *log.Logger
}

// NewChromaVectorIndex creates a vector index over the named collection
func NewChromaVectorIndex(client *db.ChromaClient, collection string, logger *log.Logger) *ChromaVectorIndex {
	if collection == "" {
		collection = DefaultCollectionName
	}
	return &ChromaVectorIndex{
		client:     client,
		collection: collection,
		logger:     logger,
	}
}

// IndexChunks upserts the embedded chunks of a document. Existing records of
// the document are removed first so a reprocessed document never leaves stale
// chunks behind.
func (c *ChromaVectorIndex) IndexChunks(ctx context.Context, doc *models.Document, chunks []*models.DocumentChunk) error {
	collectionID, err := c.client.EnsureCollection(ctx, c.collection)
	if err != nil {
		return NewVectorIndexError("index", "failed to resolve collection", err)
	}

	if err := c.client.Delete(ctx, collectionID, nil, map[string]interface{}{"document_id": doc.ID}); err != nil {
		return NewVectorIndexError("index", "failed to clear previous chunks", err)
	}

	var (
		ids        []string
		documents  []string
		embeddings [][]float32
		metadatas  []map[string]interface{}
	)
	for _, chunk := range chunks {
		if !chunk.HasEmbedding() {
			continue
		}
		metadata := map[string]interface{}{
			"chunk_id":       chunk.ID,
			"document_id":    doc.ID,
			"document_title": doc.Title(),
			"owner_id":       doc.OwnerID,
		}
		if chunk.PageNumber != nil {
			metadata["page_number"] = *chunk.PageNumber
		}
		ids = append(ids, strconv.Itoa(chunk.ID))
		documents = append(documents, chunk.Content)
		embeddings = append(embeddings, chunk.Embedding)
		metadatas = append(metadatas, metadata)
	}

	if len(ids) == 0 {
		c.logger.Printf("document %d has no embedded chunks to index", doc.ID)
		return nil
	}

	if err := c.client.Upsert(ctx, collectionID, ids, documents, embeddings, metadatas); err != nil {
		return NewVectorIndexError("index", "failed to upsert chunks", err)
	}

	c.logger.Printf("indexed %d chunks for document %d", len(ids), doc.ID)
	return nil
}

// RemoveDocument drops every indexed chunk belonging to a document
func (c *ChromaVectorIndex) RemoveDocument(ctx context.Context, documentID int) error {
	collectionID, err := c.client.EnsureCollection(ctx, c.collection)
	if err != nil {
		return NewVectorIndexError("remove", "failed to resolve collection", err)
	}

	if err := c.client.Delete(ctx, collectionID, nil, map[string]interface{}{"document_id": documentID}); err != nil {
		return NewVectorIndexError("remove", "failed to delete chunks", err)
	}
	return nil
}

// Search over-fetches candidates from ChromaDB and re-ranks them locally
func (c *ChromaVectorIndex) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]*models.RetrievedChunk, error) {
	if len(embedding) == 0 {
		return nil, NewVectorIndexError("search", "query embedding is empty", nil)
	}

	collectionID, err := c.client.EnsureCollection(ctx, c.collection)
	if err != nil {
		return nil, NewVectorIndexError("search", "failed to resolve collection", err)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 5
	}
	nResults := limit * candidateMultiplier
	if nResults < 20 {
		nResults = 20
	}

	var conditions []map[string]interface{}
	if opts.OwnerID != 0 {
		conditions = append(conditions, map[string]interface{}{"owner_id": opts.OwnerID})
	}
	if len(opts.DocumentIDs) > 0 {
		conditions = append(conditions, map[string]interface{}{
			"document_id": map[string]interface{}{"$in": opts.DocumentIDs},
		})
	}
	var where map[string]interface{}
	switch len(conditions) {
	case 0:
	case 1:
		where = conditions[0]
	default:
		where = map[string]interface{}{"$and": conditions}
	}

	result, err := c.client.Query(ctx, collectionID, embedding, nResults, where)
	if err != nil {
		return nil, NewVectorIndexError("search", "query failed", err)
	}
	if len(result.IDs) == 0 {
		return nil, nil
	}

	candidates := make([]*models.RetrievedChunk, 0, len(result.IDs[0]))
	for i := range result.IDs[0] {
		chunk := &models.RetrievedChunk{}
		if len(result.Documents) > 0 && i < len(result.Documents[0]) {
			chunk.Content = result.Documents[0][i]
		}
		if len(result.Metadatas) > 0 && i < len(result.Metadatas[0]) {
			applyChunkMetadata(chunk, result.Metadatas[0][i])
		}
		if chunk.ChunkID == 0 {
			if id, err := strconv.Atoi(result.IDs[0][i]); err == nil {
				chunk.ChunkID = id
			}
		}
		if len(result.Embeddings) > 0 && i < len(result.Embeddings[0]) {
			chunk.RelevanceScore = CosineSimilarity(embedding, result.Embeddings[0][i])
		}
		if !opts.matchesDocumentFilter(chunk.DocumentID) {
			continue
		}
		candidates = append(candidates, chunk)
	}

	return rankMatches(candidates, opts), nil
}

// Count returns the number of indexed chunks
func (c *ChromaVectorIndex) Count(ctx context.Context) (int, error) {
	collectionID, err := c.client.EnsureCollection(ctx, c.collection)
	if err != nil {
		return 0, NewVectorIndexError("count", "failed to resolve collection", err)
	}

	count, err := c.client.Count(ctx, collectionID)
	if err != nil {
		return 0, NewVectorIndexError("count", "count failed", err)
	}
	return count, nil
}

// applyChunkMetadata copies Chroma metadata fields onto a retrieved chunk.
// JSON numbers decode as float64, so numeric fields go through metadataInt.
func applyChunkMetadata(chunk *models.RetrievedChunk, metadata map[string]interface{}) {
	if v, ok := metadataInt(metadata, "chunk_id"); ok {
		chunk.ChunkID = v
	}
	if v, ok := metadataInt(metadata, "document_id"); ok {
		chunk.DocumentID = v
	}
	if v, ok := metadata["document_title"].(string); ok {
		chunk.DocumentTitle = v
	}
	if v, ok := metadataInt(metadata, "page_number"); ok {
		page := v
		chunk.PageNumber = &page
	}
}

func metadataInt(metadata map[string]interface{}, key string) (int, bool) {
	switch v := metadata[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}
