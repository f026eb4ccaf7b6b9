package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/internal/models"
)

func setupTestIndex(t *testing.T) (*MemoryVectorIndex, context.Context) {
	t.Helper()
	return NewMemoryVectorIndex(), context.Background()
}

func embeddedChunk(id, index int, embedding []float32) *models.DocumentChunk {
	return &models.DocumentChunk{
		ID:         id,
		ChunkIndex: index,
		Content:    "chunk content",
		Embedding:  embedding,
	}
}

func TestMemoryVectorIndexSearchOrdering(t *testing.T) {
	index, ctx := setupTestIndex(t)

	doc := &models.Document{ID: 1, OriginalFilename: "bylaws.pdf", OwnerID: 7}
	err := index.IndexChunks(ctx, doc, []*models.DocumentChunk{
		embeddedChunk(10, 0, []float32{1, 0, 0}),
		embeddedChunk(11, 1, []float32{0.9, 0.1, 0}),
		embeddedChunk(12, 2, []float32{0, 1, 0}),
	})
	require.NoError(t, err)

	results, err := index.Search(ctx, []float32{1, 0, 0}, SearchOptions{OwnerID: 7, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 10, results[0].ChunkID)
	assert.Equal(t, 11, results[1].ChunkID)
	assert.Equal(t, 12, results[2].ChunkID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].RelevanceScore, results[i].RelevanceScore)
	}
	assert.Equal(t, "bylaws.pdf", results[0].DocumentTitle)
}

func TestMemoryVectorIndexTieBreakByChunkID(t *testing.T) {
	index, ctx := setupTestIndex(t)

	doc := &models.Document{ID: 1, OriginalFilename: "minutes.pdf", OwnerID: 7}
	// identical embeddings, identical scores
	err := index.IndexChunks(ctx, doc, []*models.DocumentChunk{
		embeddedChunk(30, 2, []float32{1, 1, 0}),
		embeddedChunk(20, 1, []float32{1, 1, 0}),
		embeddedChunk(25, 0, []float32{1, 1, 0}),
	})
	require.NoError(t, err)

	results, err := index.Search(ctx, []float32{1, 1, 0}, SearchOptions{OwnerID: 7, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 20, results[0].ChunkID)
	assert.Equal(t, 25, results[1].ChunkID)
	assert.Equal(t, 30, results[2].ChunkID)
}

func TestMemoryVectorIndexMinScoreFloor(t *testing.T) {
	index, ctx := setupTestIndex(t)

	doc := &models.Document{ID: 1, OwnerID: 7}
	err := index.IndexChunks(ctx, doc, []*models.DocumentChunk{
		embeddedChunk(1, 0, []float32{1, 0}),
		embeddedChunk(2, 1, []float32{0, 1}),
	})
	require.NoError(t, err)

	results, err := index.Search(ctx, []float32{1, 0}, SearchOptions{OwnerID: 7, Limit: 5, MinScore: 0.65})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].ChunkID)
}

func TestMemoryVectorIndexLimit(t *testing.T) {
	index, ctx := setupTestIndex(t)

	doc := &models.Document{ID: 1, OwnerID: 7}
	chunks := make([]*models.DocumentChunk, 0, 10)
	for i := 0; i < 10; i++ {
		chunks = append(chunks, embeddedChunk(i+1, i, []float32{1, float32(i) * 0.01}))
	}
	require.NoError(t, index.IndexChunks(ctx, doc, chunks))

	results, err := index.Search(ctx, []float32{1, 0}, SearchOptions{OwnerID: 7, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestMemoryVectorIndexOwnerScoping(t *testing.T) {
	index, ctx := setupTestIndex(t)

	mine := &models.Document{ID: 1, OwnerID: 7}
	theirs := &models.Document{ID: 2, OwnerID: 8}
	require.NoError(t, index.IndexChunks(ctx, mine, []*models.DocumentChunk{
		embeddedChunk(1, 0, []float32{1, 0}),
	}))
	require.NoError(t, index.IndexChunks(ctx, theirs, []*models.DocumentChunk{
		embeddedChunk(2, 0, []float32{1, 0}),
	}))

	results, err := index.Search(ctx, []float32{1, 0}, SearchOptions{OwnerID: 7, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].ChunkID)
}

func TestMemoryVectorIndexDocumentFilter(t *testing.T) {
	index, ctx := setupTestIndex(t)

	for docID, chunkID := range map[int]int{1: 10, 2: 20, 3: 30} {
		require.NoError(t, index.IndexChunks(ctx, &models.Document{ID: docID, OwnerID: 7}, []*models.DocumentChunk{
			embeddedChunk(chunkID, 0, []float32{1, 0}),
		}))
	}

	results, err := index.Search(ctx, []float32{1, 0}, SearchOptions{OwnerID: 7, DocumentIDs: []int{1, 3}, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 10, results[0].ChunkID)
	assert.Equal(t, 30, results[1].ChunkID)

	// an empty filter means no restriction
	results, err = index.Search(ctx, []float32{1, 0}, SearchOptions{OwnerID: 7, Limit: 5})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestMemoryVectorIndexSkipsUnembeddedChunks(t *testing.T) {
	index, ctx := setupTestIndex(t)

	doc := &models.Document{ID: 1, OwnerID: 7}
	err := index.IndexChunks(ctx, doc, []*models.DocumentChunk{
		embeddedChunk(1, 0, []float32{1, 0}),
		{ID: 2, ChunkIndex: 1, Content: "embedding failed"},
	})
	require.NoError(t, err)

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryVectorIndexReindexReplacesDocument(t *testing.T) {
	index, ctx := setupTestIndex(t)

	doc := &models.Document{ID: 1, OwnerID: 7}
	require.NoError(t, index.IndexChunks(ctx, doc, []*models.DocumentChunk{
		embeddedChunk(1, 0, []float32{1, 0}),
		embeddedChunk(2, 1, []float32{0, 1}),
	}))
	require.NoError(t, index.IndexChunks(ctx, doc, []*models.DocumentChunk{
		embeddedChunk(3, 0, []float32{1, 0}),
	}))

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := index.Search(ctx, []float32{1, 0}, SearchOptions{OwnerID: 7, Limit: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].ChunkID)
}

func TestMemoryVectorIndexRemoveDocument(t *testing.T) {
	index, ctx := setupTestIndex(t)

	require.NoError(t, index.IndexChunks(ctx, &models.Document{ID: 1, OwnerID: 7}, []*models.DocumentChunk{
		embeddedChunk(1, 0, []float32{1, 0}),
	}))
	require.NoError(t, index.IndexChunks(ctx, &models.Document{ID: 2, OwnerID: 7}, []*models.DocumentChunk{
		embeddedChunk(2, 0, []float32{0, 1}),
	}))

	require.NoError(t, index.RemoveDocument(ctx, 1))

	count, err := index.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryVectorIndexEmptyQueryEmbedding(t *testing.T) {
	index, ctx := setupTestIndex(t)

	_, err := index.Search(ctx, nil, SearchOptions{Limit: 5})
	assert.Error(t, err)

	var indexErr *VectorIndexError
	assert.ErrorAs(t, err, &indexErr)
}
