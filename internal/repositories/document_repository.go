package repositories

import (
	"context"

	"boardroom/internal/models"
)

// DocumentRepository manages document metadata rows. Lookups are scoped to
// the owning user.
type DocumentRepository interface {
	// CreateDocument stores a new document and assigns its id
	CreateDocument(ctx context.Context, doc *models.Document) (*models.Document, error)

	// GetDocument fetches a document owned by the user
	GetDocument(ctx context.Context, docID, ownerID int) (*models.Document, error)

	// GetDocumentAny fetches a document regardless of owner, for internal
	// pipeline use (the worker has no acting user)
	GetDocumentAny(ctx context.Context, docID int) (*models.Document, error)

	// ListDocuments returns the user's documents, newest first
	ListDocuments(ctx context.Context, ownerID int) ([]*models.Document, error)

	// UpdateDocument rewrites a document row
	UpdateDocument(ctx context.Context, doc *models.Document) error

	// DeleteDocument removes a document row
	DeleteDocument(ctx context.Context, docID, ownerID int) error
}

// ChunkRepository stores the chunk rows of record for each document,
// including chunks that failed to embed. The vector index only ever sees the
// embedded subset.
type ChunkRepository interface {
	// ReplaceChunks atomically swaps a document's chunk rows for a new set,
	// assigning fresh ids in ascending chunk-index order
	ReplaceChunks(ctx context.Context, documentID int, chunks []*models.DocumentChunk) ([]*models.DocumentChunk, error)

	// GetChunks returns a document's chunks in chunk-index order
	GetChunks(ctx context.Context, documentID int) ([]*models.DocumentChunk, error)

	// DeleteChunks removes all chunk rows of a document
	DeleteChunks(ctx context.Context, documentID int) error
}
