package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"boardroom/internal/extract"
	"boardroom/internal/models"
	"boardroom/internal/repositories"
)

// MaxUploadSize caps uploaded files at 50MB
const MaxUploadSize = 50 << 20

var pageMarkerPattern = regexp.MustCompile(`\[Page (\d+)\]`)

// DocumentService owns the document lifecycle: upload, background
// processing (extract, chunk, embed, index) and retrieval of the stored
// rows
type DocumentService struct {
	documents  repositories.DocumentRepository
	chunks     repositories.ChunkRepository
	jobs       repositories.JobRepository
	index      repositories.VectorIndex
	embedder   Embedder
	chunker    *Chunker
	storageDir string
	logger     *log.Logger
}

// NewDocumentService wires a document service from its collaborators
func NewDocumentService(
	documents repositories.DocumentRepository,
	chunks repositories.ChunkRepository,
	jobs repositories.JobRepository,
	index repositories.VectorIndex,
	embedder Embedder,
	chunker *Chunker,
	storageDir string,
	logger *log.Logger,
) *DocumentService {
	return &DocumentService{
		documents:  documents,
		chunks:     chunks,
		jobs:       jobs,
		index:      index,
		embedder:   embedder,
		chunker:    chunker,
		storageDir: storageDir,
		logger:     logger,
	}
}

// Upload validates and stores an uploaded file, registers the document and
// queues it for processing
func (s *DocumentService) Upload(ctx context.Context, ownerID int, originalFilename string, size int64, mimeType string, r io.Reader) (*models.Document, error) {
	if !extract.IsSupported(originalFilename) {
		return nil, fmt.Errorf("%w: unsupported file type %s", ErrValidation, filepath.Ext(originalFilename))
	}
	if size > MaxUploadSize {
		return nil, fmt.Errorf("%w: file exceeds the %dMB limit", ErrValidation, MaxUploadSize>>20)
	}

	if err := os.MkdirAll(s.storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(originalFilename))
	filename := uuid.New().String() + ext
	path := filepath.Join(s.storageDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	written, err := io.Copy(file, io.LimitReader(r, MaxUploadSize+1))
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to store file: %w", err)
	}
	if written > MaxUploadSize {
		os.Remove(path)
		return nil, fmt.Errorf("%w: file exceeds the %dMB limit", ErrValidation, MaxUploadSize>>20)
	}

	doc, err := s.documents.CreateDocument(ctx, &models.Document{
		Filename:         filename,
		OriginalFilename: originalFilename,
		FilePath:         path,
		FileType:         ext,
		FileSize:         written,
		MimeType:         mimeType,
		OwnerID:          ownerID,
		Status:           models.DocumentStatusUploaded,
	})
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	if err := s.enqueue(ctx, doc.ID); err != nil {
		// the document stays visible; processing can be retried explicitly
		s.logger.Printf("failed to queue processing for document %d: %v", doc.ID, err)
	}
	return doc, nil
}

// EnqueueProcessing queues (re)processing of an existing document
func (s *DocumentService) EnqueueProcessing(ctx context.Context, docID, ownerID int) error {
	if _, err := s.documents.GetDocument(ctx, docID, ownerID); err != nil {
		return mapNotFound(err)
	}
	return s.enqueue(ctx, docID)
}

func (s *DocumentService) enqueue(ctx context.Context, docID int) error {
	return s.jobs.Enqueue(ctx, &repositories.Job{
		Type:       repositories.JobTypeDocumentProcessing,
		DocumentID: docID,
	})
}

// Process runs the full pipeline for one document: extract text, chunk,
// embed, replace the chunk rows and reindex. Called by the worker, so there
// is no acting user.
func (s *DocumentService) Process(ctx context.Context, docID int) error {
	doc, err := s.documents.GetDocumentAny(ctx, docID)
	if err != nil {
		return mapNotFound(err)
	}

	doc.Status = models.DocumentStatusProcessing
	doc.ProcessingError = ""
	if err := s.documents.UpdateDocument(ctx, doc); err != nil {
		return err
	}

	if err := s.process(ctx, doc); err != nil {
		doc.Status = models.DocumentStatusFailed
		doc.ProcessingError = err.Error()
		if updateErr := s.documents.UpdateDocument(ctx, doc); updateErr != nil {
			s.logger.Printf("failed to record processing failure for document %d: %v", docID, updateErr)
		}
		return err
	}
	return nil
}

func (s *DocumentService) process(ctx context.Context, doc *models.Document) error {
	text, err := extract.ExtractText(doc.FilePath)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	contents := s.chunker.ChunkText(text)
	if len(contents) == 0 {
		return fmt.Errorf("document produced no chunks")
	}
	chunks := buildChunks(text, contents)

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	embedded := 0
	for i, vector := range embeddings {
		if vector != nil {
			chunks[i].Embedding = vector
			embedded++
		}
	}

	stored, err := s.chunks.ReplaceChunks(ctx, doc.ID, chunks)
	if err != nil {
		return fmt.Errorf("storing chunks failed: %w", err)
	}
	if err := s.index.IndexChunks(ctx, doc, stored); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	doc.Status = models.DocumentStatusProcessed
	doc.ChunkCount = len(stored)
	if err := s.documents.UpdateDocument(ctx, doc); err != nil {
		return err
	}

	s.logger.Printf("processed document %d: %d chunks, %d embedded", doc.ID, len(stored), embedded)
	return nil
}

// buildChunks assigns chunk indexes and page numbers. Each chunk gets the
// page announced by the last "[Page N]" marker at or before where the chunk
// starts in the source text.
func buildChunks(text string, contents []string) []*models.DocumentChunk {
	markers := pageMarkerPattern.FindAllStringSubmatchIndex(text, -1)
	pageAt := func(pos int) *int {
		page := 0
		for _, m := range markers {
			if m[0] > pos {
				break
			}
			if n, err := strconv.Atoi(text[m[2]:m[3]]); err == nil {
				page = n
			}
		}
		if page == 0 {
			return nil
		}
		return &page
	}

	chunks := make([]*models.DocumentChunk, 0, len(contents))
	cursor := 0
	for i, content := range contents {
		start := strings.Index(text[cursor:], content)
		if start < 0 {
			start = cursor
		} else {
			start += cursor
		}
		// overlapping chunks advance the search window past this start
		cursor = start + 1

		chunks = append(chunks, &models.DocumentChunk{
			Content:    content,
			ChunkIndex: i,
			PageNumber: pageAt(start),
		})
	}
	return chunks
}

// ListDocuments returns the user's documents, newest first
func (s *DocumentService) ListDocuments(ctx context.Context, ownerID int) ([]*models.Document, error) {
	return s.documents.ListDocuments(ctx, ownerID)
}

// GetDocument fetches one document owned by the user
func (s *DocumentService) GetDocument(ctx context.Context, docID, ownerID int) (*models.Document, error) {
	doc, err := s.documents.GetDocument(ctx, docID, ownerID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return doc, nil
}

// GetChunks returns a document's stored chunks in order
func (s *DocumentService) GetChunks(ctx context.Context, docID, ownerID int) ([]*models.DocumentChunk, error) {
	if _, err := s.documents.GetDocument(ctx, docID, ownerID); err != nil {
		return nil, mapNotFound(err)
	}
	return s.chunks.GetChunks(ctx, docID)
}
