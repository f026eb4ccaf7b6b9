package handlers

import (
	"log"
	"net/http"

	"boardroom/internal/models"
	"boardroom/internal/services"
)

// DocumentHandler serves document upload, processing and listing endpoints
type DocumentHandler struct {
	documents *services.DocumentService
	logger    *log.Logger
}

// NewDocumentHandler creates a document handler
func NewDocumentHandler(documents *services.DocumentService, logger *log.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		logger:    logger,
	}
}

// Upload godoc
// @Summary Upload a document
// @Description Accepts a multipart file upload and queues it for processing
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "The document file"
// @Success 201 {object} models.Document
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/documents [post]
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxUploadSize+1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		sendError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		sendError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	doc, err := h.documents.Upload(r.Context(), userID, header.Filename, header.Size, header.Header.Get("Content-Type"), file)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusCreated, doc)
}

// Process godoc
// @Summary Reprocess a document
// @Description Queues extraction, chunking, embedding and indexing for a document
// @Tags documents
// @Produce json
// @Param id path int true "Document ID"
// @Success 202 {object} models.BasicResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/documents/{id}/process [post]
func (h *DocumentHandler) Process(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	docID, err := pathInt(r, "id")
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := h.documents.EnqueueProcessing(r.Context(), docID, userID); err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, http.StatusAccepted, models.BasicResponse{Message: "processing queued", Status: "ok"})
}

// List godoc
// @Summary List documents
// @Description Returns the acting user's documents, newest first
// @Tags documents
// @Produce json
// @Success 200 {array} models.Document
// @Router /api/v1/documents [get]
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	docs, err := h.documents.ListDocuments(r.Context(), userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	sendJSON(w, http.StatusOK, docs)
}

// GetChunks godoc
// @Summary List document chunks
// @Description Returns a document's stored chunks in order
// @Tags documents
// @Produce json
// @Param id path int true "Document ID"
// @Success 200 {array} models.DocumentChunk
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/documents/{id}/chunks [get]
func (h *DocumentHandler) GetChunks(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	docID, err := pathInt(r, "id")
	if err != nil {
		sendError(w, http.StatusBadRequest, "invalid document id")
		return
	}

	chunks, err := h.documents.GetChunks(r.Context(), docID, userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if chunks == nil {
		chunks = []*models.DocumentChunk{}
	}
	sendJSON(w, http.StatusOK, chunks)
}
