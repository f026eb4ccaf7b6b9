package services

import (
	"context"
	"strings"
	"time"

	"github.com/stretchr/testify/mock"

	"boardroom/internal/models"
	"boardroom/internal/repositories"
)

type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) CreateSession(ctx context.Context, userID int, title string) (*models.ChatSession, error) {
	args := m.Called(ctx, userID, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatSession), args.Error(1)
}

func (m *MockSessionRepository) GetSession(ctx context.Context, sessionID, userID int) (*models.ChatSession, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatSession), args.Error(1)
}

func (m *MockSessionRepository) ListSessions(ctx context.Context, userID, skip, limit int) ([]*models.ChatSession, int, error) {
	args := m.Called(ctx, userID, skip, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.ChatSession), args.Int(1), args.Error(2)
}

func (m *MockSessionRepository) DeleteSession(ctx context.Context, sessionID, userID int) error {
	return m.Called(ctx, sessionID, userID).Error(0)
}

func (m *MockSessionRepository) AppendMessage(ctx context.Context, message *models.ChatMessage) (*models.ChatMessage, error) {
	args := m.Called(ctx, message)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatMessage), args.Error(1)
}

func (m *MockSessionRepository) GetMessages(ctx context.Context, sessionID, userID int) ([]*models.ChatMessage, error) {
	args := m.Called(ctx, sessionID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ChatMessage), args.Error(1)
}

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) CreateDocument(ctx context.Context, doc *models.Document) (*models.Document, error) {
	args := m.Called(ctx, doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Document), args.Error(1)
}

func (m *MockDocumentRepository) GetDocument(ctx context.Context, docID, ownerID int) (*models.Document, error) {
	args := m.Called(ctx, docID, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Document), args.Error(1)
}

func (m *MockDocumentRepository) GetDocumentAny(ctx context.Context, docID int) (*models.Document, error) {
	args := m.Called(ctx, docID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Document), args.Error(1)
}

func (m *MockDocumentRepository) ListDocuments(ctx context.Context, ownerID int) ([]*models.Document, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Document), args.Error(1)
}

func (m *MockDocumentRepository) UpdateDocument(ctx context.Context, doc *models.Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *MockDocumentRepository) DeleteDocument(ctx context.Context, docID, ownerID int) error {
	return m.Called(ctx, docID, ownerID).Error(0)
}

type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) ReplaceChunks(ctx context.Context, documentID int, chunks []*models.DocumentChunk) ([]*models.DocumentChunk, error) {
	args := m.Called(ctx, documentID, chunks)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DocumentChunk), args.Error(1)
}

func (m *MockChunkRepository) GetChunks(ctx context.Context, documentID int) ([]*models.DocumentChunk, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.DocumentChunk), args.Error(1)
}

func (m *MockChunkRepository) DeleteChunks(ctx context.Context, documentID int) error {
	return m.Called(ctx, documentID).Error(0)
}

type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Enqueue(ctx context.Context, job *repositories.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockJobRepository) Dequeue(ctx context.Context, timeout time.Duration) (*repositories.Job, error) {
	args := m.Called(ctx, timeout)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.Job), args.Error(1)
}

func (m *MockJobRepository) GetJob(ctx context.Context, id string) (*repositories.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repositories.Job), args.Error(1)
}

func (m *MockJobRepository) UpdateJob(ctx context.Context, job *repositories.Job) error {
	return m.Called(ctx, job).Error(0)
}

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) Dimension() int {
	return m.Called().Int(0)
}

type MockWebSearcher struct {
	mock.Mock
}

func (m *MockWebSearcher) SearchStatutes(ctx context.Context, query string, limit int) ([]models.WebSearchResult, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WebSearchResult), args.Error(1)
}

type MockDocumentGenerator struct {
	mock.Mock
}

func (m *MockDocumentGenerator) Generate(ctx context.Context, userID int, templateType, title string, fields map[string]string) (*models.Document, error) {
	args := m.Called(ctx, userID, templateType, title, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Document), args.Error(1)
}

// scriptedTurn is one pre-planned generation turn for the fake client
type scriptedTurn struct {
	deltas []string
	result TurnResult
	err    error
}

// fakeGenerator plays back scripted turns, driving the emit callback the way
// the real streaming client does
type fakeGenerator struct {
	supportsTools bool
	turns         []scriptedTurn
	requests      []GenerationRequest
}

func (f *fakeGenerator) SupportsTools() bool {
	return f.supportsTools
}

func (f *fakeGenerator) StreamTurn(ctx context.Context, req GenerationRequest, emit func(string) error) (*TurnResult, error) {
	f.requests = append(f.requests, req)

	idx := len(f.requests) - 1
	if idx >= len(f.turns) {
		return &TurnResult{StopReason: StopReasonEndTurn}, nil
	}
	turn := f.turns[idx]
	if turn.err != nil {
		return nil, turn.err
	}

	for _, delta := range turn.deltas {
		if emit != nil {
			if err := emit(delta); err != nil {
				return nil, err
			}
		}
	}

	result := turn.result
	if result.Text == "" {
		result.Text = strings.Join(turn.deltas, "")
	}
	if result.StopReason == "" {
		result.StopReason = StopReasonEndTurn
	}
	return &result, nil
}
