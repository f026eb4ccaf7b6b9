package services

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"boardroom/internal/models"
	"boardroom/internal/repositories"
)

func setupTestChatService(generator GenerationClient, registry *ToolRegistry) (*ChatService, *MockSessionRepository, *MockEmbedder, *repositories.MemoryVectorIndex, *MockWebSearcher) {
	sessions := &MockSessionRepository{}
	embedder := &MockEmbedder{}
	index := repositories.NewMemoryVectorIndex()
	searcher := &MockWebSearcher{}

	if registry == nil {
		registry = NewToolRegistry(testLogger())
	}
	agent := NewAgentService(generator, registry, testLogger())
	service := NewChatService(sessions, embedder, index, generator, agent, searcher, testLogger())
	return service, sessions, embedder, index, searcher
}

func stubSession(sessions *MockSessionRepository, sessionID, userID int, history []*models.ChatMessage) {
	session := &models.ChatSession{ID: sessionID, UserID: userID, Title: models.DefaultSessionTitle}
	sessions.On("GetSession", mock.Anything, sessionID, userID).Return(session, nil)
	sessions.On("GetMessages", mock.Anything, sessionID, userID).Return(history, nil)
}

func collectEvents(t *testing.T, events <-chan models.StreamEvent) []models.StreamEvent {
	t.Helper()
	var collected []models.StreamEvent
	for event := range events {
		collected = append(collected, event)
	}
	return collected
}

func eventTypes(events []models.StreamEvent) []string {
	types := make([]string, len(events))
	for i, event := range events {
		types[i] = event.Type
	}
	return types
}

func indexTestChunks(t *testing.T, index *repositories.MemoryVectorIndex, ownerID int) {
	t.Helper()
	doc := &models.Document{ID: 1, OriginalFilename: "Bylaws.pdf", OwnerID: ownerID}
	err := index.IndexChunks(context.Background(), doc, []*models.DocumentChunk{
		{ID: 10, ChunkIndex: 0, Content: "A quorum is a majority of directors.", Embedding: []float32{1, 0, 0}},
		{ID: 11, ChunkIndex: 1, Content: "Officers serve two year terms.", Embedding: []float32{0, 1, 0}},
	})
	require.NoError(t, err)
}

func TestStreamMessageDirectModeOrdering(t *testing.T) {
	generator := &fakeGenerator{
		turns: []scriptedTurn{{deltas: []string{"A quorum ", "is a majority."}}},
	}
	service, sessions, embedder, index, _ := setupTestChatService(generator, nil)

	stubSession(sessions, 1, 7, []*models.ChatMessage{})
	indexTestChunks(t, index, 7)
	embedder.On("EmbedQuery", mock.Anything, "What is a quorum?").Return([]float32{1, 0, 0}, nil)
	sessions.On("AppendMessage", mock.Anything, mock.Anything).Return(&models.ChatMessage{}, nil)

	events, err := service.StreamMessage(context.Background(), 7, 1, "What is a quorum?")
	require.NoError(t, err)

	collected := collectEvents(t, events)
	types := eventTypes(collected)

	// only the aligned chunk clears the 0.65 floor
	require.Equal(t, []string{models.EventCitation, models.EventContent, models.EventContent, models.EventDone}, types)
	assert.Equal(t, 10, collected[0].Citation.ChunkReference)
	assert.Equal(t, "A quorum ", collected[1].Content)

	// user then assistant persisted
	sessions.AssertNumberOfCalls(t, "AppendMessage", 2)
	sessions.AssertExpectations(t)
}

func TestStreamMessageEmptyMessage(t *testing.T) {
	service, _, _, _, _ := setupTestChatService(&fakeGenerator{}, nil)

	_, err := service.StreamMessage(context.Background(), 7, 1, "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStreamMessageUnknownSession(t *testing.T) {
	service, sessions, _, _, _ := setupTestChatService(&fakeGenerator{}, nil)
	sessions.On("GetSession", mock.Anything, 99, 7).Return(nil, repositories.NewNotFoundError("session", 99))

	_, err := service.StreamMessage(context.Background(), 7, 99, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStreamMessageEmbeddingFailureDegrades(t *testing.T) {
	generator := &fakeGenerator{
		turns: []scriptedTurn{{deltas: []string{"Answering without context."}}},
	}
	service, sessions, embedder, _, _ := setupTestChatService(generator, nil)

	stubSession(sessions, 1, 7, []*models.ChatMessage{})
	embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("embedding provider down"))
	sessions.On("AppendMessage", mock.Anything, mock.Anything).Return(&models.ChatMessage{}, nil)

	events, err := service.StreamMessage(context.Background(), 7, 1, "What is a quorum?")
	require.NoError(t, err)

	types := eventTypes(collectEvents(t, events))
	assert.Equal(t, []string{models.EventContent, models.EventDone}, types)
}

func TestStreamMessageGenerationFailure(t *testing.T) {
	generator := &fakeGenerator{
		turns: []scriptedTurn{{err: fmt.Errorf("model overloaded")}},
	}
	service, sessions, embedder, _, _ := setupTestChatService(generator, nil)

	stubSession(sessions, 1, 7, []*models.ChatMessage{})
	embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)
	sessions.On("AppendMessage", mock.Anything, mock.MatchedBy(func(m *models.ChatMessage) bool {
		return m.Role == models.RoleUser
	})).Return(&models.ChatMessage{}, nil)

	events, err := service.StreamMessage(context.Background(), 7, 1, "What is a quorum?")
	require.NoError(t, err)

	collected := collectEvents(t, events)
	require.NotEmpty(t, collected)
	last := collected[len(collected)-1]
	assert.Equal(t, models.EventError, last.Type)

	// exactly one terminal event, no done after error
	terminal := 0
	for _, event := range collected {
		if event.IsTerminal() {
			terminal++
		}
	}
	assert.Equal(t, 1, terminal)

	// only the user message was persisted
	sessions.AssertNumberOfCalls(t, "AppendMessage", 1)
}

func TestStreamMessagePersistenceFailureAfterContent(t *testing.T) {
	generator := &fakeGenerator{
		turns: []scriptedTurn{{deltas: []string{"Streamed answer."}}},
	}
	service, sessions, embedder, _, _ := setupTestChatService(generator, nil)

	stubSession(sessions, 1, 7, []*models.ChatMessage{})
	embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)
	sessions.On("AppendMessage", mock.Anything, mock.MatchedBy(func(m *models.ChatMessage) bool {
		return m.Role == models.RoleUser
	})).Return(&models.ChatMessage{}, nil).Once()
	sessions.On("AppendMessage", mock.Anything, mock.MatchedBy(func(m *models.ChatMessage) bool {
		return m.Role == models.RoleAssistant
	})).Return(nil, fmt.Errorf("redis down"))

	events, err := service.StreamMessage(context.Background(), 7, 1, "What is a quorum?")
	require.NoError(t, err)

	types := eventTypes(collectEvents(t, events))

	// content was streamed and stands; the stream ends in error, not done
	assert.Contains(t, types, models.EventContent)
	assert.Equal(t, models.EventError, types[len(types)-1])
	assert.NotContains(t, types, models.EventDone)
}

func TestStreamMessageAgentModeOrdering(t *testing.T) {
	toolInput, _ := json.Marshal(map[string]string{"query": "quorum"})
	generator := &fakeGenerator{
		supportsTools: true,
		turns: []scriptedTurn{
			{
				result: TurnResult{
					StopReason: StopReasonToolUse,
					ToolUses:   []ToolUse{{ID: "tu_1", Name: "stub_search", Input: toolInput}},
				},
			},
			{deltas: []string{"Based on the bylaws, ", "a quorum is a majority."}},
		},
	}

	registry := NewToolRegistry(testLogger())
	registry.Register(Tool{
		Definition: ToolDefinition{Name: "stub_search", Description: "stub", InputSchema: map[string]interface{}{"type": "object"}},
		Handler: func(ctx context.Context, userID int, input json.RawMessage) ToolResult {
			return ToolResult{
				Text: "A quorum is a majority of directors.",
				Citations: []models.Citation{
					{DocumentID: 1, DocumentTitle: "Bylaws.pdf", ChunkReference: 10, RelevanceScore: 0.8},
				},
			}
		},
	})

	service, sessions, _, _, _ := setupTestChatService(generator, registry)
	stubSession(sessions, 1, 7, []*models.ChatMessage{})

	var persisted []*models.ChatMessage
	sessions.On("AppendMessage", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		persisted = append(persisted, args.Get(1).(*models.ChatMessage))
	}).Return(&models.ChatMessage{}, nil)

	events, err := service.StreamMessage(context.Background(), 7, 1, "What is a quorum?")
	require.NoError(t, err)

	collected := collectEvents(t, events)
	types := eventTypes(collected)
	require.Equal(t, []string{models.EventCitation, models.EventContent, models.EventContent, models.EventDone}, types)
	assert.Equal(t, "Bylaws.pdf", collected[0].Citation.DocumentTitle)

	// assistant message carries the citations from the tool result
	require.Len(t, persisted, 2)
	assert.Equal(t, models.RoleUser, persisted[0].Role)
	assert.Equal(t, models.RoleAssistant, persisted[1].Role)
	require.Len(t, persisted[1].Citations, 1)
	assert.Equal(t, 10, persisted[1].Citations[0].ChunkReference)
}

func TestStreamMessageStatuteKeywordTriggersWebSearch(t *testing.T) {
	generator := &fakeGenerator{
		turns: []scriptedTurn{{deltas: []string{"KRS 273 says..."}}},
	}
	service, sessions, embedder, _, searcher := setupTestChatService(generator, nil)

	stubSession(sessions, 1, 7, []*models.ChatMessage{})
	embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)
	searcher.On("SearchStatutes", mock.Anything, mock.Anything, DefaultWebSearchLimit).Return([]models.WebSearchResult{
		{Title: "KRS 273.211", URL: "https://example.test/krs"},
	}, nil)
	sessions.On("AppendMessage", mock.Anything, mock.Anything).Return(&models.ChatMessage{}, nil)

	events, err := service.StreamMessage(context.Background(), 7, 1, "What does the Kentucky statute say about quorum?")
	require.NoError(t, err)
	collectEvents(t, events)

	searcher.AssertExpectations(t)

	// web results land in the augmented prompt
	require.NotEmpty(t, generator.requests)
	prompt := generator.requests[0].Messages[len(generator.requests[0].Messages)-1].Content[0].Text
	assert.Contains(t, prompt, "# Web Search Results")
	assert.Contains(t, prompt, "KRS 273.211")
}

func TestSendMessageAssemblesResponse(t *testing.T) {
	generator := &fakeGenerator{
		turns: []scriptedTurn{{deltas: []string{"Part one. ", "Part two."}}},
	}
	service, sessions, embedder, index, _ := setupTestChatService(generator, nil)

	stubSession(sessions, 1, 7, []*models.ChatMessage{})
	indexTestChunks(t, index, 7)
	embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)
	sessions.On("AppendMessage", mock.Anything, mock.Anything).Return(&models.ChatMessage{}, nil)

	response, err := service.SendMessage(context.Background(), 7, 1, "What is a quorum?")
	require.NoError(t, err)
	assert.Equal(t, "Part one. Part two.", response.Message)
	require.Len(t, response.Citations, 1)
	assert.Equal(t, 10, response.Citations[0].ChunkReference)
}

func TestSendMessageSurfacesError(t *testing.T) {
	generator := &fakeGenerator{
		turns: []scriptedTurn{{err: fmt.Errorf("model down")}},
	}
	service, sessions, embedder, _, _ := setupTestChatService(generator, nil)

	stubSession(sessions, 1, 7, []*models.ChatMessage{})
	embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{1, 0, 0}, nil)
	sessions.On("AppendMessage", mock.Anything, mock.Anything).Return(&models.ChatMessage{}, nil)

	_, err := service.SendMessage(context.Background(), 7, 1, "What is a quorum?")
	assert.Error(t, err)
}
