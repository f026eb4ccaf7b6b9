package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"boardroom/internal/models"
	"boardroom/internal/repositories"
)

const (
	// DirectSearchMinScore is the similarity floor for direct-mode retrieval
	DirectSearchMinScore = 0.65

	// streamBufferSize bounds the event channel between the pipeline
	// goroutine and the SSE writer. A slow client applies backpressure to
	// generation instead of growing an unbounded queue.
	streamBufferSize = 16

	// persistTimeout bounds the write of a partial assistant message after
	// the client has gone away
	persistTimeout = 10 * time.Second
)

// statuteKeywords trigger a web statute search in direct mode, where the
// model cannot ask for one itself
var statuteKeywords = []string{"statute", "krs", "kentucky", "law", "regulation"}

// ChatService orchestrates a chat request: persist the user message,
// retrieve context, generate the answer and persist it, streaming ordered
// events along the way. The agent loop is the primary path; direct
// retrieval-augmented generation covers providers without tool support.
type ChatService struct {
	sessions  repositories.SessionRepository
	embedder  Embedder
	index     repositories.VectorIndex
	generator GenerationClient
	agent     *AgentService
	searcher  WebSearcher
	prompts   *PromptBuilder
	logger    *log.Logger
}

// NewChatService wires a chat service from its collaborators
func NewChatService(
	sessions repositories.SessionRepository,
	embedder Embedder,
	index repositories.VectorIndex,
	generator GenerationClient,
	agent *AgentService,
	searcher WebSearcher,
	logger *log.Logger,
) *ChatService {
	return &ChatService{
		sessions:  sessions,
		embedder:  embedder,
		index:     index,
		generator: generator,
		agent:     agent,
		searcher:  searcher,
		prompts:   NewPromptBuilder(),
		logger:    logger,
	}
}

// CreateSession creates a chat session for a user
func (s *ChatService) CreateSession(ctx context.Context, userID int, title string) (*models.ChatSession, error) {
	return s.sessions.CreateSession(ctx, userID, title)
}

// ListSessions returns a user's sessions, most recently active first
func (s *ChatService) ListSessions(ctx context.Context, userID, skip, limit int) (*models.SessionListResponse, error) {
	sessions, total, err := s.sessions.ListSessions(ctx, userID, skip, limit)
	if err != nil {
		return nil, err
	}
	return &models.SessionListResponse{Sessions: sessions, Total: total}, nil
}

// DeleteSession removes a session and its messages
func (s *ChatService) DeleteSession(ctx context.Context, sessionID, userID int) error {
	return mapNotFound(s.sessions.DeleteSession(ctx, sessionID, userID))
}

// GetMessages returns a session's messages in order
func (s *ChatService) GetMessages(ctx context.Context, sessionID, userID int) ([]*models.ChatMessage, error) {
	messages, err := s.sessions.GetMessages(ctx, sessionID, userID)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return messages, nil
}

// StreamMessage runs the chat pipeline for one user message. Validation and
// session lookup happen synchronously; the returned channel then carries zero
// or more citation events, zero or more content events and exactly one
// terminal event. The channel closes after the terminal event or when ctx is
// canceled.
func (s *ChatService) StreamMessage(ctx context.Context, userID, sessionID int, message string) (<-chan models.StreamEvent, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message must not be empty", ErrValidation)
	}
	if _, err := s.sessions.GetSession(ctx, sessionID, userID); err != nil {
		return nil, mapNotFound(err)
	}

	events := make(chan models.StreamEvent, streamBufferSize)
	go func() {
		defer close(events)
		s.runPipeline(ctx, userID, sessionID, message, events)
	}()
	return events, nil
}

// SendMessage is the non-streaming variant: it drains the stream and returns
// the assembled response
func (s *ChatService) SendMessage(ctx context.Context, userID, sessionID int, message string) (*models.ChatResponse, error) {
	events, err := s.StreamMessage(ctx, userID, sessionID, message)
	if err != nil {
		return nil, err
	}

	response := &models.ChatResponse{Citations: []models.Citation{}}
	var content strings.Builder
	for event := range events {
		switch event.Type {
		case models.EventCitation:
			if event.Citation != nil {
				response.Citations = append(response.Citations, *event.Citation)
			}
		case models.EventContent:
			content.WriteString(event.Content)
		case models.EventError:
			return nil, fmt.Errorf("chat failed: %s", event.Error)
		}
	}
	response.Message = content.String()
	return response, nil
}

// runPipeline executes persist, retrieve, generate and persist stages,
// emitting ordered events. Any stage failure after the stream opened turns
// into a single error event.
func (s *ChatService) runPipeline(ctx context.Context, userID, sessionID int, message string, events chan<- models.StreamEvent) {
	send := func(event models.StreamEvent) bool {
		select {
		case events <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(format string, args ...interface{}) {
		s.logger.Printf("chat pipeline: "+format, args...)
		send(models.StreamEvent{Type: models.EventError, Error: fmt.Sprintf(format, args...)})
	}

	// history first so the new user message appears exactly once
	history, err := s.sessions.GetMessages(ctx, sessionID, userID)
	if err != nil {
		fail("failed to load history: %v", err)
		return
	}

	// the user message is part of the record whatever happens next
	if _, err := s.sessions.AppendMessage(ctx, &models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   message,
	}); err != nil {
		fail("failed to persist user message: %v", err)
		return
	}

	var (
		answer     string
		citations  []models.Citation
		documentID *int
	)

	if s.generator.SupportsTools() {
		answer, citations, documentID, err = s.runAgentMode(ctx, userID, history, message, send)
	} else {
		answer, citations, err = s.runDirectMode(ctx, userID, history, message, send)
	}
	if err != nil {
		if ctx.Err() != nil {
			// client gone: keep what was generated, skip further events
			s.persistPartial(sessionID, answer, citations, documentID)
			return
		}
		fail("generation failed: %v", err)
		return
	}

	assistant := &models.ChatMessage{
		SessionID:           sessionID,
		Role:                models.RoleAssistant,
		Content:             answer,
		Citations:           citations,
		GeneratedDocumentID: documentID,
	}
	if _, err := s.sessions.AppendMessage(ctx, assistant); err != nil {
		// streamed content stands; the client learns persistence failed
		fail("failed to persist assistant message: %v", err)
		return
	}

	send(models.StreamEvent{Type: models.EventDone})
}

var errStreamClosed = errors.New("stream consumer gone")

// runAgentMode answers through the tool loop
func (s *ChatService) runAgentMode(ctx context.Context, userID int, history []*models.ChatMessage, message string, send func(models.StreamEvent) bool) (string, []models.Citation, *int, error) {
	messages := s.prompts.BuildHistory(history, message)

	var streamed strings.Builder
	outcome, err := s.agent.Run(ctx, userID, messages, AgentEvents{
		OnCitations: func(citations []models.Citation) error {
			for i := range citations {
				if !send(models.StreamEvent{Type: models.EventCitation, Citation: &citations[i]}) {
					return errStreamClosed
				}
			}
			return nil
		},
		OnText: func(text string) error {
			streamed.WriteString(text)
			if !send(models.StreamEvent{Type: models.EventContent, Content: text}) {
				return errStreamClosed
			}
			return nil
		},
	})
	if err != nil {
		return streamed.String(), nil, nil, err
	}
	return outcome.Text, outcome.Citations, outcome.DocumentID, nil
}

// runDirectMode embeds the question, retrieves context and streams a single
// augmented generation turn
func (s *ChatService) runDirectMode(ctx context.Context, userID int, history []*models.ChatMessage, message string, send func(models.StreamEvent) bool) (string, []models.Citation, error) {
	var chunks []*models.RetrievedChunk

	vector, err := s.embedder.EmbedQuery(ctx, message)
	if err != nil {
		// degraded: answer without document context
		s.logger.Printf("query embedding failed, continuing without retrieval: %v", err)
	} else {
		chunks, err = s.index.Search(ctx, vector, repositories.SearchOptions{
			OwnerID:  userID,
			Limit:    DefaultRetrievalLimit,
			MinScore: DirectSearchMinScore,
		})
		if err != nil {
			s.logger.Printf("retrieval failed, continuing without context: %v", err)
			chunks = nil
		}
	}

	var webResults []models.WebSearchResult
	if s.searcher != nil && mentionsStatutes(message) {
		webResults, err = s.searcher.SearchStatutes(ctx, message, DefaultWebSearchLimit)
		if err != nil {
			s.logger.Printf("statute search failed, continuing without web results: %v", err)
			webResults = nil
		}
	}

	citations := s.prompts.CitationsFor(chunks)
	for i := range citations {
		if !send(models.StreamEvent{Type: models.EventCitation, Citation: &citations[i]}) {
			return "", citations, context.Canceled
		}
	}

	augmented := s.prompts.BuildAugmentedMessage(chunks, webResults, message)
	messages := s.prompts.BuildHistory(history, augmented)

	var streamed strings.Builder
	turn, err := s.generator.StreamTurn(ctx, GenerationRequest{
		System:   DirectSystemPrompt,
		Messages: messages,
	}, func(delta string) error {
		streamed.WriteString(delta)
		if !send(models.StreamEvent{Type: models.EventContent, Content: delta}) {
			return errStreamClosed
		}
		return nil
	})
	if err != nil {
		return streamed.String(), citations, err
	}
	return turn.Text, citations, nil
}

// persistPartial saves whatever the model produced before the client
// disconnected, on a fresh context
func (s *ChatService) persistPartial(sessionID int, answer string, citations []models.Citation, documentID *int) {
	if strings.TrimSpace(answer) == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if _, err := s.sessions.AppendMessage(ctx, &models.ChatMessage{
		SessionID:           sessionID,
		Role:                models.RoleAssistant,
		Content:             answer,
		Citations:           citations,
		GeneratedDocumentID: documentID,
	}); err != nil {
		s.logger.Printf("failed to persist partial assistant message: %v", err)
	}
}

func mentionsStatutes(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range statuteKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// mapNotFound converts repository not-found errors to the service sentinel
func mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	var notFound *repositories.NotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, notFound.Error())
	}
	return err
}
