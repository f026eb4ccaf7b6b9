package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"boardroom/internal/models"
)

// DefaultMaxAgentTurns bounds the tool loop so a misbehaving model cannot
// spin forever
const DefaultMaxAgentTurns = 8

// AgentEvents receives output while the loop runs. OnCitations always fires
// before the first OnText of the request, so stream consumers can rely on
// citations preceding content. Citations produced by tools after content has
// started are persisted but not re-announced.
type AgentEvents struct {
	OnCitations func(citations []models.Citation) error
	OnText      func(text string) error
}

// AgentOutcome is the collected result of a finished loop
type AgentOutcome struct {
	Text       string
	Citations  []models.Citation
	DocumentID *int
}

// AgentService drives the tool-use loop: generate, execute requested tools,
// feed results back, repeat until the model stops asking for tools
type AgentService struct {
	generator GenerationClient
	registry  *ToolRegistry
	maxTurns  int
	logger    *log.Logger
}

// NewAgentService creates an agent service over a generation client and tool
// registry
func NewAgentService(generator GenerationClient, registry *ToolRegistry, logger *log.Logger) *AgentService {
	return &AgentService{
		generator: generator,
		registry:  registry,
		maxTurns:  DefaultMaxAgentTurns,
		logger:    logger,
	}
}

// Run executes the loop for a prepared message history. The final user
// message is the literal question; retrieval happens through tools.
func (a *AgentService) Run(ctx context.Context, userID int, messages []GenerationMessage, events AgentEvents) (*AgentOutcome, error) {
	outcome := &AgentOutcome{}

	var fullText strings.Builder
	var pending []models.Citation
	contentStreamed := false

	flushPending := func() error {
		if len(pending) == 0 || events.OnCitations == nil {
			return nil
		}
		if err := events.OnCitations(pending); err != nil {
			return err
		}
		pending = nil
		return nil
	}

	emitText := func(text string) error {
		if text == "" {
			return nil
		}
		if !contentStreamed {
			if err := flushPending(); err != nil {
				return err
			}
			contentStreamed = true
		}
		if events.OnText != nil {
			return events.OnText(text)
		}
		return nil
	}

	for turnNum := 0; turnNum < a.maxTurns; turnNum++ {
		req := GenerationRequest{
			System:   AgentSystemPrompt,
			Messages: messages,
			Tools:    a.registry.Definitions(),
		}

		// deltas pass through the scrubber so citation payloads never reach
		// the stream, even when a marker straddles delta boundaries
		scrubber := &sentinelScrubber{}
		turn, err := a.generator.StreamTurn(ctx, req, func(delta string) error {
			return emitText(scrubber.Feed(delta))
		})
		if err != nil {
			return nil, fmt.Errorf("agent turn %d failed: %w", turnNum+1, err)
		}
		if err := emitText(scrubber.Flush()); err != nil {
			return nil, err
		}

		// providers that cannot carry structured citations may smuggle them
		// through text markers
		cleaned, markerCitations := ParseSentinelCitations(turn.Text)
		if len(markerCitations) > 0 {
			outcome.Citations = append(outcome.Citations, markerCitations...)
		}
		if cleaned != "" {
			if fullText.Len() > 0 {
				fullText.WriteString("\n\n")
			}
			fullText.WriteString(cleaned)
		}

		if turn.StopReason != StopReasonToolUse || len(turn.ToolUses) == 0 {
			break
		}

		// echo the assistant turn, then answer every tool call
		assistantContent := make([]ContentBlock, 0, len(turn.ToolUses)+1)
		if turn.Text != "" {
			assistantContent = append(assistantContent, TextBlock(turn.Text))
		}
		for _, call := range turn.ToolUses {
			assistantContent = append(assistantContent, ContentBlock{
				Type:  "tool_use",
				ID:    call.ID,
				Name:  call.Name,
				Input: call.Input,
			})
		}
		messages = append(messages, GenerationMessage{Role: models.RoleAssistant, Content: assistantContent})

		resultContent := make([]ContentBlock, 0, len(turn.ToolUses))
		for _, call := range turn.ToolUses {
			a.logger.Printf("executing tool %s for user %d", call.Name, userID)
			result := a.registry.Execute(ctx, userID, call)

			if len(result.Citations) > 0 {
				outcome.Citations = append(outcome.Citations, result.Citations...)
				if !contentStreamed {
					pending = append(pending, result.Citations...)
				}
			}
			if result.DocumentID != nil {
				outcome.DocumentID = result.DocumentID
			} else if id := ExtractDocumentID(result.Text); id != nil && !result.IsError {
				outcome.DocumentID = id
			}

			resultContent = append(resultContent, ToolResultBlock(call.ID, result.Text, result.IsError))
		}
		messages = append(messages, GenerationMessage{Role: models.RoleUser, Content: resultContent})
	}

	// a run that produced citations but no text still announces them
	if !contentStreamed {
		if err := flushPending(); err != nil {
			return nil, err
		}
	}

	outcome.Text = fullText.String()
	return outcome, nil
}
