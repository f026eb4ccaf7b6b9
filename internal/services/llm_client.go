package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Stop reasons reported by the generation API
const (
	StopReasonEndTurn = "end_turn"
	StopReasonToolUse = "tool_use"
)

// ContentBlock is one block of a generation message. Text, tool_use and
// tool_result blocks share the struct; unused fields stay empty.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// TextBlock builds a text content block
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// ToolResultBlock builds a tool_result content block answering a tool call
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{
		Type:      "tool_result",
		ToolUseID: toolUseID,
		Content:   content,
		IsError:   isError,
	}
}

// GenerationMessage is one turn of the model conversation
type GenerationMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ToolDefinition describes a tool offered to the model
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ToolUse is one tool call requested by the model
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// GenerationRequest is one generation turn
type GenerationRequest struct {
	System   string
	Messages []GenerationMessage
	Tools    []ToolDefinition
}

// TurnResult is the collected outcome of one streamed turn
type TurnResult struct {
	Text       string
	ToolUses   []ToolUse
	StopReason string
}

// GenerationClient produces model responses. Implementations stream text
// deltas through the emit callback while collecting the full turn; a non-nil
// error from emit aborts the stream.
type GenerationClient interface {
	// StreamTurn runs one generation turn, emitting text deltas as they
	// arrive and returning the collected result
	StreamTurn(ctx context.Context, req GenerationRequest, emit func(text string) error) (*TurnResult, error)

	// SupportsTools reports whether tool definitions may be passed
	SupportsTools() bool
}

// GenerationConfig holds configuration for the generation API client
type GenerationConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	EnableTools bool
	Timeout     time.Duration
}

// AnthropicClient talks to an Anthropic-compatible messages API over SSE
type AnthropicClient struct {
	config     GenerationConfig
	httpClient *http.Client
	logger     *log.Logger
}

// NewAnthropicClient creates a generation client with defaults applied
func NewAnthropicClient(config GenerationConfig, logger *log.Logger) *AnthropicClient {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	return &AnthropicClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// SupportsTools reports whether tool definitions may be passed
func (c *AnthropicClient) SupportsTools() bool {
	return c.config.EnableTools
}

type messagesRequest struct {
	Model     string              `json:"model"`
	MaxTokens int                 `json:"max_tokens"`
	System    string              `json:"system,omitempty"`
	Messages  []GenerationMessage `json:"messages"`
	Tools     []ToolDefinition    `json:"tools,omitempty"`
	Stream    bool                `json:"stream"`
}

// streamEvent is the subset of SSE payload fields the parser needs
type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`

	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// StreamTurn runs one generation turn over the streaming messages API
func (c *AnthropicClient) StreamTurn(ctx context.Context, req GenerationRequest, emit func(text string) error) (*TurnResult, error) {
	body := messagesRequest{
		Model:     c.config.Model,
		MaxTokens: c.config.MaxTokens,
		System:    req.System,
		Messages:  req.Messages,
		Stream:    true,
	}
	if c.config.EnableTools {
		body.Tools = req.Tools
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/messages", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	if c.config.APIKey != "" {
		httpReq.Header.Set("x-api-key", c.config.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("generation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("generation API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return c.parseStream(resp.Body, emit)
}

// parseStream consumes the SSE body, forwarding text deltas and collecting
// tool calls until the message stops
func (c *AnthropicClient) parseStream(body io.Reader, emit func(text string) error) (*TurnResult, error) {
	result := &TurnResult{}
	var text strings.Builder

	// tool input json arrives as deltas keyed by block index
	type pendingTool struct {
		id    string
		name  string
		input strings.Builder
	}
	pending := make(map[int]*pendingTool)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			c.logger.Printf("skipping malformed stream event: %v", err)
			continue
		}

		switch event.Type {
		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				pending[event.Index] = &pendingTool{
					id:   event.ContentBlock.ID,
					name: event.ContentBlock.Name,
				}
			}

		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				text.WriteString(event.Delta.Text)
				if emit != nil && event.Delta.Text != "" {
					if err := emit(event.Delta.Text); err != nil {
						return nil, err
					}
				}
			case "input_json_delta":
				if tool, ok := pending[event.Index]; ok {
					tool.input.WriteString(event.Delta.PartialJSON)
				}
			}

		case "content_block_stop":
			if tool, ok := pending[event.Index]; ok {
				input := tool.input.String()
				if input == "" {
					input = "{}"
				}
				result.ToolUses = append(result.ToolUses, ToolUse{
					ID:    tool.id,
					Name:  tool.name,
					Input: json.RawMessage(input),
				})
				delete(pending, event.Index)
			}

		case "message_delta":
			if event.Delta.StopReason != "" {
				result.StopReason = event.Delta.StopReason
			}

		case "error":
			return nil, fmt.Errorf("generation stream error: %s", event.Error.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("generation stream read failed: %w", err)
	}

	result.Text = text.String()
	if result.StopReason == "" {
		result.StopReason = StopReasonEndTurn
	}
	return result, nil
}
