package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boardroom/internal/models"
)

func toolUseTurn(id, name string, input map[string]interface{}) scriptedTurn {
	raw, _ := json.Marshal(input)
	return scriptedTurn{
		result: TurnResult{
			StopReason: StopReasonToolUse,
			ToolUses:   []ToolUse{{ID: id, Name: name, Input: raw}},
		},
	}
}

func TestAgentRunFeedsToolResultsBack(t *testing.T) {
	generator := &fakeGenerator{
		supportsTools: true,
		turns: []scriptedTurn{
			toolUseTurn("tu_1", "echo", map[string]interface{}{"value": "hello"}),
			{deltas: []string{"final answer"}},
		},
	}

	var receivedInput string
	registry := NewToolRegistry(testLogger())
	registry.Register(Tool{
		Definition: ToolDefinition{Name: "echo", Description: "echo", InputSchema: map[string]interface{}{"type": "object"}},
		Handler: func(ctx context.Context, userID int, input json.RawMessage) ToolResult {
			receivedInput = string(input)
			return ToolResult{Text: "echoed"}
		},
	})

	agent := NewAgentService(generator, registry, testLogger())
	outcome, err := agent.Run(context.Background(), 7, []GenerationMessage{
		{Role: models.RoleUser, Content: []ContentBlock{TextBlock("question")}},
	}, AgentEvents{})

	require.NoError(t, err)
	assert.Equal(t, "final answer", outcome.Text)
	assert.JSONEq(t, `{"value":"hello"}`, receivedInput)

	// the second request carries the assistant tool call and our answer
	require.Len(t, generator.requests, 2)
	second := generator.requests[1].Messages
	require.Len(t, second, 3)

	assistant := second[1]
	assert.Equal(t, models.RoleAssistant, assistant.Role)
	require.Len(t, assistant.Content, 1)
	assert.Equal(t, "tool_use", assistant.Content[0].Type)
	assert.Equal(t, "tu_1", assistant.Content[0].ID)

	toolResults := second[2]
	assert.Equal(t, models.RoleUser, toolResults.Role)
	require.Len(t, toolResults.Content, 1)
	assert.Equal(t, "tool_result", toolResults.Content[0].Type)
	assert.Equal(t, "tu_1", toolResults.Content[0].ToolUseID)
	assert.Equal(t, "echoed", toolResults.Content[0].Content)
	assert.False(t, toolResults.Content[0].IsError)
}

func TestAgentRunUnknownToolBecomesErrorResult(t *testing.T) {
	generator := &fakeGenerator{
		supportsTools: true,
		turns: []scriptedTurn{
			toolUseTurn("tu_1", "no_such_tool", map[string]interface{}{}),
			{deltas: []string{"recovered"}},
		},
	}

	agent := NewAgentService(generator, NewToolRegistry(testLogger()), testLogger())
	outcome, err := agent.Run(context.Background(), 7, []GenerationMessage{
		{Role: models.RoleUser, Content: []ContentBlock{TextBlock("question")}},
	}, AgentEvents{})

	require.NoError(t, err)
	assert.Equal(t, "recovered", outcome.Text)

	toolResults := generator.requests[1].Messages[2]
	require.Len(t, toolResults.Content, 1)
	assert.True(t, toolResults.Content[0].IsError)
}

func TestAgentRunCitationsBeforeContent(t *testing.T) {
	generator := &fakeGenerator{
		supportsTools: true,
		turns: []scriptedTurn{
			toolUseTurn("tu_1", "cite", map[string]interface{}{}),
			{deltas: []string{"answer text"}},
		},
	}

	registry := NewToolRegistry(testLogger())
	registry.Register(Tool{
		Definition: ToolDefinition{Name: "cite", Description: "cite", InputSchema: map[string]interface{}{"type": "object"}},
		Handler: func(ctx context.Context, userID int, input json.RawMessage) ToolResult {
			return ToolResult{
				Text:      "found it",
				Citations: []models.Citation{{DocumentID: 1, ChunkReference: 5, RelevanceScore: 0.7}},
			}
		},
	})

	var order []string
	agent := NewAgentService(generator, registry, testLogger())
	outcome, err := agent.Run(context.Background(), 7, []GenerationMessage{
		{Role: models.RoleUser, Content: []ContentBlock{TextBlock("question")}},
	}, AgentEvents{
		OnCitations: func(citations []models.Citation) error {
			for range citations {
				order = append(order, "citation")
			}
			return nil
		},
		OnText: func(string) error {
			order = append(order, "content")
			return nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"citation", "content"}, order)
	require.Len(t, outcome.Citations, 1)
	assert.Equal(t, 5, outcome.Citations[0].ChunkReference)
}

func TestAgentRunCapturesDocumentID(t *testing.T) {
	generator := &fakeGenerator{
		supportsTools: true,
		turns: []scriptedTurn{
			toolUseTurn("tu_1", "make_doc", map[string]interface{}{}),
			{deltas: []string{"Created your resolution."}},
		},
	}

	registry := NewToolRegistry(testLogger())
	registry.Register(Tool{
		Definition: ToolDefinition{Name: "make_doc", Description: "make", InputSchema: map[string]interface{}{"type": "object"}},
		Handler: func(ctx context.Context, userID int, input json.RawMessage) ToolResult {
			id := 42
			return ToolResult{Text: "Generated. Document ID: 42", DocumentID: &id}
		},
	})

	agent := NewAgentService(generator, registry, testLogger())
	outcome, err := agent.Run(context.Background(), 7, []GenerationMessage{
		{Role: models.RoleUser, Content: []ContentBlock{TextBlock("draft a resolution")}},
	}, AgentEvents{})

	require.NoError(t, err)
	require.NotNil(t, outcome.DocumentID)
	assert.Equal(t, 42, *outcome.DocumentID)
}

func TestAgentRunSentinelCitationsInText(t *testing.T) {
	text := "The answer. " + CitationsStartMarker +
		`[{"document_id":3,"document_title":"Policy.pdf","chunk_reference":9,"relevance_score":0.5}]` +
		CitationsEndMarker

	generator := &fakeGenerator{
		supportsTools: true,
		turns: []scriptedTurn{
			{result: TurnResult{Text: text, StopReason: StopReasonEndTurn}},
		},
	}

	agent := NewAgentService(generator, NewToolRegistry(testLogger()), testLogger())
	outcome, err := agent.Run(context.Background(), 7, []GenerationMessage{
		{Role: models.RoleUser, Content: []ContentBlock{TextBlock("question")}},
	}, AgentEvents{})

	require.NoError(t, err)
	assert.Equal(t, "The answer.", outcome.Text)
	require.Len(t, outcome.Citations, 1)
	assert.Equal(t, "Policy.pdf", outcome.Citations[0].DocumentTitle)
}

func TestAgentRunStreamsWithoutSentinelPayload(t *testing.T) {
	// the citation block arrives split across deltas, as real streams do
	generator := &fakeGenerator{
		supportsTools: true,
		turns: []scriptedTurn{
			{deltas: []string{
				"The answer. __CITATIONS_",
				`START__[{"document_id":3,"document_title":"Policy.pdf","chunk_reference":9,"relevance_score":0.5}]__CITATIONS_`,
				"END__",
			}},
		},
	}

	var streamed strings.Builder
	agent := NewAgentService(generator, NewToolRegistry(testLogger()), testLogger())
	outcome, err := agent.Run(context.Background(), 7, []GenerationMessage{
		{Role: models.RoleUser, Content: []ContentBlock{TextBlock("question")}},
	}, AgentEvents{
		OnText: func(text string) error {
			streamed.WriteString(text)
			return nil
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "The answer. ", streamed.String())
	assert.NotContains(t, streamed.String(), CitationsStartMarker)
	assert.Equal(t, "The answer.", outcome.Text)
	require.Len(t, outcome.Citations, 1)
	assert.Equal(t, "Policy.pdf", outcome.Citations[0].DocumentTitle)
}

func TestAgentRunBoundedTurns(t *testing.T) {
	// a model that never stops asking for tools
	turns := make([]scriptedTurn, DefaultMaxAgentTurns+5)
	for i := range turns {
		turns[i] = toolUseTurn("tu", "loop", map[string]interface{}{})
	}
	generator := &fakeGenerator{supportsTools: true, turns: turns}

	registry := NewToolRegistry(testLogger())
	registry.Register(Tool{
		Definition: ToolDefinition{Name: "loop", Description: "loop", InputSchema: map[string]interface{}{"type": "object"}},
		Handler: func(ctx context.Context, userID int, input json.RawMessage) ToolResult {
			return ToolResult{Text: "again"}
		},
	})

	agent := NewAgentService(generator, registry, testLogger())
	_, err := agent.Run(context.Background(), 7, []GenerationMessage{
		{Role: models.RoleUser, Content: []ContentBlock{TextBlock("question")}},
	}, AgentEvents{})

	require.NoError(t, err)
	assert.Len(t, generator.requests, DefaultMaxAgentTurns)
}
