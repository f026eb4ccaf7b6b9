package services

import (
	"fmt"
	"strings"

	"boardroom/internal/models"
)

// DirectSystemPrompt instructs the model for retrieval-augmented answers
// where excerpts arrive inline with the question
const DirectSystemPrompt = `You are a knowledgeable assistant for nonprofit board governance. Answer questions using the document excerpts provided under "# Relevant Documents". Cite the bracketed document numbers you relied on. If the excerpts do not contain the answer, say so plainly instead of guessing. Keep answers concise and practical for board members.`

// AgentSystemPrompt instructs the model when tools are available
const AgentSystemPrompt = `You are a knowledgeable assistant for nonprofit board governance. You can search the organization's uploaded documents, search Kentucky statutes on the web, and generate governance documents from templates. Use the tools when they would improve your answer; answer directly when they would not. Cite your sources. Keep answers concise and practical for board members.`

// PromptBuilder assembles the augmented prompt sent to the generation client.
// Retrieved excerpts are prepended as a numbered, labeled block and the user's
// question is preserved verbatim underneath.
type PromptBuilder struct{}

// NewPromptBuilder creates a prompt builder
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildAugmentedMessage renders retrieved chunks and optional web results
// above the literal user question. With nothing retrieved the question comes
// back unchanged.
func (p *PromptBuilder) BuildAugmentedMessage(chunks []*models.RetrievedChunk, webResults []models.WebSearchResult, userMessage string) string {
	if len(chunks) == 0 && len(webResults) == 0 {
		return userMessage
	}

	var b strings.Builder

	if len(chunks) > 0 {
		b.WriteString("# Relevant Documents\n\n")
		for i, chunk := range chunks {
			b.WriteString(fmt.Sprintf("[Document %d] %s", i+1, chunk.DocumentTitle))
			if chunk.PageNumber != nil {
				b.WriteString(fmt.Sprintf(" (Page %d)", *chunk.PageNumber))
			}
			b.WriteString("\n")
			b.WriteString(chunk.Content)
			b.WriteString("\n\n")
		}
	}

	if len(webResults) > 0 {
		b.WriteString("# Web Search Results\n\n")
		for i, result := range webResults {
			b.WriteString(fmt.Sprintf("[Result %d] %s\n%s\n", i+1, result.Title, result.URL))
			if result.Snippet != "" {
				b.WriteString(result.Snippet)
				b.WriteString("\n")
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("# User Question\n")
	b.WriteString(userMessage)
	return b.String()
}

// CitationsFor derives the citation list parallel to the retrieved chunks
func (p *PromptBuilder) CitationsFor(chunks []*models.RetrievedChunk) []models.Citation {
	citations := make([]models.Citation, 0, len(chunks))
	for _, chunk := range chunks {
		citations = append(citations, chunk.ToCitation())
	}
	return citations
}

// BuildHistory converts stored session messages into generation turns,
// replacing the final user message with its augmented form. History messages
// carry their stored content untouched.
func (p *PromptBuilder) BuildHistory(history []*models.ChatMessage, augmentedMessage string) []GenerationMessage {
	messages := make([]GenerationMessage, 0, len(history)+1)
	for _, msg := range history {
		messages = append(messages, GenerationMessage{
			Role:    msg.Role,
			Content: []ContentBlock{TextBlock(msg.Content)},
		})
	}
	messages = append(messages, GenerationMessage{
		Role:    models.RoleUser,
		Content: []ContentBlock{TextBlock(augmentedMessage)},
	})
	return messages
}
