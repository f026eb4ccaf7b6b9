package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"

	"boardroom/internal/models"
	"boardroom/internal/repositories"
)

// Tool names offered to the model
const (
	ToolSearchDocuments  = "search_documents"
	ToolSearchStatutes   = "search_kentucky_statutes"
	ToolGenerateDocument = "generate_document"
)

// AgentSearchMinScore is the similarity floor for tool-driven retrieval.
// Lower than the direct-mode floor: the model judges relevance itself, so
// marginal matches are worth surfacing.
const AgentSearchMinScore = 0.3

// DefaultRetrievalLimit caps chunks returned by a document search
const DefaultRetrievalLimit = 5

// Citation side-channel markers used by providers that can only return text
const (
	CitationsStartMarker = "__CITATIONS_START__"
	CitationsEndMarker   = "__CITATIONS_END__"
)

var documentIDPattern = regexp.MustCompile(`Document ID:\s*(\d+)`)

// ToolResult is the structured envelope a tool handler returns. Text goes
// back to the model; Citations and DocumentID flow to the orchestrator
// without round-tripping through model text.
type ToolResult struct {
	Text       string
	Citations  []models.Citation
	DocumentID *int
	IsError    bool
}

func errorResult(format string, args ...interface{}) ToolResult {
	return ToolResult{Text: fmt.Sprintf(format, args...), IsError: true}
}

// ToolHandler executes one tool call on behalf of a user
type ToolHandler func(ctx context.Context, userID int, input json.RawMessage) ToolResult

// Tool pairs a model-facing definition with its handler
type Tool struct {
	Definition ToolDefinition
	Handler    ToolHandler
}

// ToolRegistry dispatches tool calls by name
type ToolRegistry struct {
	tools  map[string]Tool
	order  []string
	logger *log.Logger
}

// NewToolRegistry creates an empty registry
func NewToolRegistry(logger *log.Logger) *ToolRegistry {
	return &ToolRegistry{
		tools:  make(map[string]Tool),
		logger: logger,
	}
}

// Register adds a tool, replacing any previous tool of the same name
func (r *ToolRegistry) Register(tool Tool) {
	name := tool.Definition.Name
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = tool
}

// Definitions returns the tool definitions in registration order
func (r *ToolRegistry) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

// Execute runs the named tool. Failures come back as erroneous results for
// the model to react to, never as Go errors.
func (r *ToolRegistry) Execute(ctx context.Context, userID int, call ToolUse) ToolResult {
	tool, ok := r.tools[call.Name]
	if !ok {
		r.logger.Printf("model requested unknown tool %q", call.Name)
		return errorResult("unknown tool: %s", call.Name)
	}
	return tool.Handler(ctx, userID, call.Input)
}

// NewSearchDocumentsTool builds the tool that searches the user's uploaded
// documents
func NewSearchDocumentsTool(embedder Embedder, index repositories.VectorIndex, logger *log.Logger) Tool {
	return Tool{
		Definition: ToolDefinition{
			Name:        ToolSearchDocuments,
			Description: "Search the organization's uploaded governance documents (bylaws, minutes, policies, budgets) for passages relevant to a query.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "What to look for in the documents",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of passages to return",
					},
				},
				"required": []string{"query"},
			},
		},
		Handler: func(ctx context.Context, userID int, input json.RawMessage) ToolResult {
			var args struct {
				Query string `json:"query"`
				Limit int    `json:"limit"`
			}
			if err := json.Unmarshal(input, &args); err != nil || strings.TrimSpace(args.Query) == "" {
				return errorResult("search_documents requires a query")
			}
			if args.Limit <= 0 {
				args.Limit = DefaultRetrievalLimit
			}

			vector, err := embedder.EmbedQuery(ctx, args.Query)
			if err != nil {
				logger.Printf("tool query embedding failed: %v", err)
				return errorResult("document search is temporarily unavailable")
			}

			chunks, err := index.Search(ctx, vector, repositories.SearchOptions{
				OwnerID:  userID,
				Limit:    args.Limit,
				MinScore: AgentSearchMinScore,
			})
			if err != nil {
				logger.Printf("tool document search failed: %v", err)
				return errorResult("document search failed")
			}
			if len(chunks) == 0 {
				return ToolResult{Text: "No relevant passages found in the uploaded documents."}
			}

			var b strings.Builder
			citations := make([]models.Citation, 0, len(chunks))
			for i, chunk := range chunks {
				b.WriteString(fmt.Sprintf("[Document %d] %s", i+1, chunk.DocumentTitle))
				if chunk.PageNumber != nil {
					b.WriteString(fmt.Sprintf(" (Page %d)", *chunk.PageNumber))
				}
				b.WriteString("\n")
				b.WriteString(chunk.Content)
				b.WriteString("\n\n")
				citations = append(citations, chunk.ToCitation())
			}
			return ToolResult{Text: strings.TrimSpace(b.String()), Citations: citations}
		},
	}
}

// NewSearchStatutesTool builds the tool that searches Kentucky statutes on
// the web
func NewSearchStatutesTool(searcher WebSearcher, logger *log.Logger) Tool {
	return Tool{
		Definition: ToolDefinition{
			Name:        ToolSearchStatutes,
			Description: "Search Kentucky Revised Statutes and related legal sources on the web for nonprofit governance law.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "The legal question or statute topic",
					},
				},
				"required": []string{"query"},
			},
		},
		Handler: func(ctx context.Context, userID int, input json.RawMessage) ToolResult {
			var args struct {
				Query string `json:"query"`
			}
			if err := json.Unmarshal(input, &args); err != nil || strings.TrimSpace(args.Query) == "" {
				return errorResult("search_kentucky_statutes requires a query")
			}

			results, err := searcher.SearchStatutes(ctx, args.Query, DefaultWebSearchLimit)
			if err != nil {
				logger.Printf("statute search failed: %v", err)
				return errorResult("statute search failed")
			}
			if len(results) == 0 {
				return ToolResult{Text: "No statute references found for that query."}
			}

			var b strings.Builder
			for i, result := range results {
				b.WriteString(fmt.Sprintf("[Result %d] %s\n%s\n", i+1, result.Title, result.URL))
				if result.Snippet != "" {
					b.WriteString(result.Snippet)
					b.WriteString("\n")
				}
				b.WriteString("\n")
			}
			return ToolResult{Text: strings.TrimSpace(b.String())}
		},
	}
}

// NewGenerateDocumentTool builds the tool that renders governance documents
// from templates
func NewGenerateDocumentTool(generator DocumentGenerator, logger *log.Logger) Tool {
	return Tool{
		Definition: ToolDefinition{
			Name:        ToolGenerateDocument,
			Description: "Generate a governance document from a template. Template types: board_resolution, meeting_minutes, notice, consent_action.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"template_type": map[string]interface{}{
						"type":        "string",
						"enum":        TemplateTypes,
						"description": "Which template to render",
					},
					"title": map[string]interface{}{
						"type":        "string",
						"description": "Document title",
					},
					"fields": map[string]interface{}{
						"type":        "object",
						"description": "Template fields as name/value pairs",
					},
				},
				"required": []string{"template_type", "title"},
			},
		},
		Handler: func(ctx context.Context, userID int, input json.RawMessage) ToolResult {
			var args struct {
				TemplateType string            `json:"template_type"`
				Title        string            `json:"title"`
				Fields       map[string]string `json:"fields"`
			}
			if err := json.Unmarshal(input, &args); err != nil {
				return errorResult("generate_document received malformed input")
			}

			doc, err := generator.Generate(ctx, userID, args.TemplateType, args.Title, args.Fields)
			if err != nil {
				logger.Printf("document generation failed: %v", err)
				return errorResult("document generation failed: %v", err)
			}

			id := doc.ID
			return ToolResult{
				Text:       fmt.Sprintf("Generated %s %q. Document ID: %d", args.TemplateType, args.Title, doc.ID),
				DocumentID: &id,
			}
		},
	}
}

// ExtractDocumentID finds the first "Document ID: <n>" token in text
func ExtractDocumentID(text string) *int {
	match := documentIDPattern.FindStringSubmatch(text)
	if match == nil {
		return nil
	}
	id, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &id
}

// ParseSentinelCitations extracts a citation block delimited by the sentinel
// markers from provider text. Well-formed blocks are stripped and their
// citations returned; anything malformed leaves the text untouched with no
// citations.
func ParseSentinelCitations(text string) (string, []models.Citation) {
	start := strings.Index(text, CitationsStartMarker)
	if start < 0 {
		return text, nil
	}
	rest := text[start+len(CitationsStartMarker):]
	end := strings.Index(rest, CitationsEndMarker)
	if end < 0 {
		return text, nil
	}

	var citations []models.Citation
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &citations); err != nil {
		return text, nil
	}

	cleaned := text[:start] + rest[end+len(CitationsEndMarker):]
	return strings.TrimSpace(cleaned), citations
}

// sentinelScrubber filters a delta stream so sentinel-delimited citation
// payloads never reach the client. Text is withheld only while it could still
// turn out to be a marker; Flush releases an unterminated payload verbatim,
// mirroring how ParseSentinelCitations treats malformed markers.
type sentinelScrubber struct {
	held      string
	inPayload bool
}

// Feed consumes the next delta and returns the text now safe to emit
func (s *sentinelScrubber) Feed(delta string) string {
	s.held += delta
	var out strings.Builder
	for {
		if s.inPayload {
			end := strings.Index(s.held, CitationsEndMarker)
			if end < 0 {
				return out.String()
			}
			s.held = s.held[end+len(CitationsEndMarker):]
			s.inPayload = false
			continue
		}

		if start := strings.Index(s.held, CitationsStartMarker); start >= 0 {
			out.WriteString(s.held[:start])
			s.held = s.held[start+len(CitationsStartMarker):]
			s.inPayload = true
			continue
		}

		hold := partialMarkerSuffix(s.held, CitationsStartMarker)
		out.WriteString(s.held[:len(s.held)-hold])
		s.held = s.held[len(s.held)-hold:]
		return out.String()
	}
}

// Flush releases whatever is still held once the stream ends
func (s *sentinelScrubber) Flush() string {
	out := s.held
	if s.inPayload {
		// no end marker ever arrived: release the text untouched
		out = CitationsStartMarker + out
	}
	s.held = ""
	s.inPayload = false
	return out
}

// partialMarkerSuffix reports the length of the longest suffix of s that is a
// proper prefix of marker
func partialMarkerSuffix(s, marker string) int {
	max := len(marker) - 1
	if max > len(s) {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasSuffix(s, marker[:n]) {
			return n
		}
	}
	return 0
}
