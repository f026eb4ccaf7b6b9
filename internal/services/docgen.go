package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"boardroom/internal/models"
	"boardroom/internal/repositories"
)

// Governance document template types
const (
	TemplateBoardResolution = "board_resolution"
	TemplateMeetingMinutes  = "meeting_minutes"
	TemplateNotice          = "notice"
	TemplateConsentAction   = "consent_action"
)

// TemplateTypes lists every accepted template type
var TemplateTypes = []string{
	TemplateBoardResolution,
	TemplateMeetingMinutes,
	TemplateNotice,
	TemplateConsentAction,
}

var templateHeadings = map[string]string{
	TemplateBoardResolution: "Board Resolution",
	TemplateMeetingMinutes:  "Meeting Minutes",
	TemplateNotice:          "Notice",
	TemplateConsentAction:   "Action by Unanimous Written Consent",
}

// IsValidTemplateType reports whether templateType is one of the known
// governance templates
func IsValidTemplateType(templateType string) bool {
	_, ok := templateHeadings[templateType]
	return ok
}

// DocumentGenerator produces governance documents from templates and
// registers them as documents owned by the acting user
type DocumentGenerator interface {
	Generate(ctx context.Context, userID int, templateType, title string, fields map[string]string) (*models.Document, error)
}

// MarkdownDocumentGenerator renders templates to markdown files under a
// storage directory
type MarkdownDocumentGenerator struct {
	documents  repositories.DocumentRepository
	storageDir string
	logger     *log.Logger
}

// NewMarkdownDocumentGenerator creates a markdown-backed document generator
func NewMarkdownDocumentGenerator(documents repositories.DocumentRepository, storageDir string, logger *log.Logger) *MarkdownDocumentGenerator {
	return &MarkdownDocumentGenerator{
		documents:  documents,
		storageDir: storageDir,
		logger:     logger,
	}
}

// Generate validates the template type, renders the document and stores it
func (g *MarkdownDocumentGenerator) Generate(ctx context.Context, userID int, templateType, title string, fields map[string]string) (*models.Document, error) {
	heading, ok := templateHeadings[templateType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown template type %q (expected one of %s)",
			ErrValidation, templateType, strings.Join(TemplateTypes, ", "))
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	content := renderTemplate(heading, title, fields)

	if err := os.MkdirAll(g.storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	filename := uuid.New().String() + ".md"
	path := filepath.Join(g.storageDir, filename)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write generated document: %w", err)
	}

	doc := &models.Document{
		Filename:         filename,
		OriginalFilename: title + ".md",
		FilePath:         path,
		FileType:         ".md",
		FileSize:         int64(len(content)),
		MimeType:         "text/markdown",
		OwnerID:          userID,
		Status:           models.DocumentStatusUploaded,
	}

	created, err := g.documents.CreateDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("failed to register generated document: %w", err)
	}

	g.logger.Printf("generated %s document %d (%s) for user %d", templateType, created.ID, title, userID)
	return created, nil
}

// renderTemplate builds the markdown body. Fields render as a definition
// list in stable key order so regenerating with the same input gives the
// same bytes.
func renderTemplate(heading, title string, fields map[string]string) string {
	var b strings.Builder
	b.WriteString("# " + heading + "\n\n")
	b.WriteString("## " + title + "\n\n")
	b.WriteString("Date: " + time.Now().UTC().Format("January 2, 2006") + "\n\n")

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		b.WriteString("**" + fieldLabel(key) + "**\n\n")
		b.WriteString(fields[key] + "\n\n")
	}

	b.WriteString("---\n\nPrepared for review and approval by the Board of Directors.\n")
	return b.String()
}

// fieldLabel turns a snake_case field name into a heading
func fieldLabel(key string) string {
	words := strings.Split(key, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
