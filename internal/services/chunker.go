package services

import (
	"log"
	"strings"
	"sync"

	"github.com/jdkato/prose/v2"
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const (
	// DefaultChunkSize is the token budget per chunk
	DefaultChunkSize = 500
	// DefaultChunkOverlap is the token overlap between consecutive chunks
	DefaultChunkOverlap = 50

	encodingName = "cl100k_base"

	// charsPerToken approximates token length when the encoder is
	// unavailable and chunking falls back to characters
	charsPerToken = 4
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

func getEncoding() (*tiktoken.Tiktoken, error) {
	encodingOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		encoding, encodingErr = tiktoken.GetEncoding(encodingName)
	})
	return encoding, encodingErr
}

// Chunker splits extracted document text into overlapping token windows.
// Chunk boundaries are measured in cl100k_base tokens; when the encoder
// cannot be loaded it degrades to a character window that prefers paragraph
// and sentence breaks.
type Chunker struct {
	chunkSize int
	overlap   int
	logger    *log.Logger
}

// NewChunker creates a chunker. Non-positive sizes fall back to defaults;
// overlap is clamped below chunkSize so every step makes progress.
func NewChunker(chunkSize, overlap int, logger *log.Logger) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 10
	}
	return &Chunker{
		chunkSize: chunkSize,
		overlap:   overlap,
		logger:    logger,
	}
}

// ChunkText splits text into overlapping chunks. Text within the budget comes
// back as a single chunk holding the whole input. Empty or whitespace-only
// input yields no chunks.
func (c *Chunker) ChunkText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	enc, err := getEncoding()
	if err != nil {
		c.logger.Printf("token encoder unavailable, falling back to character chunking: %v", err)
		return c.chunkByCharacters(text)
	}

	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= c.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(tokens) {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, enc.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
		start = end - c.overlap
	}
	return chunks
}

// chunkBreaks are candidate break strings, strongest first
var chunkBreaks = []string{"\n\n", "\n", ". ", "! ", "? "}

// chunkByCharacters is the degraded path used when no token encoder is
// available. Windows span charsPerToken times the token budget; each window
// is cut at the last paragraph or sentence break in its trailing half, with a
// hard cut only when no such break exists.
func (c *Chunker) chunkByCharacters(text string) []string {
	budget := c.chunkSize * charsPerToken
	overlap := c.overlap * charsPerToken

	if len(text) <= budget {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + budget
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}

		window := text[start:end]
		cut := findBreak(window)
		if cut > 0 {
			end = start + cut
		}

		chunks = append(chunks, text[start:end])
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

// findBreak returns the cut position after the last acceptable break in the
// window, or 0 when the window should be cut hard at its edge. Breaks in the
// leading half are rejected so chunks cannot collapse.
func findBreak(window string) int {
	half := len(window) / 2
	for _, sep := range chunkBreaks {
		if idx := strings.LastIndex(window, sep); idx >= half {
			return idx + len(sep)
		}
	}
	return sentenceBreak(window, half)
}

// sentenceBreak asks the sentence segmenter for a boundary in the trailing
// half of the window, for text whose sentences end without trailing spaces
func sentenceBreak(window string, half int) int {
	doc, err := prose.NewDocument(window,
		prose.WithTagging(false),
		prose.WithExtraction(false))
	if err != nil {
		return 0
	}

	best := 0
	offset := 0
	for _, sent := range doc.Sentences() {
		idx := strings.Index(window[offset:], sent.Text)
		if idx < 0 {
			continue
		}
		end := offset + idx + len(sent.Text)
		offset = end
		if end >= half && end < len(window) {
			best = end
		}
	}
	return best
}

// CountTokens reports the token length of text, approximating by characters
// when the encoder is unavailable
func (c *Chunker) CountTokens(text string) int {
	enc, err := getEncoding()
	if err != nil {
		return len(text) / charsPerToken
	}
	return len(enc.Encode(text, nil, nil))
}
