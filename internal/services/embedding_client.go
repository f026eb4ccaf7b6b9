package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	// DefaultEmbeddingDimension is the expected vector width
	DefaultEmbeddingDimension = 1024
	// DefaultEmbeddingBatchSize caps how many texts go in one API call
	DefaultEmbeddingBatchSize = 64
	// DefaultEmbeddingBatchDelay spaces out batch calls so bulk indexing
	// stays under provider rate limits
	DefaultEmbeddingBatchDelay = 100 * time.Millisecond
)

// Embedder turns text into fixed-dimension vectors. Documents and queries use
// distinct embedding modes so the provider can optimize each side of the
// retrieval pair.
type Embedder interface {
	// EmbedQuery embeds a single query string
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds texts in order. Failed batches leave nil slots
	// at their positions instead of failing the whole call.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the vector width this embedder produces
	Dimension() int
}

// EmbeddingConfig holds configuration for the embeddings API client
type EmbeddingConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimension  int
	BatchSize  int
	BatchDelay time.Duration
	Timeout    time.Duration
}

// EmbeddingClient calls an OpenAI-compatible embeddings endpoint that accepts
// an input_type of "document" or "query"
type EmbeddingClient struct {
	config     EmbeddingConfig
	httpClient *http.Client
	logger     *log.Logger
}

// NewEmbeddingClient creates an embedding client with defaults applied
func NewEmbeddingClient(config EmbeddingConfig, logger *log.Logger) *EmbeddingClient {
	if config.Dimension <= 0 {
		config.Dimension = DefaultEmbeddingDimension
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultEmbeddingBatchSize
	}
	if config.BatchDelay <= 0 {
		config.BatchDelay = DefaultEmbeddingBatchDelay
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	return &EmbeddingClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger: logger,
	}
}

// Dimension reports the vector width this embedder produces
func (e *EmbeddingClient) Dimension() int {
	return e.config.Dimension
}

// EmbedQuery embeds a single query string
func (e *EmbeddingClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, "query")
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || vectors[0] == nil {
		return nil, fmt.Errorf("embedding response missing vector")
	}
	return vectors[0], nil
}

// EmbedDocuments embeds texts in order, batch by batch. A failed batch is
// logged and leaves nil slots; the remaining batches still run.
func (e *EmbeddingClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.embed(ctx, texts[start:end], "document")
		if err != nil {
			e.logger.Printf("embedding batch %d-%d failed: %v", start, end, err)
		} else {
			copy(results[start:end], vectors)
		}

		if e.config.BatchDelay > 0 && end < len(texts) {
			select {
			case <-time.After(e.config.BatchDelay):
			case <-ctx.Done():
				return results, ctx.Err()
			}
		}
	}
	return results, nil
}

type embeddingRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *EmbeddingClient) embed(ctx context.Context, texts []string, inputType string) ([][]float32, error) {
	payload, err := json.Marshal(embeddingRequest{
		Input:     texts,
		Model:     e.config.Model,
		InputType: inputType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	url := e.config.BaseURL + "/v1/embeddings"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			continue
		}
		if len(item.Embedding) != e.config.Dimension {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(item.Embedding), e.config.Dimension)
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}
