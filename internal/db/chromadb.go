package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ChromaClient is a minimal HTTP client for the ChromaDB v2 API covering the
// operations the vector index needs: collection lifecycle, upsert, query and
// delete. Collection ids are resolved by name once and cached.
type ChromaClient struct {
	baseURL    string
	httpClient *http.Client
	config     ChromaConfig

	mu            sync.RWMutex
	collectionIDs map[string]string
}

// ChromaConfig holds configuration for ChromaDB connection
type ChromaConfig struct {
	Host     string
	Port     int
	Tenant   string
	Database string
	Timeout  time.Duration
}

// DefaultChromaConfig returns a ChromaDB configuration with sensible defaults
func DefaultChromaConfig() ChromaConfig {
	return ChromaConfig{
		Host:     "localhost",
		Port:     8000,
		Tenant:   "default_tenant",
		Database: "default_database",
		Timeout:  30 * time.Second,
	}
}

// NewChromaClient creates a new ChromaDB v2 client
func NewChromaClient(config ChromaConfig) *ChromaClient {
	if config.Tenant == "" {
		config.Tenant = "default_tenant"
	}
	if config.Database == "" {
		config.Database = "default_database"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	baseURL := fmt.Sprintf("http://%s:%d/api/v2/tenants/%s/databases/%s",
		config.Host, config.Port, config.Tenant, config.Database)

	return &ChromaClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config:        config,
		collectionIDs: make(map[string]string),
	}
}

// Collection represents a ChromaDB collection
type Collection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// QueryResult holds the parallel arrays returned by a query, one inner slice
// per query embedding
type QueryResult struct {
	IDs        [][]string                 `json:"ids"`
	Documents  [][]string                 `json:"documents"`
	Metadatas  [][]map[string]interface{} `json:"metadatas"`
	Embeddings [][][]float32              `json:"embeddings"`
	Distances  [][]float32                `json:"distances"`
}

// GetResult holds the parallel arrays returned by a get
type GetResult struct {
	IDs        []string                 `json:"ids"`
	Documents  []string                 `json:"documents"`
	Metadatas  []map[string]interface{} `json:"metadatas"`
	Embeddings [][]float32              `json:"embeddings"`
}

// Heartbeat checks if ChromaDB is alive
func (c *ChromaClient) Heartbeat(ctx context.Context) error {
	url := fmt.Sprintf("http://%s:%d/api/v2/heartbeat", c.config.Host, c.config.Port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create heartbeat request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("heartbeat returned status %d", resp.StatusCode)
	}
	return nil
}

// EnsureCollection returns the id of the named collection, creating it with
// cosine distance if it does not exist yet
func (c *ChromaClient) EnsureCollection(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	if id, ok := c.collectionIDs[name]; ok {
		c.mu.RUnlock()
		return id, nil
	}
	c.mu.RUnlock()

	payload := map[string]interface{}{
		"name":          name,
		"metadata":      map[string]interface{}{"hnsw:space": "cosine"},
		"get_or_create": true,
	}

	var collection Collection
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/collections", payload, &collection); err != nil {
		return "", fmt.Errorf("failed to ensure collection %s: %w", name, err)
	}

	c.mu.Lock()
	c.collectionIDs[name] = collection.ID
	c.mu.Unlock()

	return collection.ID, nil
}

// DeleteCollection removes a collection by name
func (c *ChromaClient) DeleteCollection(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)
	if err := c.doJSON(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return fmt.Errorf("failed to delete collection %s: %w", name, err)
	}

	c.mu.Lock()
	delete(c.collectionIDs, name)
	c.mu.Unlock()
	return nil
}

// Count returns the number of records in a collection
func (c *ChromaClient) Count(ctx context.Context, collectionID string) (int, error) {
	url := fmt.Sprintf("%s/collections/%s/count", c.baseURL, collectionID)

	var count int
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &count); err != nil {
		return 0, fmt.Errorf("failed to count collection: %w", err)
	}
	return count, nil
}

// Upsert adds or replaces records in a collection. All slices must have the
// same length.
func (c *ChromaClient) Upsert(ctx context.Context, collectionID string, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	if len(ids) == 0 {
		return nil
	}

	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"embeddings": embeddings,
		"metadatas":  metadatas,
	}

	url := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, collectionID)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, nil); err != nil {
		return fmt.Errorf("failed to upsert %d records: %w", len(ids), err)
	}
	return nil
}

// Query runs a nearest-neighbor query for a single embedding and returns up to
// nResults candidates with documents, metadata, embeddings and distances
func (c *ChromaClient) Query(ctx context.Context, collectionID string, embedding []float32, nResults int, where map[string]interface{}) (*QueryResult, error) {
	payload := map[string]interface{}{
		"query_embeddings": [][]float32{embedding},
		"n_results":        nResults,
		"include":          []string{"documents", "metadatas", "embeddings", "distances"},
	}
	if len(where) > 0 {
		payload["where"] = where
	}

	var result QueryResult
	url := fmt.Sprintf("%s/collections/%s/query", c.baseURL, collectionID)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &result); err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}
	return &result, nil
}

// Get fetches records by id or filter
func (c *ChromaClient) Get(ctx context.Context, collectionID string, ids []string, where map[string]interface{}, limit int) (*GetResult, error) {
	payload := map[string]interface{}{
		"include": []string{"documents", "metadatas"},
	}
	if len(ids) > 0 {
		payload["ids"] = ids
	}
	if len(where) > 0 {
		payload["where"] = where
	}
	if limit > 0 {
		payload["limit"] = limit
	}

	var result GetResult
	url := fmt.Sprintf("%s/collections/%s/get", c.baseURL, collectionID)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &result); err != nil {
		return nil, fmt.Errorf("failed to get records: %w", err)
	}
	return &result, nil
}

// Delete removes records by id or filter
func (c *ChromaClient) Delete(ctx context.Context, collectionID string, ids []string, where map[string]interface{}) error {
	payload := map[string]interface{}{}
	if len(ids) > 0 {
		payload["ids"] = ids
	}
	if len(where) > 0 {
		payload["where"] = where
	}

	url := fmt.Sprintf("%s/collections/%s/delete", c.baseURL, collectionID)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, nil); err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// doJSON performs an HTTP request with an optional JSON body and decodes the
// JSON response into out when out is non-nil
func (c *ChromaClient) doJSON(ctx context.Context, method, url string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
