package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"boardroom/internal/db"
	"boardroom/internal/handlers"
	"boardroom/internal/repositories"
	"boardroom/internal/routes"
	"boardroom/internal/services"
	"boardroom/internal/workers"
)

// Server owns the HTTP listener and the background worker so both can be
// shut down together
type Server struct {
	httpServer *http.Server
	worker     *workers.ProcessWorker
	redis      *db.RedisClient
	logger     *log.Logger
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewServer wires the full application from environment configuration.
// Redis is required; when ChromaDB is unreachable retrieval falls back to
// the in-process index.
func NewServer() (*Server, error) {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisConfig := getRedisConfig()
	logger.Printf("Connecting to Redis: %s:%d (DB: %d)", redisConfig.Host, redisConfig.Port, redisConfig.DB)
	redisClient, err := db.NewRedisClient(redisConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Redis client: %w", err)
	}
	if err := redisClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	logger.Println("Redis connected")

	sessionRepo := repositories.NewRedisSessionRepository(redisClient.GetClient(), logger)
	docRepo := repositories.NewRedisDocumentRepository(redisClient.GetClient(), logger)
	chunkRepo := repositories.NewRedisChunkRepository(redisClient.GetClient(), logger)
	jobRepo := repositories.NewRedisJobRepository(redisClient.GetClient(), logger)

	index := initializeVectorIndex(ctx, logger)

	embedder := services.NewEmbeddingClient(getEmbeddingConfig(), logger)
	generator := services.NewAnthropicClient(getGenerationConfig(), logger)
	searcher := services.NewDuckDuckGoSearcher(logger)
	chunker := services.NewChunker(services.DefaultChunkSize, services.DefaultChunkOverlap, logger)

	storageDir := getenvDefault("STORAGE_DIR", "./storage")
	docGenerator := services.NewMarkdownDocumentGenerator(docRepo, storageDir, logger)

	registry := services.NewToolRegistry(logger)
	registry.Register(services.NewSearchDocumentsTool(embedder, index, logger))
	registry.Register(services.NewSearchStatutesTool(searcher, logger))
	registry.Register(services.NewGenerateDocumentTool(docGenerator, logger))

	agent := services.NewAgentService(generator, registry, logger)
	chatService := services.NewChatService(sessionRepo, embedder, index, generator, agent, searcher, logger)
	documentService := services.NewDocumentService(docRepo, chunkRepo, jobRepo, index, embedder, chunker, storageDir, logger)
	searchService := services.NewSearchService(embedder, index, logger)

	h := &routes.Handlers{
		Health:    healthHandler(redisClient, index),
		Chat:      handlers.NewChatHandler(chatService, logger),
		Documents: handlers.NewDocumentHandler(documentService, logger),
		Search:    handlers.NewSearchHandler(searchService, logger),
	}

	router := mux.NewRouter()
	routes.RegisterRoutes(router, h)

	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	worker := workers.NewProcessWorker(jobRepo, documentService, getPollInterval(), logger)

	addr := ":" + getenvDefault("PORT", "8080")
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: corsMiddleware(router),
		},
		worker: worker,
		redis:  redisClient,
		logger: logger,
	}, nil
}

// Start runs the background worker and blocks serving HTTP
func (s *Server) Start() error {
	s.worker.Start()
	s.logger.Printf("Listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the worker, drains in-flight requests and closes Redis
func (s *Server) Shutdown(ctx context.Context) error {
	s.worker.Stop()
	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.redis.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// initializeVectorIndex prefers ChromaDB and falls back to the in-process
// index when it is unreachable
func initializeVectorIndex(ctx context.Context, logger *log.Logger) repositories.VectorIndex {
	chromaConfig := getChromaConfig()
	chromaClient := db.NewChromaClient(chromaConfig)

	if err := chromaClient.Heartbeat(ctx); err != nil {
		logger.Printf("ChromaDB unreachable at %s:%d (%v), using in-memory vector index", chromaConfig.Host, chromaConfig.Port, err)
		logger.Println("Hint: docker run -d -p 8000:8000 chromadb/chroma")
		return repositories.NewMemoryVectorIndex()
	}

	logger.Printf("ChromaDB connected: %s:%d", chromaConfig.Host, chromaConfig.Port)
	return repositories.NewChromaVectorIndex(chromaClient, os.Getenv("CHROMA_COLLECTION"), logger)
}

// healthHandler reports liveness plus the state of the backing stores
func healthHandler(redisClient *db.RedisClient, index repositories.VectorIndex) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		redisStatus := "ok"
		status := http.StatusOK
		if err := redisClient.Ping(ctx); err != nil {
			redisStatus = err.Error()
			status = http.StatusServiceUnavailable
		}

		indexStatus := "ok"
		if _, err := index.Count(ctx); err != nil {
			indexStatus = err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"status":%q,"redis":%q,"vector_index":%q}`,
			http.StatusText(status), redisStatus, indexStatus)
	}
}

// getRedisConfig reads Redis configuration from environment variables
func getRedisConfig() db.RedisConfig {
	config := db.DefaultRedisConfig()

	if host := os.Getenv("REDIS_HOST"); host != "" {
		config.Host = host
	}
	if port, ok := getenvInt("REDIS_PORT"); ok {
		config.Port = port
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Password = password
	}
	if dbNum, ok := getenvInt("REDIS_DB"); ok {
		config.DB = dbNum
	}
	if poolSize, ok := getenvInt("REDIS_POOL_SIZE"); ok {
		config.PoolSize = poolSize
	}

	return config
}

// getChromaConfig reads ChromaDB configuration from environment variables
func getChromaConfig() db.ChromaConfig {
	config := db.DefaultChromaConfig()

	if host := os.Getenv("CHROMA_HOST"); host != "" {
		config.Host = host
	}
	if port, ok := getenvInt("CHROMA_PORT"); ok {
		config.Port = port
	}
	if tenant := os.Getenv("CHROMA_TENANT"); tenant != "" {
		config.Tenant = tenant
	}
	if database := os.Getenv("CHROMA_DATABASE"); database != "" {
		config.Database = database
	}

	return config
}

// getEmbeddingConfig reads embedding API configuration from environment
// variables
func getEmbeddingConfig() services.EmbeddingConfig {
	config := services.EmbeddingConfig{
		BaseURL: getenvDefault("EMBEDDING_BASE_URL", "https://api.voyageai.com"),
		APIKey:  os.Getenv("EMBEDDING_API_KEY"),
		Model:   getenvDefault("EMBEDDING_MODEL", "voyage-3"),
	}
	if dimension, ok := getenvInt("EMBEDDING_DIMENSION"); ok {
		config.Dimension = dimension
	}
	if batchSize, ok := getenvInt("EMBEDDING_BATCH_SIZE"); ok {
		config.BatchSize = batchSize
	}
	if delayMs, ok := getenvInt("EMBEDDING_BATCH_DELAY_MS"); ok {
		config.BatchDelay = time.Duration(delayMs) * time.Millisecond
	}
	return config
}

// getGenerationConfig reads generation API configuration from environment
// variables
func getGenerationConfig() services.GenerationConfig {
	config := services.GenerationConfig{
		BaseURL:     getenvDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		APIKey:      os.Getenv("ANTHROPIC_API_KEY"),
		Model:       getenvDefault("GENERATION_MODEL", "claude-sonnet-4-20250514"),
		EnableTools: getenvDefault("ENABLE_TOOLS", "true") == "true",
	}
	if maxTokens, ok := getenvInt("GENERATION_MAX_TOKENS"); ok {
		config.MaxTokens = maxTokens
	}
	return config
}

func getPollInterval() time.Duration {
	if seconds, ok := getenvInt("WORKER_POLL_SECONDS"); ok && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return workers.DefaultPollInterval
}

func getenvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}
