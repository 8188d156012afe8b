// Package main runs the legal assistant server: JSON API, MCP over
// HTTP, or MCP over stdio.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BestBeo/ChatbotLaw/internal/chunker"
	"github.com/BestBeo/ChatbotLaw/internal/classify"
	"github.com/BestBeo/ChatbotLaw/internal/corpus"
	"github.com/BestBeo/ChatbotLaw/internal/embedding"
	"github.com/BestBeo/ChatbotLaw/internal/generate"
	mcpserver "github.com/BestBeo/ChatbotLaw/internal/mcp"
	"github.com/BestBeo/ChatbotLaw/internal/pipeline"
	"github.com/BestBeo/ChatbotLaw/internal/prompt"
	"github.com/BestBeo/ChatbotLaw/internal/retriever"
	"github.com/BestBeo/ChatbotLaw/internal/server"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(ctx, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Embedding client is needed for both retrieval and classification.
	client, err := embedding.NewClient()
	if err != nil {
		return err
	}
	embedder := embedding.NewOpenAI(client, 0)

	store, err := openStore(embedder)
	if err != nil {
		return err
	}
	defer store.Close()

	generator, err := generate.NewGemini(ctx, getEnv("GEMINI_MODEL", ""))
	if err != nil {
		return err
	}

	ch, err := chunker.New(chunker.Config{})
	if err != nil {
		return err
	}

	topK := getEnvInt("TOP_K", vectorstore.DefaultTopK)
	minScore := getEnvFloat("MIN_SCORE", 0)
	ret := retriever.New(embedder, store, topK, minScore)

	pipe := pipeline.New(pipeline.Config{
		Chunker:    ch,
		Embedder:   embedder,
		Store:      store,
		Retriever:  ret,
		Composer:   prompt.NewComposer(0),
		Generator:  generator,
		Classifier: classify.NewOpenAI(client),
		Logger:     logger,
	})

	if err := loadOrBuild(ctx, pipe, store, logger); err != nil {
		return err
	}

	mcpSrv := mcpserver.NewServer(&mcpserver.Config{
		Pipeline:  pipe,
		Retriever: ret,
		Store:     store,
	})

	mux := http.NewServeMux()
	api := server.New(pipe, store, logger)
	api.Routes(mux)
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(mcpSrv, nil))

	addr := "0.0.0.0:" + getEnv("PORT", "8080")
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if getEnv("SERVER_MODE", "http") == "stdio" {
		// Stdio mode for local MCP clients, with the HTTP API still
		// available in the background.
		go func() {
			logger.Info("starting background HTTP server", "addr", addr)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server", "error", err)
			}
		}()
		logger.Info("starting MCP server (stdio)")
		err := mcpSrv.Run(ctx)
		shutdown(httpSrv, logger)
		return err
	}

	go func() {
		<-ctx.Done()
		shutdown(httpSrv, logger)
	}()

	logger.Info("starting HTTP server", "addr", addr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// openStore selects Qdrant when QDRANT_HOST is set, otherwise the local
// on-disk index.
func openStore(embedder *embedding.OpenAI) (vectorstore.Store, error) {
	if host := os.Getenv("QDRANT_HOST"); host != "" {
		return vectorstore.NewQdrant(host, getEnvInt("QDRANT_PORT", 6334),
			embedder.Model(), embedder.Dimension())
	}
	path := getEnv("INDEX_PATH", "data/index.json")
	return vectorstore.OpenLocal(path, embedder.Model(), embedder.Dimension())
}

// loadOrBuild indexes the corpus directory on first start, when the
// store is empty and CORPUS_DIR is configured.
func loadOrBuild(ctx context.Context, pipe *pipeline.Pipeline, store vectorstore.Store, logger *slog.Logger) error {
	count, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info("index loaded", "segments", count)
		return nil
	}

	dir := os.Getenv("CORPUS_DIR")
	if dir == "" {
		logger.Warn("index is empty and CORPUS_DIR is not set, serving without context")
		return nil
	}

	logger.Info("index empty, building from corpus", "dir", dir)
	docs, err := corpus.NewDirSource(dir).Load(ctx)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	result, err := pipe.Rebuild(ctx, docs)
	if err != nil {
		return err
	}
	logger.Info("initial index built",
		"documents", result.IndexedDocs, "segments", result.TotalSegments)
	return nil
}

func shutdown(srv *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
