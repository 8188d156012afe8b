// Package main provides the lawsync CLI for managing the legal corpus index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/BestBeo/ChatbotLaw/internal/chunker"
	"github.com/BestBeo/ChatbotLaw/internal/classify"
	"github.com/BestBeo/ChatbotLaw/internal/corpus"
	"github.com/BestBeo/ChatbotLaw/internal/embedding"
	"github.com/BestBeo/ChatbotLaw/internal/generate"
	"github.com/BestBeo/ChatbotLaw/internal/pipeline"
	"github.com/BestBeo/ChatbotLaw/internal/prompt"
	"github.com/BestBeo/ChatbotLaw/internal/retriever"
	"github.com/BestBeo/ChatbotLaw/internal/vectorstore"
)

var rootCmd = &cobra.Command{
	Use:   "lawsync",
	Short: "Legal corpus indexing tool",
	Long:  "CLI tool for managing the legal document index used by the law assistant",
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Re-index the whole legal corpus",
	Long: `Clears the existing index and rebuilds it from the corpus source.

The corpus comes from CORPUS_DIR, or from GITHUB_REPO (owner/repo) with
an optional GITHUB_PATH subdirectory.

Environment variables:
  CORPUS_DIR     Local corpus directory
  GITHUB_REPO    GitHub corpus repository as owner/repo (used when CORPUS_DIR is unset)
  GITHUB_PATH    Path inside the repository (default: corpus)
  GITHUB_TOKEN   GitHub token for higher rate limits (optional)
  INDEX_PATH     Local index file (default: data/index.json)
  QDRANT_HOST    Qdrant hostname; set to use Qdrant instead of the local index
  QDRANT_PORT    Qdrant gRPC port (default: 6334)
  OPENAI_API_KEY OpenAI API key for embeddings (required)`,
	RunE: runSync,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-index changed documents in place",
	Long:  "Loads the corpus source and replaces each document's segments without clearing the rest of the index.",
	RunE:  runRefresh,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index contents",
	RunE:  runStatus,
}

var (
	askCategory string
	askTopK     int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a legal question against the index",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askCategory, "category", "", "restrict retrieval to one legal category")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "number of segments to retrieve")
	rootCmd.AddCommand(syncCmd, refreshCmd, statusCmd, askCmd)
}

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	fmt.Println("Starting sync...")

	pipe, store, err := buildIndexer()
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := loadCorpus(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Loaded %d documents\n", len(docs))

	result, err := pipe.Rebuild(ctx, docs)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	printIndexResult("Sync", result, start)
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	start := time.Now()

	pipe, store, err := buildIndexer()
	if err != nil {
		return err
	}
	defer store.Close()

	docs, err := loadCorpus(ctx)
	if err != nil {
		return err
	}

	result, err := pipe.Refresh(ctx, docs)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	printIndexResult("Refresh", result, start)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Health(ctx); err != nil {
		return fmt.Errorf("store unhealthy: %w", err)
	}

	infos, err := store.Documents(ctx)
	if err != nil {
		return err
	}
	count, err := store.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%d documents, %d segments\n\n", len(infos), count)
	for _, info := range infos {
		fmt.Printf("  %-10s %-40s %3d segments\n", info.Category, info.Source, info.Segments)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	client, err := embedding.NewClient()
	if err != nil {
		return err
	}
	embedder := embedding.NewOpenAI(client, 0)

	store, err := openStore()
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

	pipe := pipeline.New(pipeline.Config{
		Chunker:    ch,
		Embedder:   embedder,
		Store:      store,
		Retriever:  retriever.New(embedder, store, askTopK, 0),
		Composer:   prompt.NewComposer(0),
		Generator:  generator,
		Classifier: classify.NewOpenAI(client),
		Logger:     slog.Default(),
	})

	ans, err := pipe.Answer(ctx, question, askCategory)
	if err != nil {
		return err
	}

	if ans.Classification != "" {
		fmt.Printf("Category: %s\n", ans.Classification)
	}
	fmt.Println()
	fmt.Println(ans.Answer)
	if len(ans.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for i, s := range ans.Sources {
			fmt.Printf("  [%d] %s (%s) score=%.2f\n", i+1, s.Meta.Title, s.Meta.Source, s.Score)
		}
	}
	return nil
}

// buildIndexer wires the components needed for sync and refresh. The
// generator and classifier are not needed for indexing.
func buildIndexer() (*pipeline.Pipeline, vectorstore.Store, error) {
	client, err := embedding.NewClient()
	if err != nil {
		return nil, nil, err
	}
	embedder := embedding.NewOpenAI(client, 0)

	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	ch, err := chunker.New(chunker.Config{})
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	pipe := pipeline.New(pipeline.Config{
		Chunker:  ch,
		Embedder: embedder,
		Store:    store,
		Logger:   slog.Default(),
	})
	return pipe, store, nil
}

func openStore() (vectorstore.Store, error) {
	model := embedding.DefaultModel
	dimension := embedding.DefaultDimension

	if host := os.Getenv("QDRANT_HOST"); host != "" {
		fmt.Printf("Connecting to Qdrant at %s:%d...\n", host, getEnvInt("QDRANT_PORT", 6334))
		return vectorstore.NewQdrant(host, getEnvInt("QDRANT_PORT", 6334), model, dimension)
	}
	path := getEnv("INDEX_PATH", "data/index.json")
	return vectorstore.OpenLocal(path, model, dimension)
}

func loadCorpus(ctx context.Context) ([]corpus.Document, error) {
	if dir := os.Getenv("CORPUS_DIR"); dir != "" {
		return corpus.NewDirSource(dir).Load(ctx)
	}

	repo := os.Getenv("GITHUB_REPO")
	if repo == "" {
		return nil, fmt.Errorf("set CORPUS_DIR or GITHUB_REPO")
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok {
		return nil, fmt.Errorf("GITHUB_REPO must be owner/repo, got %q", repo)
	}

	src, err := corpus.NewGitHubSource(owner, name, getEnv("GITHUB_PATH", "corpus"))
	if err != nil {
		return nil, err
	}
	if sha, err := src.LatestCommitSHA(ctx); err == nil {
		fmt.Printf("Corpus at commit %s\n", sha[:min(12, len(sha))])
	}
	return src.Load(ctx)
}

func printIndexResult(verb string, result *pipeline.IndexResult, start time.Time) {
	fmt.Println()
	fmt.Printf("%s complete!\n", verb)
	fmt.Printf("  Documents indexed: %d/%d\n", result.IndexedDocs, result.TotalDocs)
	fmt.Printf("  Segments:          %d\n", result.TotalSegments)
	if len(result.FailedDocs) > 0 {
		fmt.Printf("  Failed:            %d\n", len(result.FailedDocs))
		for _, f := range result.FailedDocs {
			fmt.Printf("    %s: %v\n", f.Source, f.Err)
		}
	}
	fmt.Printf("  Duration:          %s\n", time.Since(start).Round(time.Millisecond))
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
