// Package main is the Kioku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/embedding"
	"github.com/hyperjump/kioku/internal/indexer"
	"github.com/hyperjump/kioku/internal/keyword"
	"github.com/hyperjump/kioku/internal/library"
	"github.com/hyperjump/kioku/internal/llm"
	"github.com/hyperjump/kioku/internal/models"
	"github.com/hyperjump/kioku/internal/retriever"
	"github.com/hyperjump/kioku/internal/server"
	"github.com/hyperjump/kioku/internal/tracker"
	"github.com/hyperjump/kioku/internal/watcher"
	"github.com/hyperjump/kioku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kioku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "import":
		runImport()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "rebuild":
		runRebuild()
	case "workspace":
		runWorkspace()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kioku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (reconciliation, chunking, embedding batches)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	trackCtx, trackCancel := context.WithCancel(context.Background())
	defer trackCancel()
	if err := components.Trackers.Start(trackCtx); err != nil {
		logger.Fatal("Failed to start trackers", zap.Error(err))
	}

	srv := server.NewServer(
		components.Library,
		components.Retriever,
		components.Trackers,
		components.Embedder,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	trackCancel()
	components.Trackers.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	kindFlag := fs.String("kind", "generic", "document kind: journal, note, or generic")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kioku import [flags] <file>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	abs, _ := filepath.Abs(path)
	doc, err := components.Library.ImportDocument(context.Background(), abs, models.DocumentKind(*kindFlag))
	if err != nil {
		fmt.Printf("Import failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document imported: %s (%s, %d words)\n", doc.ID, doc.Title, doc.WordCount)
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	workspaces := fs.String("workspaces", "", "comma-separated workspace IDs to scope retrieval")
	topK := fs.Int("top-k", 0, "number of context chunks (default from config)")
	showSources := fs.Bool("sources", false, "print the sources that grounded the answer")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kioku ask [flags] <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	opts := retriever.Options{
		TopK: *topK,
		Generation: llm.GenerationConfig{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			TopP:        cfg.LLM.TopP,
		},
	}
	if *workspaces != "" {
		opts.WorkspaceIDs = strings.Split(*workspaces, ",")
	}

	sources, err := components.Retriever.AnswerStream(context.Background(), question, opts, func(fragment string) error {
		fmt.Print(fragment)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nAsk failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println()
	if *showSources {
		fmt.Println("\nSources:")
		for i, src := range sources {
			fmt.Printf("  [%d] %s (chunk %d, score %.3f)\n", i+1, src.SourceID, src.ChunkIndex, src.Score)
		}
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 10, "number of results")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kioku search [flags] <query>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	docs, err := components.Library.SearchDocuments(context.Background(), query, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		fmt.Println("No results.")
		return
	}
	for _, doc := range docs {
		fmt.Printf("%s  %s\n", doc.ID, doc.Title)
		if doc.Preview != "" {
			fmt.Printf("    %s\n", doc.Preview)
		}
	}
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	includeCode := fs.Bool("include-code", false, "also reindex workspace code documents")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	result, err := components.Library.RebuildIndex(context.Background(), *includeCode, components.Embedder)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Rebuilt: %d indexed, %d skipped\n", result.Indexed, result.Skipped)
	for reason, n := range result.SkipReasons {
		fmt.Printf("  %s: %d\n", reason, n)
	}
}

func runWorkspace() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kioku workspace <add|remove|list|reindex> [args]")
		fmt.Println("  kioku workspace add <name> <path>   Create a workspace and start tracking it")
		fmt.Println("  kioku workspace remove <id>         Delete a workspace and its documents")
		fmt.Println("  kioku workspace list                List workspaces")
		fmt.Println("  kioku workspace reindex <id>        Force a full rescan")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("workspace", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8087", "server URL")
	watch := fs.Bool("watch", true, "watch the workspace root for changes (add only)")
	_ = fs.Parse(os.Args[3:])
	switch sub {
	case "add":
		if fs.NArg() < 2 {
			fmt.Println("Usage: kioku workspace add <name> <path>")
			os.Exit(1)
		}
		abs, _ := filepath.Abs(fs.Arg(1))
		body, _ := json.Marshal(map[string]interface{}{
			"name":     fs.Arg(0),
			"rootPath": abs,
			"watch":    *watch,
		})
		resp, err := http.Post(*serverURL+"/api/v1/workspaces", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var ws models.Workspace
		if err := json.NewDecoder(resp.Body).Decode(&ws); err == nil {
			fmt.Printf("Workspace created: %s (%s)\n", ws.ID, ws.Name)
		}
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kioku workspace remove <id>")
			os.Exit(1)
		}
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/workspaces/"+fs.Arg(0), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", fs.Arg(0))
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/workspaces")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Workspaces []models.Workspace `json:"workspaces"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, ws := range out.Workspaces {
			fmt.Printf("%s  %s  %s\n", ws.ID, ws.Name, ws.RootPath)
		}
	case "reindex":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kioku workspace reindex <id>")
			os.Exit(1)
		}
		resp, err := http.Post(*serverURL+"/api/v1/workspaces/"+fs.Arg(0)+"/reindex", "application/json", nil)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Reindex failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var result tracker.ReconcileResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
			fmt.Printf("Reindexed: %d indexed, %d removed, %d skipped\n", result.Indexed, result.Removed, result.Skipped)
		}
	default:
		fmt.Printf("Unknown workspace subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8087", "server URL")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(status)
}

// Components holds initialized services.
type Components struct {
	Library   *library.Library
	Embedder  embedding.Embedder
	Generator llm.Generator
	Keyword   *keyword.Index
	Indexer   *indexer.Indexer
	Trackers  *tracker.Manager
	Retriever *retriever.Retriever
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	switch cfg.Embedding.Provider {
	case "onnx":
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
		)
		if err != nil {
			logger.Warn("onnx embedder unavailable, falling back to mock", zap.Error(err))
			return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		}
		return onnxEmbedder
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		return embedding.NewOllamaEmbedder(embedding.OllamaConfig{
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder := newEmbedder(cfg, logger)
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)
	}

	keywordIndex, err := keyword.Open(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}

	lib, err := library.New(cfg.Storage.DataDir,
		library.WithLogger(logger),
		library.WithEmbedder(embedder),
		library.WithKeywordIndex(keywordIndex),
		library.WithBatching(cfg.Embedding.BatchSize, indexer.DefaultBatchDelay),
	)
	if err != nil {
		keywordIndex.Close()
		return nil, fmt.Errorf("failed to open library: %w", err)
	}

	idx := indexer.New(embedder, lib,
		indexer.WithLogger(logger),
		indexer.WithBatching(cfg.Embedding.BatchSize, indexer.DefaultBatchDelay),
		indexer.WithChunking(cfg.Chunking.TextSize, cfg.Chunking.TextOverlap, cfg.Chunking.CodeLines, cfg.Chunking.CodeOverlap),
	)

	notifier := watcher.NewFSNotifier(watcher.WithLogger(logger))
	managerOpts := []tracker.ManagerOption{tracker.WithManagerLogger(logger)}
	if cfg.Inbox.Path != "" && cfg.Inbox.EnabledOrDefault() {
		managerOpts = append(managerOpts, tracker.WithInbox(cfg.Inbox.Path, cfg.Inbox.Extensions))
	}
	trackers := tracker.NewManager(lib, idx, notifier, cfg.Storage.RegistryDir, managerOpts...)

	generator := llm.NewOllamaGenerator(llm.OllamaConfig{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	retr := retriever.New(lib, embedder, generator, retriever.WithLogger(logger))

	return &Components{
		Library:   lib,
		Embedder:  embedder,
		Generator: generator,
		Keyword:   keywordIndex,
		Indexer:   idx,
		Trackers:  trackers,
		Retriever: retr,
	}, nil
}

func printUsage() {
	fmt.Println(`kioku - Local document library with retrieval-augmented answers

Usage:
  kioku server [flags]               Start the HTTP server
  kioku import [flags] <file>        Import a document into the library
  kioku ask [flags] <question>       Ask a question over the library
  kioku search [flags] <query>       Keyword search over document titles and previews
  kioku rebuild [flags]              Rebuild the vector index from stored documents
  kioku workspace <add|remove|list|reindex>  Manage tracked workspaces (needs a running server)
  kioku status [flags]               Show catalog and index status (needs a running server)
  kioku version                      Show version
  kioku help                         Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kioku/config.yaml)
  --debug            Enable debug logging

Import Flags:
  --config string    Config file path
  --kind string      Document kind: journal, note, or generic (default: generic)

Ask Flags:
  --config string       Config file path
  --workspaces string   Comma-separated workspace IDs to scope retrieval
  --top-k int           Number of context chunks
  --sources             Print the sources that grounded the answer

Examples:
  kioku server
  kioku import --kind journal notes/2026-08-29.md
  kioku ask "what did I decide about the migration?"
  kioku ask --workspaces ws-1 --sources "where is the retry logic?"
  kioku workspace add myproject ~/src/myproject
  kioku rebuild --include-code`)
}
