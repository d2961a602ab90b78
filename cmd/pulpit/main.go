// Package main is the pulpit CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
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

	"github.com/hyperjump/pulpit/internal/cli"
	"github.com/hyperjump/pulpit/internal/config"
	"github.com/hyperjump/pulpit/internal/models"
	"github.com/hyperjump/pulpit/internal/partition"
	"github.com/hyperjump/pulpit/internal/server"
	"github.com/hyperjump/pulpit/internal/watcher"
	"github.com/hyperjump/pulpit/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/pulpit/config.yaml"
	defaultServerURL  = "http://localhost:8001"
	httpClientTimeout = 60 * time.Second
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if neither file exists,
// defaults and environment overrides alone are used.
// Returns the config and the path that was actually loaded ("" for none).
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
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			path = ""
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
	case "query", "search":
		runQuery()
	case "partitions":
		runPartitions()
	case "version", "--version", "-v":
		fmt.Printf("pulpit version %s\n", version)
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
	debug := fs.Bool("debug", false, "enable debug logging")
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	catalog := components.Catalog
	if err := catalog.Refresh(ctx); err != nil {
		logger.Warn("initial partition scan failed", zap.Error(err))
	}
	logger.Info("partitions available", zap.Int("count", len(catalog.Entries())))

	if cfg.Index.WatchOrDefault() {
		indexDir, mapDir := components.Registry.Dirs()
		watchSvc := watcher.NewWatcher(
			[]string{indexDir, mapDir},
			[]string{cfg.Index.IndexExt, partition.MapExt},
			func(paths []string) {
				if err := catalog.Refresh(ctx); err != nil {
					logger.Warn("partition catalog refresh failed", zap.Error(err))
					return
				}
				logger.Info("partition catalog refreshed", zap.Int("changed_files", len(paths)))
			},
			watcher.WithLogger(logger),
		)
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(components.Service, catalog, components.Registry, components.Store, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// printQueryUsage prints query subcommand usage.
func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: pulpit query [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  pulpit query walking in faith
  pulpit query --pastor kumuyi -k 10 "the power of prayer"
  pulpit query --server "" --output json grace   # direct mode, no server
`)
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// queryArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func queryArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = query partitions directly)")
	pastor := fs.String("pastor", "", "partition slug or pastor name (empty = configured default)")
	k := fs.Int("k", 0, "number of results (default from config)")
	outputFormat := fs.String("output", "text", "output format: text (human-readable), compact (one result per line), or json (parseable)")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(queryArgsReorder(os.Args[2:]))

	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := &models.QueryRequest{Query: queryStr, PastorSlug: *pastor}
	if flagWasSet(fs, "k") {
		req.K = k
	}

	var response *models.QueryResponse
	if *serverURL != "" {
		response, err = queryViaHTTP(context.Background(), *serverURL, req)
	} else {
		response, err = queryDirect(*configPath, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteQueryResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func queryDirect(configPath string, req *models.QueryRequest) (*models.QueryResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	ctx, cancel := withTimeout(context.Background(), cfg.Server.RequestTimeout)
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Service.Query(ctx, req)
}

// apiError is the error body returned by the server.
type apiError struct {
	Error string `json:"error"`
}

func queryViaHTTP(ctx context.Context, serverURL string, query *models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+"/api/v1/query", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var response models.QueryResponse
	if err := doJSON(req, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func doJSON(req *http.Request, out interface{}) error {
	client := &http.Client{Timeout: httpClientTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func runPartitions() {
	fs := flag.NewFlagSet("partitions", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = scan directories directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var entries []partition.Entry
	if *serverURL != "" {
		entries, err = partitionsViaHTTP(context.Background(), *serverURL)
	} else {
		entries, err = partitionsDirect(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Listing partitions failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WritePartitions(os.Stdout, entries, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func partitionsViaHTTP(ctx context.Context, serverURL string) ([]partition.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/v1/partitions", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Partitions []partition.Entry `json:"partitions"`
	}
	if err := doJSON(req, &out); err != nil {
		return nil, err
	}
	return out.Partitions, nil
}

// partitionsDirect scans the configured directories without loading any index.
func partitionsDirect(configPath string) ([]partition.Entry, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	registry := partition.NewRegistry(partition.Config{
		IndexDir: cfg.Index.IndexDir,
		MapDir:   cfg.Index.MapDir,
		IndexExt: cfg.Index.IndexExt,
	})
	catalog := partition.NewCatalog(registry, nil)
	if err := catalog.Refresh(context.Background()); err != nil {
		return nil, err
	}
	return catalog.Entries(), nil
}

func printUsage() {
	fmt.Println(`pulpit - partitioned semantic retrieval over sermon transcripts

Usage:
  pulpit server [flags]           Start the HTTP server
  pulpit query [flags] <query>    Query a partition
  pulpit partitions [flags]       List available partitions
  pulpit version                  Show version
  pulpit help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/pulpit/config.yaml)
  --debug            Enable debug logging

Query Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8001). Use --server "" to query partitions directly.
  --pastor string    Partition slug or pastor name (default: configured default partition)
  -k int             Number of results (default from config)
  --output string    Output format: text, compact, or json (default: text)

Partitions Flags:
  --config string    Config file path (for direct mode)
  --server string    Server URL (default: http://localhost:8001). Use --server "" to scan directories directly.
  --output string    Output format: text or json (default: text)

Environment:
  PULPIT_DB_URL / DB_URL, PULPIT_INDEX_DIR, PULPIT_MAP_DIR, PULPIT_METRIC,
  PULPIT_EMBEDDING_MODEL, PULPIT_QUERY_INSTRUCTION, OPENAI_API_KEY, PULPIT_REDIS_ADDR

Examples:
  pulpit server
  pulpit query "walking in the spirit"
  pulpit query --pastor "Pastor Adeboye" -k 3 holiness
  pulpit query --output json faith
  pulpit partitions`)
}
