package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/lox/email-vector-engine/internal/api"
	"github.com/lox/email-vector-engine/internal/commands"
	"github.com/lox/email-vector-engine/internal/db"
	"github.com/lox/email-vector-engine/internal/loader"
	"github.com/lox/email-vector-engine/internal/metrics"
	"github.com/lox/email-vector-engine/internal/search"
)

type CLI struct {
	commands.CommonConfig
	commands.IndexConfig
	commands.EmbeddingConfig

	Search      SearchCmd      `cmd:"" help:"Search the email index with a natural language query."`
	LoadData    LoadDataCmd    `cmd:"" help:"Embed a JSONL email export into the vector index."`
	Collections CollectionsCmd `cmd:"" help:"List collections in the vector index with their document counts."`
	Stats       StatsCmd       `cmd:"" help:"Show ingestion statistics for each collection."`
	Serve       ServeCmd       `cmd:"" help:"Serve the search HTTP API."`
}

type SearchCmd struct {
	commands.LLMConfig

	Query    string `help:"Search query" required:""`
	NResults int    `help:"Number of results to retrieve" default:"10"`
	Format   string `help:"Output format" default:"json" enum:"json,yaml,text"`
}

type LoadDataCmd struct {
	JSONLPath   string `name:"jsonl-path" help:"Path to the JSONL email export" required:"" type:"existingfile"`
	Concurrency int    `help:"Number of concurrent embedding requests" default:"4"`
	BatchSize   int    `help:"Documents per index write" default:"100"`
	NoProgress  bool   `help:"Disable progress bar" default:"false"`
	Format      string `help:"Output format for the report" default:"json" enum:"json,yaml"`
}

type CollectionsCmd struct {
	Format string `help:"Output format" default:"json" enum:"json,yaml"`
}

type StatsCmd struct {
	Format string `help:"Output format" default:"json" enum:"json,yaml"`
}

type ServeCmd struct {
	commands.LLMConfig

	Addr     string `help:"Address to listen on" default:":7860" env:"EMAIL_ADDR"`
	NResults int    `help:"Default number of results per search" default:"10"`
}

func (c *SearchCmd) Run(cli *CLI) error {
	logger, err := commands.SetupLogger(cli.LogLevel)
	if err != nil {
		return err
	}

	pipeline, release, err := commands.Pipeline(cli.EmbeddingConfig, c.LLMConfig, logger)
	if err != nil {
		return &commands.QueryError{Query: c.Query, Err: err}
	}
	defer release()

	req := commands.DefaultRequest(cli.IndexConfig, c.LLMConfig, c.NResults)
	req.Query = c.Query

	result, err := pipeline.Run(context.Background(), req)
	if err != nil {
		return &commands.QueryError{Query: c.Query, Err: err}
	}

	if c.Format == "text" {
		return commands.WriteSearchText(os.Stdout, result)
	}
	return commands.Write(os.Stdout, c.Format, result)
}

func (c *LoadDataCmd) Run(cli *CLI) error {
	logger, err := commands.SetupLogger(cli.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := commands.SetupEmbeddingProvider(ctx, cli.EmbeddingConfig, logger)
	if err != nil {
		return err
	}
	defer commands.CloseEmbeddingProvider(provider, logger)

	store, err := commands.SetupIndex(cli.IndexConfig, provider, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ledger, err := commands.SetupLedger(ctx, cli.CommonConfig, logger)
	if err != nil {
		return err
	}
	defer ledger.Close()

	report, err := loader.New(logger, provider, store, ledger).Load(ctx, c.JSONLPath, loader.Config{
		Collection:  cli.CollectionName,
		Concurrency: c.Concurrency,
		BatchSize:   c.BatchSize,
		Progress:    !c.NoProgress,
	})
	if err != nil {
		return fmt.Errorf("failed to load emails: %w", err)
	}
	return commands.Write(os.Stdout, c.Format, report)
}

type collectionSummary struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

func (c *CollectionsCmd) Run(cli *CLI) error {
	logger, err := commands.SetupLogger(cli.LogLevel)
	if err != nil {
		return err
	}

	provider, err := commands.SetupEmbeddingProvider(context.Background(), cli.EmbeddingConfig, logger)
	if err != nil {
		return err
	}
	defer commands.CloseEmbeddingProvider(provider, logger)

	store, err := commands.OpenIndex(cli.IndexConfig, provider, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries := []collectionSummary{}
	for _, name := range store.ListCollections() {
		count, err := store.Count(name)
		if err != nil {
			return fmt.Errorf("failed to count collection %s: %w", name, err)
		}
		summaries = append(summaries, collectionSummary{Name: name, Count: count})
	}
	return commands.Write(os.Stdout, c.Format, summaries)
}

func (c *StatsCmd) Run(cli *CLI) error {
	logger, err := commands.SetupLogger(cli.LogLevel)
	if err != nil {
		return err
	}

	ctx := context.Background()
	ledger, err := commands.SetupLedger(ctx, cli.CommonConfig, logger)
	if err != nil {
		return err
	}
	defer ledger.Close()

	names, err := ledger.Collections(ctx)
	if err != nil {
		return err
	}

	stats := []db.Stats{}
	for _, name := range names {
		s, err := ledger.Stats(ctx, name)
		if err != nil {
			return err
		}
		stats = append(stats, s)
	}
	return commands.Write(os.Stdout, c.Format, stats)
}

func (c *ServeCmd) Run(cli *CLI) error {
	logger, err := commands.SetupLogger(cli.LogLevel)
	if err != nil {
		return err
	}

	metrics.Register()
	pipeline, release, err := commands.Pipeline(cli.EmbeddingConfig, c.LLMConfig, logger,
		search.WithObserver(metrics.NewRecorder()))
	if err != nil {
		return err
	}
	defer release()

	srv := api.NewServer(pipeline, commands.DefaultRequest(cli.IndexConfig, c.LLMConfig, c.NResults), logger)
	httpServer := &http.Server{
		Addr:              c.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "addr", c.Addr, "index", cli.DBPath, "collection", cli.CollectionName)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load .env file", "error", err)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("email-engine"),
		kong.Description("Semantic search over an email archive"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(&cli); err != nil {
		_ = commands.WriteError(os.Stderr, err)
		os.Exit(1)
	}
}
