package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/lox/email-vector-engine/internal/commands"
	"github.com/lox/email-vector-engine/internal/mcp"
)

type CLI struct {
	commands.CommonConfig
	commands.IndexConfig
	commands.EmbeddingConfig
	commands.LLMConfig

	NResults int `help:"Default number of results per search" default:"10"`
}

func (c *CLI) Run() error {
	logger, err := commands.SetupLogger(c.LogLevel)
	if err != nil {
		return err
	}

	pipeline, release, err := commands.Pipeline(c.EmbeddingConfig, c.LLMConfig, logger)
	if err != nil {
		return err
	}
	defer release()

	provider, err := commands.SetupEmbeddingProvider(context.Background(), c.EmbeddingConfig, logger)
	if err != nil {
		return err
	}
	defer commands.CloseEmbeddingProvider(provider, logger)

	var collections mcp.Collections
	if store, err := commands.OpenIndex(c.IndexConfig, provider, logger); err != nil {
		logger.Warn("Vector index unavailable, list_collections will report an error", "path", c.DBPath, "error", err)
	} else {
		defer store.Close()
		collections = store
	}

	return mcp.New(pipeline, collections, commands.DefaultRequest(c.IndexConfig, c.LLMConfig, c.NResults), logger).Run()
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load .env file", "error", err)
	}

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("email-mcp-server"),
		kong.Description("MCP server exposing email search over stdio"),
		kong.UsageOnError(),
	)

	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
