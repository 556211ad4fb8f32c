// Package mcp exposes email search as Model Context Protocol tools over stdio.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/search"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Collections lists the collections available in the vector index
type Collections interface {
	ListCollections() []string
	Count(collection string) (int, error)
}

type Server struct {
	pipeline    *search.Pipeline
	collections Collections
	defaults    search.Request
	logger      *log.Logger
}

// New creates the MCP server. collections may be nil when the index could not be
// opened at startup; list_collections then reports an error.
func New(pipeline *search.Pipeline, collections Collections, defaults search.Request, logger *log.Logger) *Server {
	return &Server{
		pipeline:    pipeline,
		collections: collections,
		defaults:    defaults,
		logger:      logger,
	}
}

func (s *Server) mcpServer() *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"Email Vector Engine",
		"1.0.0",
	)

	mcpServer.AddTool(mcp.NewTool("search_emails",
		mcp.WithDescription("Semantic search over indexed emails. Understands filters such as 'from X', 'subject Y', 'in folder Z' and counting questions like 'how many emails ...'"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Natural language search query"),
		),
		mcp.WithString("collection_name",
			mcp.Description(fmt.Sprintf("Collection to search (default: %s)", s.defaults.Collection)),
		),
		mcp.WithString("n_results",
			mcp.Description(fmt.Sprintf("Maximum number of results to return (default: %d)", s.defaults.Limit)),
		),
		mcp.WithString("use_llm",
			mcp.Description("Use a language model to interpret the query (true/false)"),
		),
	), s.searchEmailsHandler)

	mcpServer.AddTool(mcp.NewTool("list_collections",
		mcp.WithDescription("List the email collections in the vector index with their document counts"),
	), s.listCollectionsHandler)

	return mcpServer
}

// Run serves the tools on stdin/stdout until the client disconnects
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer())
}

func (s *Server) searchEmailsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, ok := request.Params.Arguments["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, errors.New("query must be a non-empty string")
	}

	req := s.defaults
	req.Query = query
	if name, ok := request.Params.Arguments["collection_name"].(string); ok && name != "" {
		req.Collection = name
	}
	if v, ok := request.Params.Arguments["n_results"]; ok {
		limit, err := intArg(v)
		if err != nil {
			return nil, fmt.Errorf("n_results must be a valid integer: %w", err)
		}
		req.Limit = limit
	}
	if v, ok := request.Params.Arguments["use_llm"]; ok {
		useLLM, err := boolArg(v)
		if err != nil {
			return nil, fmt.Errorf("use_llm must be true or false: %w", err)
		}
		req.UseLLMParsing = useLLM
	}

	result, err := s.pipeline.Run(ctx, req)
	if err != nil {
		s.logger.Error("Search failed", "query", query, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return nil, fmt.Errorf("failed to encode search result: %w", err)
	}
	return mcp.NewToolResultText(buf.String()), nil
}

func (s *Server) listCollectionsHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.collections == nil {
		return mcp.NewToolResultError("vector index is not available"), nil
	}

	names := s.collections.ListCollections()
	if len(names) == 0 {
		return mcp.NewToolResultText("No collections found."), nil
	}

	var sb strings.Builder
	for _, name := range names {
		count, err := s.collections.Count(name)
		if err != nil {
			s.logger.Warn("Failed to count collection", "collection", name, "error", err)
			fmt.Fprintf(&sb, "%s\n", name)
			continue
		}
		fmt.Fprintf(&sb, "%s: %d emails\n", name, count)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func intArg(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(n))
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func boolArg(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	default:
		return false, fmt.Errorf("unexpected type %T", v)
	}
}
