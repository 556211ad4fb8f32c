package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/lox/email-vector-engine/internal/search"
	"github.com/lox/email-vector-engine/internal/types"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// WriteJSON writes v as indented JSON with non-ASCII and HTML left unescaped
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Write renders v as json or yaml
func Write(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		return WriteJSON(w, v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// QueryError is a search failure reported with the query that caused it
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return e.Err.Error()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// WriteError writes err to w. A QueryError is written as a JSON envelope
// with error and query keys, anything else as a plain "Error:" line.
func WriteError(w io.Writer, err error) error {
	var qerr *QueryError
	if errors.As(err, &qerr) {
		return WriteJSON(w, map[string]string{
			"error": qerr.Err.Error(),
			"query": qerr.Query,
		})
	}
	_, werr := fmt.Fprintf(w, "Error: %v\n", err)
	return werr
}

// Relevance converts a cosine distance to a percentage rounded to two places
func Relevance(distance float64) decimal.Decimal {
	return decimal.NewFromInt(1).
		Sub(decimal.NewFromFloat(distance)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// WriteSearchText prints a short human readable listing of a search result
func WriteSearchText(w io.Writer, r types.SearchResult) error {
	if _, err := fmt.Fprintf(w, "Query: %s\n%s\n%s\n\n", r.Query, r.Explanation, search.Describe(r)); err != nil {
		return err
	}
	for i, m := range r.SearchResults {
		e := types.EmailFromMetadata(m.ID, m.Metadata)
		relevance := "n/a"
		if m.Distance != nil {
			relevance = Relevance(*m.Distance).StringFixed(2) + "%"
		}
		fmt.Fprintf(w, "%d. %s (relevance %s)\n", i+1, e.Subject, relevance)
		if e.SenderName != "" {
			fmt.Fprintf(w, "   From: %s\n", e.SenderName)
		}
		if e.FolderPath != "" {
			fmt.Fprintf(w, "   Folder: %s\n", e.FolderPath)
		}
		if len(r.Documents) > 0 && i < len(r.Documents[0]) && r.Documents[0][i] != "" {
			fmt.Fprintf(w, "   %s\n", preview(r.Documents[0][i], 160))
		}
	}
	return nil
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
