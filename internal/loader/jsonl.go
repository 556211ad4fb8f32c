package loader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/lox/email-vector-engine/internal/embeddings"
	"github.com/lox/email-vector-engine/internal/types"
)

const (
	unknownType = "Unknown"
	// bodies of archived emails can be large, so lines may be too
	maxLineSize = 16 * 1024 * 1024
)

var whitespace = regexp.MustCompile(`\s+`)

// rawEmail accepts null for any field
type rawEmail struct {
	Type       *string `json:"type"`
	Subject    *string `json:"subject"`
	SenderName *string `json:"sender_name"`
	FolderPath *string `json:"folder_path"`
	Body       *string `json:"body"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ContentHash fingerprints every stored field of an email
func ContentHash(e types.Email) string {
	return embeddings.Hash(strings.Join([]string{e.Type, e.Subject, e.SenderName, e.FolderPath, e.Body}, "\x1f"))
}

// DocumentID is email_ followed by the first 16 hex digits of the content hash.
// An email keeps its id across files and reloads, and distinct emails never
// overwrite each other in a collection.
func DocumentID(hash string) string {
	return "email_" + hash[:16]
}

// ReadDocuments reads one JSON email per line. Lines that are blank or not valid
// JSON objects are logged and skipped. IDs are derived from content with DocumentID.
func ReadDocuments(r io.Reader, logger *log.Logger) ([]types.Email, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var emails []types.Email
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var raw rawEmail
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			logger.Warn("Skipping invalid JSON line", "line", lineNo, "content", preview(line, 100), "error", err)
			continue
		}

		email := types.Email{
			Type:       deref(raw.Type),
			Subject:    deref(raw.Subject),
			SenderName: deref(raw.SenderName),
			FolderPath: deref(raw.FolderPath),
			Body:       deref(raw.Body),
		}
		if email.Type == "" {
			email.Type = unknownType
		}
		email.ID = DocumentID(ContentHash(email))
		emails = append(emails, email)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents at line %d: %w", lineNo+1, err)
	}
	return emails, nil
}

// EmbeddingText is the body with whitespace runs collapsed, falling back to the
// subject for emails without a body
func EmbeddingText(e types.Email) string {
	text := strings.TrimSpace(whitespace.ReplaceAllString(e.Body, " "))
	if text == "" {
		text = strings.TrimSpace(whitespace.ReplaceAllString(e.Subject, " "))
	}
	return text
}

// preview shortens s to n runes for log output
func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
