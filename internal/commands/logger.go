package commands

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
)

// SetupLogger creates the process logger on stderr, keeping stdout for results
func SetupLogger(level string) (*log.Logger, error) {
	logger := log.New(os.Stderr)
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(parsed)
	return logger, nil
}
