// Package logging builds the logrus logger shared by the server, the
// registration pipeline and the CLI.
//
// Log output always goes to stderr in the binaries; stdout carries the MCP
// protocol and must stay clean.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// EnvLevel names the environment variable consulted when no level flag is
// given.
const EnvLevel = "FEATURE_MCP_LOG_LEVEL"

// DefaultLevel is used when neither a flag nor the environment sets a level.
const DefaultLevel = "info"

// New returns a text logger writing to w at the given level.
// An empty level selects DefaultLevel.
func New(w io.Writer, level string) (*logrus.Logger, error) {
	if level == "" {
		level = DefaultLevel
	}
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return logger, nil
}

// ResolveLevel picks the log level: an explicit flag wins, then EnvLevel,
// then DefaultLevel.
func ResolveLevel(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(EnvLevel); env != "" {
		return env
	}
	return DefaultLevel
}

// Discard returns a logger that drops everything. Library callers and tests
// that do not care about logs use it.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
