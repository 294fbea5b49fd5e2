// Copyright 2026 The Quarry Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// LogLevelVar is the environment variable that raises or lowers the
// command logger's level. Recognized values: debug, info, warn, error.
const LogLevelVar = "QUARRY_LOG_LEVEL"

// NewCommandLogger creates a structured logger for CLI command
// operations. When stderr is a terminal, uses slog.TextHandler for
// human-readable output. When stderr is piped or redirected (CI,
// scripts, integration tests), uses slog.JSONHandler for
// machine-parseable output.
//
// Callers scope the logger with command-specific context via With():
//
//	logger := cli.NewCommandLogger().With("command", "stage")
func NewCommandLogger() *slog.Logger {
	options := &slog.HandlerOptions{Level: logLevel()}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

// logLevel reads LogLevelVar. Unset and unrecognized values mean Info:
// a misspelled level should not silence warnings.
func logLevel() slog.Level {
	switch strings.ToLower(os.Getenv(LogLevelVar)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
