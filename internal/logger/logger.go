// SPDX-FileCopyrightText: 2026 The smpart Authors
// SPDX-License-Identifier: Apache-2.0

// Package logger constructs the process-wide slog logger.
package logger

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// New builds a logger writing to w with the given level and format.
// Unknown levels fall back to info; unknown formats fall back to text.
func New(level, format string, w io.Writer) *slog.Logger {
	return slog.New(handlerForFormat(format, parseLevel(level), w))
}

func handlerForFormat(format string, level slog.Level, w io.Writer) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})
	}

	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.SourceKey {
				return a
			}
			// shorten source paths to the last two directories
			if src, ok := a.Value.Any().(*slog.Source); ok {
				parts := strings.Split(filepath.ToSlash(src.File), "/")
				if len(parts) > 2 {
					parts = parts[len(parts)-3:]
				}
				src.File = filepath.Join(parts...)
			}
			return a
		},
	})
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
