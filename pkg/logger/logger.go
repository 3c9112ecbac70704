// Package logger provides the process-wide structured logger.
//
// It wraps slog.Logger the way a typical console+file logging setup does,
// but fans out to two handlers: a plain text handler on stdout for
// interactive use, and a duplicate-collapsing file handler that produces
// the "<timestamp> - <LEVEL> - <message>" lines operators grep through.
package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ValidLevels are the standard severities accepted in config.
var ValidLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

// Config holds logger configuration.
type Config struct {
	// Level is one of ValidLevels. Defaults to INFO on empty/unknown input.
	Level string
	// File is the path to the duplicate-collapsing log file. Empty disables
	// file logging (console only).
	File string
}

// Logger is a wrapper around slog.Logger used across the application.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
	file  *os.File
}

// New creates a new Logger instance.
func New(cfg Config) (*Logger, error) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(cfg.Level))

	handlers := []slog.Handler{
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: levelVar}),
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		file = f
		handlers = append(handlers, NewDedupHandler(NewPlainHandler(f, levelVar)))
	}

	return &Logger{
		Logger: slog.New(newMultiHandler(handlers...)),
		level:  levelVar,
		file:   file,
	}, nil
}

// SetLevel updates the minimum level logged by all handlers.
func (l *Logger) SetLevel(level string) {
	l.level.Set(parseLevel(level))
}

// Close flushes and closes the underlying log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	case "CRITICAL":
		return slog.LevelError + 4
	default:
		return slog.LevelInfo
	}
}

// multiHandler fans a record out to every attached handler.
type multiHandler struct {
	handlers []slog.Handler
}

func newMultiHandler(hs ...slog.Handler) *multiHandler {
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}
