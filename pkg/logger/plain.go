package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// PlainHandler writes the "<ISO timestamp> - <LEVEL> - <message>" line
// format required of the on-disk log file.
type PlainHandler struct {
	mu    sync.Mutex
	w     io.Writer
	level slog.Leveler
}

// NewPlainHandler creates a handler writing to w, gated by level.
func NewPlainHandler(w io.Writer, level slog.Leveler) *PlainHandler {
	return &PlainHandler{w: w, level: level}
}

func (h *PlainHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PlainHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := r.Time.UTC().Format(time.RFC3339)
	_, err := fmt.Fprintf(h.w, "%s - %s - %s\n", ts, r.Level.String(), r.Message)
	return err
}

// WithAttrs is a no-op: the flat log-file format carries no structured
// attributes, matching the plain "timestamp - level - message" line.
func (h *PlainHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }

func (h *PlainHandler) WithGroup(_ string) slog.Handler { return h }
