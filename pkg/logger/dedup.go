package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DedupHandler collapses consecutive identical log messages the way the
// on-disk log file is required to: a repeated message is suppressed, and
// the next differing message is preceded by a summary line ("<original>"
// for a single repeat, "Repeated N more times: <original>" otherwise).
type DedupHandler struct {
	mu      sync.Mutex
	next    slog.Handler
	hasLast bool
	lastMsg string
	lastRec slog.Record
	count   int
}

// NewDedupHandler wraps next with duplicate collapsing.
func NewDedupHandler(next slog.Handler) *DedupHandler {
	return &DedupHandler{next: next}
}

func (h *DedupHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *DedupHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.hasLast && r.Message == h.lastMsg {
		h.count++
		return nil
	}

	var flushErr error
	if h.count > 0 {
		summary := h.lastRec.Clone()
		if h.count == 1 {
			summary.Message = h.lastMsg
		} else {
			summary.Message = fmt.Sprintf("Repeated %d more times: %s", h.count, h.lastMsg)
		}
		flushErr = h.next.Handle(ctx, summary)
	}

	h.hasLast = true
	h.lastMsg = r.Message
	h.lastRec = r
	h.count = 0

	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}
	return flushErr
}

func (h *DedupHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &DedupHandler{next: h.next.WithAttrs(attrs)}
}

func (h *DedupHandler) WithGroup(name string) slog.Handler {
	return &DedupHandler{next: h.next.WithGroup(name)}
}
