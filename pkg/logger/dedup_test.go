package logger

import (
	"context"
	"log/slog"
	"testing"
)

type recordingHandler struct {
	messages []string
}

func (r *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (r *recordingHandler) Handle(_ context.Context, rec slog.Record) error {
	r.messages = append(r.messages, rec.Message)
	return nil
}
func (r *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *recordingHandler) WithGroup(string) slog.Handler      { return r }

func rec(msg string) slog.Record {
	return slog.Record{Message: msg, Level: slog.LevelInfo}
}

func TestDedupHandlerCollapsesRepeats(t *testing.T) {
	inner := &recordingHandler{}
	h := NewDedupHandler(inner)
	ctx := context.Background()

	h.Handle(ctx, rec("heartbeat"))
	h.Handle(ctx, rec("heartbeat"))
	h.Handle(ctx, rec("heartbeat"))
	h.Handle(ctx, rec("restarting node-a"))

	want := []string{"heartbeat", "Repeated 2 more times: heartbeat", "restarting node-a"}
	if len(inner.messages) != len(want) {
		t.Fatalf("got %v, want %v", inner.messages, want)
	}
	for i := range want {
		if inner.messages[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, inner.messages[i], want[i])
		}
	}
}

func TestDedupHandlerSingleRepeat(t *testing.T) {
	inner := &recordingHandler{}
	h := NewDedupHandler(inner)
	ctx := context.Background()

	h.Handle(ctx, rec("restarting node-a"))
	h.Handle(ctx, rec("restarting node-a"))
	h.Handle(ctx, rec("restarting node-b"))

	want := []string{"restarting node-a", "restarting node-a", "restarting node-b"}
	if len(inner.messages) != len(want) {
		t.Fatalf("got %v, want %v", inner.messages, want)
	}
	for i := range want {
		if inner.messages[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, inner.messages[i], want[i])
		}
	}
}

func TestDedupHandlerNoRepeats(t *testing.T) {
	inner := &recordingHandler{}
	h := NewDedupHandler(inner)
	ctx := context.Background()

	h.Handle(ctx, rec("a"))
	h.Handle(ctx, rec("b"))
	h.Handle(ctx, rec("c"))

	if len(inner.messages) != 3 {
		t.Fatalf("got %v, want 3 distinct messages", inner.messages)
	}
}
