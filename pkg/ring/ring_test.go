package ring

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

type fakeAlerter struct {
	raised  []string
	cleared int
}

func (f *fakeAlerter) SendInsufficientAlert(ctx context.Context, message string) {
	f.raised = append(f.raised, message)
}

func (f *fakeAlerter) ClearInsufficientAlert(ctx context.Context) {
	f.cleared++
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAdjustOKRaisesAlertBelowFloor(t *testing.T) {
	alerter := &fakeAlerter{}
	r := New([]string{"a", "b", "c"}, 2, alerter, testLogger())

	r.AdjustOK(-1)
	if r.NumOK() != 2 {
		t.Fatalf("NumOK = %d, want 2", r.NumOK())
	}
	if len(alerter.raised) != 0 {
		t.Errorf("alert raised at floor boundary, want none: %v", alerter.raised)
	}

	r.AdjustOK(-1)
	if r.NumOK() != 1 {
		t.Fatalf("NumOK = %d, want 1", r.NumOK())
	}
	if len(alerter.raised) != 1 {
		t.Fatalf("raised = %v, want one alert below floor", alerter.raised)
	}
}

func TestAdjustOKClearsAlertOnceAboveFloorAgain(t *testing.T) {
	alerter := &fakeAlerter{}
	r := New([]string{"a", "b"}, 2, alerter, testLogger())

	r.AdjustOK(-1)
	if len(alerter.raised) != 1 {
		t.Fatalf("expected alert raised, got %v", alerter.raised)
	}

	r.AdjustOK(1)
	if alerter.cleared != 1 {
		t.Errorf("cleared = %d, want 1", alerter.cleared)
	}
}

func TestRestartNextReturnsErrInsufficientServersWithoutAdvancing(t *testing.T) {
	alerter := &fakeAlerter{}
	r := New([]string{"a"}, 2, alerter, testLogger())
	r.AdjustOK(-10)

	err := r.RestartNext(context.Background())
	if err != ErrInsufficientServers {
		t.Fatalf("RestartNext error = %v, want ErrInsufficientServers", err)
	}
}
