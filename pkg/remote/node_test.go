package remote

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

type fakeTracker struct {
	total int
	calls []int
}

func (f *fakeTracker) AdjustOK(delta int) {
	f.total += delta
	f.calls = append(f.calls, delta)
}

type fakeSink struct{}

func (fakeSink) RestartBegin(string)                                       {}
func (fakeSink) RestartEnd(string)                                         {}
func (fakeSink) SetRestartTime(string)                                     {}
func (fakeSink) ObserveRestartDuration(string, float64)                    {}
func (fakeSink) CantConnect(context.Context, string, string, string)       {}
func (fakeSink) ClearConnectAlert(context.Context, string)                 {}
func (fakeSink) RestartFailure(context.Context, string, string, string)    {}
func (fakeSink) ClearRestartAlert(context.Context, string)                 {}
func (fakeSink) ResetAlerts(context.Context, string)                       {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestNode(tracker StatusTracker) *Node {
	cfg := Config{
		SSHUser:        "xrootdrestart",
		XrootdSvc:      "xrootd@cluster",
		CmsdSvc:        "cmsd@cluster",
		CmsdWait:       time.Millisecond,
		ServiceTimeout: time.Second,
		PrivKeyFile:    "/nonexistent",
	}
	return NewNode("node-a", cfg, fakeSink{}, tracker, nil, testLogger())
}

func TestNewNodeStartsInErrorAssumption(t *testing.T) {
	n := newTestNode(&fakeTracker{})
	if n.status != StatusOK {
		t.Errorf("initial status = %v, want OK", n.status)
	}
	if !n.errList[errConnect] || !n.errList[errRestart] {
		t.Error("expected both error kinds preset so the first good restart clears stale alerts")
	}
}

func TestSetStatusOnlyNotifiesOnChange(t *testing.T) {
	tracker := &fakeTracker{}
	n := newTestNode(tracker)

	n.setStatus(StatusOK)
	if len(tracker.calls) != 0 {
		t.Errorf("setStatus to same status notified tracker: %v", tracker.calls)
	}

	n.setStatus(StatusError)
	if len(tracker.calls) != 1 || tracker.calls[0] != -1 {
		t.Errorf("calls = %v, want single -1", tracker.calls)
	}

	n.setStatus(StatusOK)
	if len(tracker.calls) != 2 || tracker.calls[1] != 1 {
		t.Errorf("calls = %v, want second entry +1", tracker.calls)
	}
}

func TestDialFailsFastOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dial(ctx, "node-does-not-exist.invalid", "user", "/nonexistent", time.Second)
	if err == nil {
		t.Error("dial: want error for canceled context or missing key, got nil")
	}
}
