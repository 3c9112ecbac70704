package audit

import (
	"testing"
	"time"
)

func TestRecordAndLast(t *testing.T) {
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	started := time.Now().Add(-time.Minute)
	if err := l.Record(Entry{
		Node:      "node-a",
		StartedAt: started,
		Duration:  45 * time.Second,
		Outcome:   OutcomeSuccess,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entry, ok, err := l.Last("node-a")
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !ok {
		t.Fatal("Last: want an entry, got none")
	}
	if entry.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %q, want success", entry.Outcome)
	}
	if entry.Duration != 45*time.Second {
		t.Errorf("Duration = %v, want 45s", entry.Duration)
	}
}

func TestLastReturnsFalseWhenEmpty(t *testing.T) {
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	_, ok, err := l.Last("node-a")
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if ok {
		t.Error("Last: want no entry for unrecorded node")
	}
}
