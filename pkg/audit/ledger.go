// Package audit keeps a local record of restart attempts, independent of
// whatever Alertmanager/Prometheus currently knows. It exists so an
// operator can answer "when did we last touch node X, and did it
// succeed" from this host alone, without depending on the metrics
// backends staying up. It is purely observational: nothing here gates or
// alters the restart state machine.
package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Outcome records how a recorded restart attempt ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeConnectFail Outcome = "connect_failed"
	OutcomeRestartFail Outcome = "restart_failed"
	OutcomeTerminated  Outcome = "terminated"
)

// Entry is one row of the restart attempt ledger.
type Entry struct {
	ID        string
	Node      string
	StartedAt time.Time
	Duration  time.Duration
	Outcome   Outcome
	Detail    string
}

// Ledger persists restart attempts to a local SQLite database.
type Ledger struct {
	db *sql.DB
}

// Open creates or opens the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening audit ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging audit ledger: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.init(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) init() error {
	_, err := l.db.Exec(`
	CREATE TABLE IF NOT EXISTS restart_attempts (
		id TEXT PRIMARY KEY,
		node TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		duration_seconds REAL NOT NULL,
		outcome TEXT NOT NULL,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_restart_attempts_node ON restart_attempts(node, started_at);
	`)
	return err
}

// Record appends a completed restart attempt to the ledger.
func (l *Ledger) Record(e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := l.db.Exec(
		`INSERT INTO restart_attempts (id, node, started_at, duration_seconds, outcome, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Node, e.StartedAt, e.Duration.Seconds(), string(e.Outcome), e.Detail,
	)
	return err
}

// Last returns the most recent recorded attempt for node, or false if
// there is none.
func (l *Ledger) Last(node string) (Entry, bool, error) {
	row := l.db.QueryRow(
		`SELECT id, node, started_at, duration_seconds, outcome, detail
		 FROM restart_attempts WHERE node = ? ORDER BY started_at DESC LIMIT 1`,
		node,
	)

	var (
		e        Entry
		seconds  float64
		outcome  string
	)
	if err := row.Scan(&e.ID, &e.Node, &e.StartedAt, &seconds, &outcome, &e.Detail); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	e.Duration = time.Duration(seconds * float64(time.Second))
	e.Outcome = Outcome(outcome)
	return e, true, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}
