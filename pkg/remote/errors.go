package remote

import "errors"

// Sentinel errors surfaced by a node's restart attempt. ErrTerminated is
// returned in place of raising on a reassigned signal handler: the
// restart loop watches ctx and returns ErrTerminated the next time it
// checks, instead of a process-global signal handler reassignment.
var (
	ErrConnect    = errors.New("remote: unable to connect")
	ErrRestart    = errors.New("remote: service restart failed")
	ErrTerminated = errors.New("remote: restart interrupted by shutdown")
)
