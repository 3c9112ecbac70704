// Package ring implements the node selection and availability-floor
// enforcement component (C4): a cursor over the configured nodes, and a
// running count of healthy nodes gating whether the next restart may
// proceed at all.
package ring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gridpp-storage/xrootdrestart/pkg/remote"
)

// ErrInsufficientServers is returned by RestartNext once the number of
// healthy nodes has fallen below the configured floor. The supervisor
// treats this as a request to stop scheduling further restarts.
var ErrInsufficientServers = errors.New("ring: insufficient servers running")

// InsufficientAlerter is notified as the healthy-node count crosses the
// floor in either direction. Satisfied structurally by *alerter.Alerter.
type InsufficientAlerter interface {
	SendInsufficientAlert(ctx context.Context, message string)
	ClearInsufficientAlert(ctx context.Context)
}

// Ring holds the ordered set of nodes under restart and the running
// count of how many are currently healthy.
type Ring struct {
	mu       sync.Mutex
	nodes    []*remote.Node
	current  int
	numOK    int
	minOK    int
	alertSet bool
	alerter  InsufficientAlerter
	log      *slog.Logger
	lastNode string
}

// New builds a ring over names, assuming every node starts healthy the
// same way the upstream ServerList seeds num_ok from len(config.servers).
func New(names []string, minOK int, alerter InsufficientAlerter, log *slog.Logger) *Ring {
	return &Ring{
		numOK:    len(names),
		minOK:    minOK,
		alertSet: true,
		alerter:  alerter,
		log:      log,
	}
}

// AddNode appends a node already constructed with this ring as its
// StatusTracker. Nodes are added after New so each can be wired with a
// reference back to the ring without a construction cycle.
func (r *Ring) AddNode(n *remote.Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, n)
}

// Len returns the number of nodes in the ring.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

func (r *Ring) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := ""
	comma := ""
	for _, n := range r.nodes {
		s += comma + n.String()
		comma = ","
	}
	return s
}

// next advances the cursor and returns the node it lands on, wrapping
// around at the end of the ring.
func (r *Ring) next() *remote.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current++
	if r.current >= len(r.nodes) {
		r.current = 0
	}
	return r.nodes[r.current]
}

// RestartNext restarts the next node in ring order, or returns
// ErrInsufficientServers without touching the ring if the floor has
// already been breached.
func (r *Ring) RestartNext(ctx context.Context) error {
	r.mu.Lock()
	ok := r.numOK >= r.minOK
	numOK := r.numOK
	r.mu.Unlock()

	if !ok {
		r.log.Info("insufficient servers ok to continue restarting", "num_ok", numOK, "min_ok", r.minOK)
		return ErrInsufficientServers
	}

	r.log.Debug("doing next server")
	node := r.next()
	r.mu.Lock()
	r.lastNode = node.String()
	r.mu.Unlock()
	return node.Restart(ctx)
}

// LastNode returns the name of the node most recently handed to
// Restart() by RestartNext.
func (r *Ring) LastNode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastNode
}

// AdjustOK updates the healthy-node count by delta and raises or clears
// the insufficient-servers alert as the count crosses minOK. Implements
// remote.StatusTracker.
func (r *Ring) AdjustOK(delta int) {
	r.mu.Lock()
	r.numOK += delta
	numOK := r.numOK
	minOK := r.minOK
	r.log.Debug("adjusting num_ok", "delta", delta, "num_ok", numOK, "min_ok", minOK)

	var (
		raiseAlert  bool
		clearAlert  bool
		raiseMsg    string
	)
	if numOK < minOK {
		r.log.Info("number of working servers dropped below minimum", "num_ok", numOK, "min_ok", minOK)
		r.alertSet = true
		raiseAlert = true
		raiseMsg = fmt.Sprintf("Insufficient servers running. There are %d servers ok. No more servers will be restarted", numOK)
	} else if r.alertSet {
		r.alertSet = false
		clearAlert = true
	}
	r.mu.Unlock()

	if raiseAlert {
		r.alerter.SendInsufficientAlert(context.Background(), raiseMsg)
	} else if clearAlert {
		r.alerter.ClearInsufficientAlert(context.Background())
	}
}

// NumOK returns the current count of healthy nodes.
func (r *Ring) NumOK() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.numOK
}
