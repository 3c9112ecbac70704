// Package remote implements the per-node restart state machine (C3):
// connect over SSH, stop cmsd, wait, stop xrootd, start xrootd, start
// cmsd, reconnect alerts and metrics along the way.
package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Status is a node's last-known availability as tracked by its ring.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERR"
)

// errKind distinguishes the two alert-worthy failure modes a node can be
// in at once: unreachable over SSH, or reachable but a restart failed.
type errKind int

const (
	errConnect errKind = iota
	errRestart
)

// MetricsSink is the subset of *alerter.Alerter a Node needs. Defined
// here (not imported from pkg/alerter) so pkg/remote has no dependency
// on pkg/alerter; *alerter.Alerter satisfies it structurally.
type MetricsSink interface {
	RestartBegin(node string)
	RestartEnd(node string)
	SetRestartTime(node string)
	ObserveRestartDuration(node string, seconds float64)
	CantConnect(ctx context.Context, node, summary, message string)
	ClearConnectAlert(ctx context.Context, node string)
	RestartFailure(ctx context.Context, node, summary, message string)
	ClearRestartAlert(ctx context.Context, node string)
	ResetAlerts(ctx context.Context, node string)
}

// StatusTracker is notified when a node's availability changes, so a
// ring can maintain its count of healthy nodes. Satisfied by *ring.Ring.
type StatusTracker interface {
	AdjustOK(delta int)
}

// Config carries the per-node settings a Node needs, a subset of
// pkg/config.Config so this package doesn't import it directly.
type Config struct {
	SSHUser        string
	XrootdSvc      string
	CmsdSvc        string
	CmsdWait       time.Duration
	ServiceTimeout time.Duration
	PrivKeyFile    string
}

// Node is one member of the restart ring: a single storage server
// reachable over SSH, running paired cmsd/xrootd services.
type Node struct {
	Name string

	cfg     Config
	metrics MetricsSink
	tracker StatusTracker
	log     *slog.Logger

	status  Status
	errList map[errKind]bool
	probe   *PromProbe
}

// NewNode constructs a node with status OK but with both error kinds
// preset; the first successful restart or connection clears whichever
// alerts turn out not to apply, avoiding a stale "working" assumption across a
// supervisor restart. probe may be nil (prom_url unconfigured).
func NewNode(name string, cfg Config, metrics MetricsSink, tracker StatusTracker, probe *PromProbe, log *slog.Logger) *Node {
	n := &Node{
		Name:    name,
		cfg:     cfg,
		metrics: metrics,
		tracker: tracker,
		log:     log,
		status:  StatusOK,
		errList: map[errKind]bool{errConnect: true, errRestart: true},
		probe:   probe,
	}
	return n
}

func (n *Node) String() string { return n.Name }

func (n *Node) setStatus(s Status) {
	if s == n.status {
		return
	}
	n.log.Debug("setting node status", "node", n.Name, "status", s)
	n.status = s
	if s == StatusOK {
		n.tracker.AdjustOK(1)
	} else {
		n.tracker.AdjustOK(-1)
	}
}

// Restart drives the full cmsd/xrootd restart sequence for this node.
// ctx cancellation at any point is treated as a shutdown request: the
// node tries to leave services running before returning ErrTerminated.
func (n *Node) Restart(ctx context.Context) error {
	n.log.Info("restarting node", "node", n.Name)

	n.metrics.RestartBegin(n.Name)
	n.metrics.SetRestartTime(n.Name)
	start := time.Now()
	defer func() {
		n.metrics.ObserveRestartDuration(n.Name, time.Since(start).Seconds())
		n.metrics.RestartEnd(n.Name)
	}()

	err := n.doRestart(ctx)
	if err != nil && err != ErrTerminated {
		n.log.Error("exception restarting node", "node", n.Name, "error", err)
	}
	return err
}

type restartState struct {
	connected     bool
	cmsdStopped   bool
	xrootdStopped bool
}

func (n *Node) doRestart(ctx context.Context) error {
	var state restartState

	client, err := dial(ctx, n.Name, n.cfg.SSHUser, n.cfg.PrivKeyFile, n.cfg.ServiceTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return ErrTerminated
		}
		n.log.Error("error connecting to node", "node", n.Name, "error", err)
		n.errList[errConnect] = true
		n.setStatus(StatusError)
		n.metrics.CantConnect(ctx, n.Name, fmt.Sprintf("xrootdrestart is unable to connect to %s", n.Name), err.Error())
		return fmt.Errorf("%w: %s: %v", ErrConnect, n.Name, err)
	}
	state.connected = true
	defer func() {
		if state.connected {
			n.closeConnection(client)
		}
	}()

	if n.errList[errConnect] {
		n.metrics.ClearConnectAlert(ctx, n.Name)
		delete(n.errList, errConnect)
	}

	if err := n.stopService(ctx, client, n.cfg.CmsdSvc, true); err != nil {
		return n.handleRestartOutcome(ctx, client, &state, err)
	}
	state.cmsdStopped = true

	n.log.Info("pausing before stopping xrootd", "node", n.Name, "seconds", n.cfg.CmsdWait.Seconds())
	select {
	case <-time.After(n.cfg.CmsdWait):
	case <-ctx.Done():
		return n.handleRestartOutcome(ctx, client, &state, ErrTerminated)
	}

	if err := n.stopService(ctx, client, n.cfg.XrootdSvc, true); err != nil {
		return n.handleRestartOutcome(ctx, client, &state, err)
	}
	state.xrootdStopped = true

	if err := n.startService(ctx, client, n.cfg.XrootdSvc, true); err != nil {
		return n.handleRestartOutcome(ctx, client, &state, err)
	}
	state.xrootdStopped = false

	if err := n.startService(ctx, client, n.cfg.CmsdSvc, true); err != nil {
		return n.handleRestartOutcome(ctx, client, &state, err)
	}
	state.cmsdStopped = false

	n.setStatus(StatusOK)
	if n.errList[errRestart] {
		n.metrics.ClearRestartAlert(ctx, n.Name)
		delete(n.errList, errRestart)
	}
	n.log.Info("restarting node complete", "node", n.Name)

	if n.probe != nil && !n.probe.VerifyUp(ctx, n.Name) {
		n.log.Debug("prometheus probe did not confirm node is up", "node", n.Name)
	}
	return nil
}

// handleRestartOutcome reacts to a failed or interrupted restart step:
// on ErrTerminated it tries to leave services running before returning;
// any other error is a restart failure that raises an alert.
func (n *Node) handleRestartOutcome(ctx context.Context, client *sshClient, state *restartState, err error) error {
	if err == ErrTerminated {
		n.log.Info("restarting services and closing connection after interruption", "node", n.Name)
		if state.xrootdStopped {
			n.startService(context.Background(), client, n.cfg.XrootdSvc, false)
		}
		if state.cmsdStopped {
			n.startService(context.Background(), client, n.cfg.CmsdSvc, false)
		}
		return ErrTerminated
	}

	n.log.Error("error restarting node", "node", n.Name, "error", err)
	n.setStatus(StatusError)
	n.errList[errRestart] = true
	n.metrics.RestartFailure(ctx, n.Name, fmt.Sprintf("unable to restart the services on %s", n.Name), err.Error())
	return fmt.Errorf("%w: %s: %v", ErrRestart, n.Name, err)
}

func (n *Node) closeConnection(client *sshClient) {
	n.log.Info("closing connection", "node", n.Name)
	if err := client.close(); err != nil {
		n.log.Error("error closing connection", "node", n.Name, "error", err)
	}
}

// stopService stops service_name and verifies it actually stopped.
// raiseOnCancel mirrors the upstream raise_term_exception flag: the
// best-effort recovery path in handleRestartOutcome passes false so a
// canceled context doesn't block it from trying to restart services.
func (n *Node) stopService(ctx context.Context, client *sshClient, service string, raiseOnCancel bool) error {
	if raiseOnCancel && ctx.Err() != nil {
		return ErrTerminated
	}

	start := time.Now()
	n.log.Info("stopping service", "node", n.Name, "service", service)

	if _, _, err := n.exec(ctx, client, fmt.Sprintf("sudo systemctl stop %s", service)); err != nil {
		n.log.Debug("stopping service took", "service", service, "elapsed", time.Since(start))
		return fmt.Errorf("error stopping %s: %w", service, err)
	}

	stdout, _, err := n.exec(ctx, client, fmt.Sprintf("sudo systemctl is-active %s", service))
	if err != nil {
		n.log.Debug("stopping service took", "service", service, "elapsed", time.Since(start))
		return fmt.Errorf("error stopping %s: %w", service, err)
	}
	if stdout == "active" {
		return fmt.Errorf("%s failed to stop", service)
	}

	n.log.Info("service stopped successfully", "node", n.Name, "service", service)
	n.log.Debug("stopping service took", "service", service, "elapsed", time.Since(start))
	return nil
}

// startService starts service_name after verifying it isn't already
// running, then confirms it came up.
func (n *Node) startService(ctx context.Context, client *sshClient, service string, raiseOnCancel bool) error {
	if raiseOnCancel && ctx.Err() != nil {
		return ErrTerminated
	}

	start := time.Now()
	n.log.Info("starting service", "node", n.Name, "service", service)

	stdout, _, err := n.exec(ctx, client, fmt.Sprintf("sudo systemctl is-active %s", service))
	if err != nil {
		n.log.Debug("starting service took", "service", service, "elapsed", time.Since(start))
		return fmt.Errorf("error starting %s: %w", service, err)
	}
	if stdout == "active" {
		return fmt.Errorf("%s already active before starting", service)
	}

	if _, _, err := n.exec(ctx, client, fmt.Sprintf("sudo systemctl start %s", service)); err != nil {
		n.log.Debug("starting service took", "service", service, "elapsed", time.Since(start))
		return fmt.Errorf("error starting %s: %w", service, err)
	}

	n.log.Info("checking state", "node", n.Name, "service", service)
	stdout, _, err = n.exec(ctx, client, fmt.Sprintf("sudo systemctl is-active %s", service))
	if err != nil {
		n.log.Debug("starting service took", "service", service, "elapsed", time.Since(start))
		return fmt.Errorf("error starting %s: %w", service, err)
	}
	if stdout == "inactive" {
		return fmt.Errorf("%s failed to start", service)
	}

	n.log.Info("service started successfully", "node", n.Name, "service", service)
	n.log.Debug("starting service took", "service", service, "elapsed", time.Since(start))
	return nil
}

func (n *Node) exec(ctx context.Context, client *sshClient, command string) (stdout, stderr string, err error) {
	n.log.Debug("executing command", "node", n.Name, "command", command)
	// A command already in flight runs to completion (bounded by
	// ServiceTimeout); cancellation is observed by the next stop/start
	// check, which returns ErrTerminated and triggers the rollback.
	stdout, stderr, err = client.run(context.WithoutCancel(ctx), command, n.cfg.ServiceTimeout)
	if err != nil {
		n.log.Error("error executing command", "node", n.Name, "command", command, "error", err)
		return "", "", err
	}
	n.log.Debug("command output", "stdout", stdout, "stderr", stderr)
	if stderr != "" {
		return "", "", fmt.Errorf("error running command: %s", stderr)
	}
	return stdout, stderr, nil
}
