// Package supervisor wires together config, alerting, the node ring and
// the two cooperative tasks (restart scheduler, heartbeat) into the
// single long-running process (C5).
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridpp-storage/xrootdrestart/pkg/alerter"
	"github.com/gridpp-storage/xrootdrestart/pkg/audit"
	"github.com/gridpp-storage/xrootdrestart/pkg/config"
	"github.com/gridpp-storage/xrootdrestart/pkg/logger"
	"github.com/gridpp-storage/xrootdrestart/pkg/maintenance"
	"github.com/gridpp-storage/xrootdrestart/pkg/remote"
	"github.com/gridpp-storage/xrootdrestart/pkg/ring"
)

// Exit codes, part of the external contract (§6): 0 clean, 1 reserved
// for the setup flow (key generation, not reached here), 2 uncaught
// error or insufficient-servers termination, 3 signal-driven shutdown.
const (
	ExitClean         = 0
	ExitKeyGenerated  = 1
	ExitError         = 2
	ExitSignal        = 3
	heartbeatInterval = 5 * time.Second
)

// Options configures a Supervisor run; all fields are optional and
// default sensibly (see Run).
type Options struct {
	ConfigPath string
	AuditDBPath string
}

// Supervisor owns the process lifetime: it loads configuration, wires
// the alerter, node ring and optional maintenance window, then runs the
// restart scheduler and heartbeat until canceled or an unrecoverable
// condition is hit.
type Supervisor struct {
	cfg     *config.Config
	log     *logger.Logger
	alerter *alerter.Alerter
	ring    *ring.Ring
	window  *maintenance.Window
	ledger  *audit.Ledger
}

// Run is the single entry point (C5's `run()`): load config, build the
// wiring, run to completion or interruption, and return the process
// exit code. It never calls os.Exit itself so it stays testable.
func Run(opts Options) int {
	cfg, err := config.Load(opts.ConfigPath, true)
	if err != nil {
		fmt.Println("failed to load config:", err)
		return ExitError
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, File: "/var/log/xrootdrestart.log"})
	if err != nil {
		fmt.Println("failed to initialize logger:", err)
		return ExitError
	}
	defer log.Close()

	log.Info("===========================================================================")
	log.Info("=============================  PROGRAM START ==============================")
	log.Info("===========================================================================")
	log.Info("reading config file", "path", cfg.Path())
	log.Info("settings loaded",
		"cluster_id", cfg.ClusterID,
		"servers", cfg.Servers,
		"min_ok", cfg.MinOK,
		"metrics_method", cfg.MetricsMethod,
		"log_level", cfg.LogLevel,
	)

	s, err := New(cfg, log, opts)
	if err != nil {
		log.Error("failed to initialize supervisor", "error", err)
		return ExitError
	}
	defer s.close()

	if s.ring.Len() == 0 {
		log.Info("no servers specified, program exit")
		return ExitClean
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return s.run(ctx)
}

// New constructs a Supervisor's wiring without starting any goroutines,
// primarily so tests can exercise individual pieces.
func New(cfg *config.Config, log *logger.Logger, opts Options) (*Supervisor, error) {
	a, err := alerter.New(cfg, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("starting alerter: %w", err)
	}

	window, err := maintenance.Load(cfg.MaintenanceScript)
	if err != nil {
		log.Error("failed to load maintenance window, ignoring", "error", err)
		window = nil
	}

	var ledger *audit.Ledger
	if opts.AuditDBPath != "" {
		ledger, err = audit.Open(opts.AuditDBPath)
		if err != nil {
			log.Error("failed to open audit ledger, continuing without it", "error", err)
			ledger = nil
		}
	}

	r := ring.New(cfg.Servers, cfg.MinOK, a, log.Logger)

	nodeCfg := remote.Config{
		SSHUser:        cfg.SSHUser,
		XrootdSvc:      cfg.XrootdSvc,
		CmsdSvc:        cfg.CmsdSvc,
		CmsdWait:       time.Duration(cfg.CmsdWait) * time.Second,
		ServiceTimeout: time.Duration(cfg.ServiceTimeout) * time.Second,
		PrivKeyFile:    cfg.PrivKeyFile,
	}
	probe := remote.NewPromProbe(cfg.PromURL, log.Logger)

	for _, name := range cfg.Servers {
		log.Debug("adding server", "node", name)
		node := remote.NewNode(name, nodeCfg, a, r, probe, log.Logger)
		a.ResetAlerts(context.Background(), name)
		r.AddNode(node)
	}

	return &Supervisor{cfg: cfg, log: log, alerter: a, ring: r, window: window, ledger: ledger}, nil
}

func (s *Supervisor) close() {
	if s.ledger != nil {
		s.ledger.Close()
	}
	s.alerter.Close(context.Background())
}

// run drives the scheduler and heartbeat until ctx is canceled or the
// ring reports insufficient servers, returning the matching exit code.
func (s *Supervisor) run(ctx context.Context) int {
	n := s.ring.Len()
	interval := time.Duration(s.cfg.CmsdPeriod) * time.Second / time.Duration(n)
	s.log.Info("processing server list", "servers", s.ring.String())
	s.log.Info("restart interval computed", "seconds", interval.Seconds())

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	heartbeatDone := make(chan struct{})
	go s.runHeartbeat(hbCtx, heartbeatDone)

	// Run the first restart immediately; schedule.every() upstream waits
	// one interval before its first tick, which this deliberately skips.
	if code, done := s.tick(ctx); done {
		stopHeartbeat()
		<-heartbeatDone
		return code
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("program terminating: signal received")
			<-heartbeatDone
			return ExitSignal
		case <-ticker.C:
			if code, done := s.tick(ctx); done {
				stopHeartbeat()
				<-heartbeatDone
				return code
			}
		}
	}
}

// tick runs one scheduled restart, gated by the maintenance window. It
// returns (exitCode, true) when the supervisor should stop.
func (s *Supervisor) tick(ctx context.Context) (int, bool) {
	if !s.window.Allows(time.Now()) {
		s.log.Debug("restart skipped: outside maintenance window")
		return 0, false
	}

	started := time.Now()
	err := s.ring.RestartNext(ctx)
	s.record(started, err)

	switch {
	case err == nil:
		return 0, false
	case errors.Is(err, ring.ErrInsufficientServers):
		s.log.Info("insufficient servers running, no more servers will be restarted")
		// Sleep one heartbeat interval so a PULL scraper has a chance to
		// observe the floor-breach state before the process exits.
		time.Sleep(heartbeatInterval)
		s.log.Info("program terminating")
		return ExitError, true
	case errors.Is(err, remote.ErrTerminated):
		s.log.Info("program terminating: restart interrupted by shutdown")
		return ExitSignal, true
	default:
		// Connect/restart failures are handled (and alerted) inside the
		// node itself; the ring only returns them for logging here.
		s.log.Debug("tick completed with a handled node error", "error", err)
		return 0, false
	}
}

func (s *Supervisor) record(started time.Time, err error) {
	if s.ledger == nil {
		return
	}
	outcome := audit.OutcomeSuccess
	switch {
	case errors.Is(err, remote.ErrConnect):
		outcome = audit.OutcomeConnectFail
	case errors.Is(err, remote.ErrRestart):
		outcome = audit.OutcomeRestartFail
	case errors.Is(err, remote.ErrTerminated):
		outcome = audit.OutcomeTerminated
	case errors.Is(err, ring.ErrInsufficientServers):
		return
	}

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	if recErr := s.ledger.Record(audit.Entry{
		Node:      s.ring.LastNode(),
		StartedAt: started,
		Duration:  time.Since(started),
		Outcome:   outcome,
		Detail:    detail,
	}); recErr != nil {
		s.log.Debug("failed to record audit entry", "error", recErr)
	}
}

// runHeartbeat ticks the heartbeat until canceled or until a push
// failure disables it: a broken push gateway logs once and stops, it
// does not retry forever, while the supervisor keeps restarting nodes.
func (s *Supervisor) runHeartbeat(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("stopping heartbeat")
			return
		case <-ticker.C:
			if err := s.alerter.SetHeartbeat(); err != nil {
				s.log.Error("heartbeat disabled: error pushing metrics", "error", err)
				return
			}
		}
	}
}
