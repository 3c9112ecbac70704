// Package alerter owns the Prometheus metrics surface and the
// Alertmanager v2 alert lifecycle described for the supervisor: three
// alert kinds (connect, restart, insufficient-servers), each with a
// mirrored gauge so PULL scrapers see the same state without querying
// Alertmanager. Clearing is idempotent: the sink is queried first and
// only an alert it reports as active is ended. Raising is not: every
// raise POSTs the alert without first checking whether an equal alert
// is already active.
package alerter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gridpp-storage/xrootdrestart/pkg/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Alerter raises/clears alerts and keeps the metrics surface current. A
// nil *Alerter is never constructed; when alert_url is empty alerting is
// simply disabled while metrics keep working, matching the config
// contract's "alerts optional" behavior.
type Alerter struct {
	cfg       *config.Config
	log       *slog.Logger
	metrics   *metricSet
	sink      *sink
	alertsOn  bool
	bus       *eventBus
	server    *http.Server
	hostname  string
	clusterID string
}

// New wires the metrics registry, the Alertmanager sink (if alert_url is
// set) and the optional MQTT event bus, and starts the PULL HTTP server
// when metrics_method is PULL.
func New(cfg *config.Config, log *slog.Logger) (*Alerter, error) {
	a := &Alerter{
		cfg:       cfg,
		log:       log,
		metrics:   newMetricSet(cfg),
		alertsOn:  cfg.AlertURL != "",
		hostname:  cfg.Hostname,
		clusterID: cfg.ClusterID,
	}
	log.Info("alerts are " + onOff(a.alertsOn))

	if a.alertsOn {
		a.sink = newSink(cfg.AlertURL)
	}
	a.bus = newEventBus(cfg.MQTTBroker, cfg.ClusterID, log)

	a.metrics.insufficientAlertVec.WithLabelValues(a.labelValues(a.hostname)...).Set(0)

	if cfg.MetricsMethod == config.MetricsPull {
		if err := a.startPullServer(); err != nil {
			return nil, fmt.Errorf("start metrics server: %w", err)
		}
	}

	return a, nil
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

// labelValues returns the ordered label values matching the Vec label
// set created in newMetricSet: {node} under PULL, {node,cluster} under PUSH.
func (a *Alerter) labelValues(node string) []string {
	if a.cfg.MetricsMethod == config.MetricsPush {
		return []string{node, a.clusterID}
	}
	return []string{node}
}

func (a *Alerter) startPullServer() error {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(a.metrics.registry, promhttp.HandlerOpts{}))
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.MetricsPort),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	a.log.Debug("creating metrics webserver", "port", a.cfg.MetricsPort)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("metrics server exited", "error", err)
		}
	}()
	return nil
}

// Close shuts down the PULL HTTP server and MQTT event bus, if running.
func (a *Alerter) Close(ctx context.Context) error {
	a.bus.close()
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

// RemoveActiveAlerts ends every active alert of any of the three kinds
// this package manages. The supervisor's startup path does not call it;
// it primes the gauges from the sink with ResetAlerts instead.
func (a *Alerter) RemoveActiveAlerts(ctx context.Context) {
	if !a.alertsOn {
		return
	}
	for _, kind := range []Kind{KindConnectError, KindRestartError, KindInsufficientServers} {
		alerts, err := a.sink.activeAlerts(ctx, kind)
		if err != nil {
			a.log.Error("error fetching active alerts", "error", err)
			continue
		}
		for _, al := range alerts {
			a.log.Info("ending alert", "alert", al.Labels["alertname"], "node", al.Labels["node"])
			if err := a.sink.end(ctx, al); err != nil {
				a.log.Error("error ending alert", "error", err)
			}
		}
	}
}

// RestartFailure raises a RESTART_ERROR alert for node and sets its
// restart-alert gauge to 1.
func (a *Alerter) RestartFailure(ctx context.Context, node, summary, message string) {
	if a.alertsOn {
		alert := newManagedAlert(KindRestartError, node, summary, message)
		if err := a.sink.send(ctx, alert); err != nil {
			a.log.Error("error sending alert", "alert", alert, "error", err)
		}
	}
	a.metrics.restartAlertState.WithLabelValues(a.labelValues(node)...).Set(1)
}

// ClearRestartAlert clears any active RESTART_ERROR alert for node and
// unsets its restart-alert gauge.
func (a *Alerter) ClearRestartAlert(ctx context.Context, node string) {
	if a.alertsOn {
		a.log.Debug("clearing restart alert", "node", node)
		if alert, err := a.sink.find(ctx, KindRestartError, node); err != nil {
			a.log.Error("error fetching active alerts", "error", err)
		} else if alert != nil {
			if err := a.sink.end(ctx, *alert); err != nil {
				a.log.Error("error ending alert", "error", err)
			}
		}
	}
	a.metrics.restartAlertState.WithLabelValues(a.labelValues(node)...).Set(0)
}

// CantConnect raises a CONNECT_ERROR alert for node and sets its
// connect-alert gauge to 1.
func (a *Alerter) CantConnect(ctx context.Context, node, summary, message string) {
	if a.alertsOn {
		a.log.Debug("sending connect error alert", "node", node)
		alert := newManagedAlert(KindConnectError, node, summary, message)
		if err := a.sink.send(ctx, alert); err != nil {
			a.log.Error("error sending alert", "alert", alert, "error", err)
		}
	}
	a.metrics.connectAlertState.WithLabelValues(a.labelValues(node)...).Set(1)
}

// ClearConnectAlert clears any active CONNECT_ERROR alert for node and
// unsets its connect-alert gauge.
func (a *Alerter) ClearConnectAlert(ctx context.Context, node string) {
	if a.alertsOn {
		a.log.Debug("clearing connect error alert", "node", node)
		if alert, err := a.sink.find(ctx, KindConnectError, node); err != nil {
			a.log.Error("error fetching active alerts", "error", err)
		} else if alert != nil {
			if err := a.sink.end(ctx, *alert); err != nil {
				a.log.Error("error ending alert", "error", err)
			}
		}
	}
	a.metrics.connectAlertState.WithLabelValues(a.labelValues(node)...).Set(0)
}

// SendInsufficientAlert raises the cluster-wide INSUFFICIENT_SERVERS
// alert (no node label) and sets its gauge to 1.
func (a *Alerter) SendInsufficientAlert(ctx context.Context, message string) {
	if a.alertsOn {
		alert := newManagedAlert(KindInsufficientServers, "", "Too many servers down", message)
		if err := a.sink.send(ctx, alert); err != nil {
			a.log.Error("error sending alert", "alert", alert, "error", err)
		}
	}
	a.metrics.insufficientAlertVec.WithLabelValues(a.labelValues(a.hostname)...).Set(1)
}

// ClearInsufficientAlert clears the active INSUFFICIENT_SERVERS alert
// and unsets its gauge.
func (a *Alerter) ClearInsufficientAlert(ctx context.Context) {
	if a.alertsOn {
		a.log.Debug("clearing insufficient servers alert")
		if alert, err := a.sink.find(ctx, KindInsufficientServers, ""); err != nil {
			a.log.Error("error fetching active alerts", "error", err)
		} else if alert != nil {
			if err := a.sink.end(ctx, *alert); err != nil {
				a.log.Error("error ending alert", "error", err)
			}
		}
	}
	a.metrics.insufficientAlertVec.WithLabelValues(a.labelValues(a.hostname)...).Set(0)
}

// ResetAlerts primes node's restart- and connect-alert gauges from
// whatever is currently active on the sink, so a supervisor restart
// doesn't silently forget alert state the sink still has raised.
func (a *Alerter) ResetAlerts(ctx context.Context, node string) {
	restartActive := false
	connectActive := false
	if a.alertsOn {
		if alert, err := a.sink.find(ctx, KindRestartError, node); err == nil {
			restartActive = alert != nil
		}
		if alert, err := a.sink.find(ctx, KindConnectError, node); err == nil {
			connectActive = alert != nil
		}
	}

	a.metrics.restartAlertState.WithLabelValues(a.labelValues(node)...).Set(boolToFloat(restartActive))
	a.metrics.connectAlertState.WithLabelValues(a.labelValues(node)...).Set(boolToFloat(connectActive))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetRestartTime records the moment a restart begins for node.
func (a *Alerter) SetRestartTime(node string) {
	a.metrics.startTime.WithLabelValues(a.labelValues(node)...).Set(float64(time.Now().Unix()))
}

// RestartBegin marks node's restart-active gauge and publishes a
// lifecycle event to the MQTT bus, if configured.
func (a *Alerter) RestartBegin(node string) {
	a.metrics.restartActive.WithLabelValues(a.labelValues(node)...).Set(1)
	a.bus.publish(node, "restart_begin")
}

// RestartEnd clears node's restart-active gauge and publishes a
// lifecycle event.
func (a *Alerter) RestartEnd(node string) {
	a.metrics.restartActive.WithLabelValues(a.labelValues(node)...).Set(0)
	a.bus.publish(node, "restart_end")
}

// ObserveRestartDuration records how long a restart attempt took.
func (a *Alerter) ObserveRestartDuration(node string, seconds float64) {
	a.metrics.restartDuration.WithLabelValues(a.labelValues(node)...).Observe(seconds)
}

// SetHeartbeat updates the heartbeat gauge and, under PUSH, ships the
// whole registry to the push gateway. It returns the push error, if any,
// so the caller can stop scheduling further heartbeats rather than
// retrying a broken gateway forever.
func (a *Alerter) SetHeartbeat() error {
	a.log.Debug("heartbeat")
	a.metrics.heartbeat.WithLabelValues(a.labelValues(a.hostname)...).Set(float64(time.Now().Unix()))

	if a.cfg.MetricsMethod == config.MetricsPush {
		a.log.Debug("pushing metrics", "url", a.cfg.PushGwURL)
		pusher := push.New(a.cfg.PushGwURL, "xrootdrestart").
			Grouping("cluster", a.clusterID).
			Gatherer(a.metrics.registry)
		if err := pusher.Push(); err != nil {
			return err
		}
	}
	return nil
}
