package alerter

import (
	"github.com/gridpp-storage/xrootdrestart/pkg/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// bucketSize is the histogram bucket width, in seconds, used for the
// restart-duration histogram.
const bucketSize = 15

type metricSet struct {
	registry *prometheus.Registry

	heartbeat            *prometheus.GaugeVec
	restartActive        *prometheus.GaugeVec
	startTime            *prometheus.GaugeVec
	restartAlertState    *prometheus.GaugeVec
	connectAlertState    *prometheus.GaugeVec
	insufficientAlertVec *prometheus.GaugeVec
	restartDuration      *prometheus.HistogramVec
}

// durationBuckets derives histogram buckets from the gap between
// stopping cmsd and the worst-case service wait, the same way the
// window between cmsd_wait and 2*service_timeout is bucketed upstream.
func durationBuckets(cmsdWait, serviceTimeout int) []float64 {
	start := (cmsdWait / bucketSize) * bucketSize
	end := ((cmsdWait + 2*serviceTimeout + bucketSize) / bucketSize) * bucketSize

	var buckets []float64
	for x := start; x < end; x += bucketSize {
		buckets = append(buckets, float64(x))
	}
	if len(buckets) == 0 {
		buckets = []float64{float64(bucketSize)}
	}
	return buckets
}

func newMetricSet(cfg *config.Config) *metricSet {
	registry := prometheus.NewRegistry()
	labels := []string{"node"}
	if cfg.MetricsMethod == config.MetricsPush {
		labels = []string{"node", "cluster"}
	}

	factory := promauto.With(registry)
	buckets := durationBuckets(cfg.CmsdWait, cfg.ServiceTimeout)

	return &metricSet{
		registry: registry,
		heartbeat: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xrootdrestart_heartbeat",
			Help: "xrootdrestart heartbeat, updated every heartbeat interval",
		}, labels),
		restartActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xrootdrestart_restart_active",
			Help: "State of the service restart on a node. 1=Restart Active, 0=Idle",
		}, labels),
		startTime: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xrootdrestart_start_time",
			Help: "Time when xrootdrestart started restarting a server",
		}, labels),
		restartAlertState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xrootdrestart_restart_alert_state",
			Help: "State of the restart alert for a node. 1=Alert, 0=No Alert",
		}, labels),
		connectAlertState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xrootdrestart_connect_alert_state",
			Help: "Unable to connect alert state. 1=Alert, 0=No Alert",
		}, labels),
		insufficientAlertVec: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "xrootdrestart_insufficient_alert_state",
			Help: "State of the alert indicating there are insufficient servers to continue restarting. 1=Alert, 0=No Alert",
		}, labels),
		restartDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "xrootdrestart_restart_duration_seconds",
			Help:    "How long it took to restart a server",
			Buckets: buckets,
		}, labels),
	}
}
