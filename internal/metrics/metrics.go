// Package metrics counts synchronisation events with Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives synchronisation events. Components hold a Recorder and
// default to Nop.
type Recorder interface {
	RecordSnapshot(subscription string)
	RecordArbitrationLoss()
	RecordStaleSessionDelete(ok bool)
	RecordNotificationShown()
	RecordRefresh(outcome string)
	RecordRefreshLatency(d time.Duration)
	RecordBackfillPatch(ok bool)
	RecordSendFailure()
}

// Refresh outcomes.
const (
	RefreshFetched  = "fetched"
	RefreshDeferred = "deferred"
	RefreshInFlight = "in_flight"
	RefreshFailed   = "failed"
)

// Nop discards every event.
type Nop struct{}

var _ Recorder = Nop{}

func (Nop) RecordSnapshot(string) {}
func (Nop) RecordArbitrationLoss() {}
func (Nop) RecordStaleSessionDelete(bool) {}
func (Nop) RecordNotificationShown() {}
func (Nop) RecordRefresh(string) {}
func (Nop) RecordRefreshLatency(time.Duration) {}
func (Nop) RecordBackfillPatch(bool) {}
func (Nop) RecordSendFailure() {}

// Collector is the Prometheus Recorder.
type Collector struct {
	snapshots       *prometheus.CounterVec
	arbitrationLoss prometheus.Counter
	staleDeletes    *prometheus.CounterVec
	notifications   prometheus.Counter
	refreshes       *prometheus.CounterVec
	refreshLatency  prometheus.Histogram
	backfills       *prometheus.CounterVec
	sendFailures    prometheus.Counter
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tandem_snapshots_total",
			Help: "Snapshots applied, by subscription.",
		}, []string{"subscription"}),
		arbitrationLoss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tandem_arbitration_losses_total",
			Help: "Sessions signed out because a newer session exists.",
		}),
		staleDeletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tandem_stale_session_deletes_total",
			Help: "Deletes of stale session records, by result.",
		}, []string{"result"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tandem_notifications_shown_total",
			Help: "Local notifications shown.",
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tandem_reminder_refreshes_total",
			Help: "Reminder refresh calls, by outcome.",
		}, []string{"outcome"}),
		refreshLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tandem_reminder_refresh_seconds",
			Help:    "Latency of reminder count fetches.",
			Buckets: prometheus.DefBuckets,
		}),
		backfills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tandem_backfill_patches_total",
			Help: "Participant organisation backfill writes, by result.",
		}, []string{"result"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tandem_send_failures_total",
			Help: "Messages that failed to send.",
		}),
	}

	reg.MustRegister(
		c.snapshots,
		c.arbitrationLoss,
		c.staleDeletes,
		c.notifications,
		c.refreshes,
		c.refreshLatency,
		c.backfills,
		c.sendFailures,
	)

	return c
}

// RecordSnapshot counts one applied snapshot.
func (c *Collector) RecordSnapshot(subscription string) {
	c.snapshots.WithLabelValues(subscription).Inc()
}

// RecordArbitrationLoss counts a forced sign-out.
func (c *Collector) RecordArbitrationLoss() {
	c.arbitrationLoss.Inc()
}

// RecordStaleSessionDelete counts a cleanup delete.
func (c *Collector) RecordStaleSessionDelete(ok bool) {
	c.staleDeletes.WithLabelValues(result(ok)).Inc()
}

// RecordNotificationShown counts a shown notification.
func (c *Collector) RecordNotificationShown() {
	c.notifications.Inc()
}

// RecordRefresh counts a refresh call by outcome.
func (c *Collector) RecordRefresh(outcome string) {
	c.refreshes.WithLabelValues(outcome).Inc()
}

// RecordRefreshLatency observes one fetch.
func (c *Collector) RecordRefreshLatency(d time.Duration) {
	c.refreshLatency.Observe(d.Seconds())
}

// RecordBackfillPatch counts a backfill write.
func (c *Collector) RecordBackfillPatch(ok bool) {
	c.backfills.WithLabelValues(result(ok)).Inc()
}

// RecordSendFailure counts a failed send.
func (c *Collector) RecordSendFailure() {
	c.sendFailures.Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewServeMux returns a mux serving /metrics.
func NewServeMux(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
