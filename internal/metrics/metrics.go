// ABOUTME: Prometheus instrumentation for the agent pool
// ABOUTME: Gauges read live registry counts; counters track reloads, logins and logouts

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/agentpool/internal/agent"
)

const namespace = "agentpool"

// Login results
const (
	LoginOK            = "ok"
	LoginNotFound      = "not_found"
	LoginUnavailable   = "unavailable"
	LoginLimitExceeded = "limit_exceeded"
	LoginBadPassword   = "bad_password"
)

// CountSource supplies live agent counts.
type CountSource interface {
	Counts() agent.Counts
}

// Collector owns a private Prometheus registry for the pool's metrics.
type Collector struct {
	registry *prometheus.Registry

	reloads           *prometheus.CounterVec
	reconcileChanges  *prometheus.CounterVec
	reconcileDuration prometheus.Histogram
	logins            *prometheus.CounterVec
	logouts           *prometheus.CounterVec
	subscribers       prometheus.Gauge
}

// New creates a Collector whose agent gauges read from src on every scrape.
func New(src CountSource) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Agents file reloads by result.",
		}, []string{"result"}),
		reconcileChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_changes_total",
			Help:      "Records changed by reconciliation, by kind.",
		}, []string{"kind"}),
		reconcileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Time spent merging a snapshot into the registry.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logouts_total",
			Help:      "Logouts by kind.",
		}, []string{"kind"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Open device state event streams.",
		}),
	}

	gauge := func(name, help string, read func(agent.Counts) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(read(src.Counts()))
		})
	}

	c.registry.MustRegister(
		c.reloads,
		c.reconcileChanges,
		c.reconcileDuration,
		c.logins,
		c.logouts,
		c.subscribers,
		gauge("agents_registered", "Agent records in the registry.", func(n agent.Counts) int { return n.Registered }),
		gauge("agents_logged_in", "Agents with an active session.", func(n agent.Counts) int { return n.LoggedIn }),
		gauge("agents_dead", "Logged in agents no longer present in configuration.", func(n agent.Counts) int { return n.Dead }),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveReload records a successful reload and its reconciliation result.
func (c *Collector) ObserveReload(r agent.ReconcileResult) {
	c.reloads.WithLabelValues("success").Inc()
	c.reconcileDuration.Observe(r.Duration.Seconds())
	c.reconcileChanges.WithLabelValues("added").Add(float64(r.Added))
	c.reconcileChanges.WithLabelValues("removed").Add(float64(r.Removed))
	c.reconcileChanges.WithLabelValues("deferred").Add(float64(r.Deferred))
	c.reconcileChanges.WithLabelValues("resurrected").Add(float64(r.Resurrected))
	c.reconcileChanges.WithLabelValues("skipped").Add(float64(len(r.Skipped)))
}

// ObserveReloadFailure records a reload rejected before reconciliation.
func (c *Collector) ObserveReloadFailure() {
	c.reloads.WithLabelValues("failure").Inc()
}

// ObserveLogin records a login attempt with one of the Login* results.
func (c *Collector) ObserveLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// ObserveLogout records a logout.
func (c *Collector) ObserveLogout(soft bool) {
	kind := "hard"
	if soft {
		kind = "soft"
	}
	c.logouts.WithLabelValues(kind).Inc()
}

// SubscriberAdded and SubscriberRemoved track open event streams.
func (c *Collector) SubscriberAdded() { c.subscribers.Inc() }

func (c *Collector) SubscriberRemoved() { c.subscribers.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Timeout: 10 * time.Second,
	})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
