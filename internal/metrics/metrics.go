package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rccstake"

// Read outcomes
const (
	ReadOK           = "ok"
	ReadError        = "error"
	ReadInconsistent = "inconsistent"
	ReadStale        = "discarded"
)

// Collector holds the client's Prometheus metrics in a dedicated registry so
// they do not collide with anything registered on the global default.
// All methods are safe on a nil *Collector, which records nothing.
type Collector struct {
	registry *prometheus.Registry

	positionReads   *prometheus.CounterVec
	readDuration    prometheus.Histogram
	submissions     *prometheus.CounterVec
	terminalTx      *prometheus.CounterVec
	confirmLatency  *prometheus.HistogramVec
	pendingSlots    *prometheus.GaugeVec
	wsClients       prometheus.Gauge
	accountSwitches prometheus.Counter
}

// NewCollector creates and registers all metrics.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		positionReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "position_reads_total",
			Help:      "Position reads by outcome.",
		}, []string{"outcome"}),
		readDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "position_read_duration_seconds",
			Help:      "Latency of the two-view position read.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_submissions_total",
			Help:      "Submission attempts by action and outcome.",
		}, []string{"kind", "outcome"}),
		terminalTx: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_terminal_total",
			Help:      "Tracked transactions reaching a terminal status.",
		}, []string{"kind", "status"}),
		confirmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tx_confirmation_seconds",
			Help:      "Time from hash to confirmed receipt.",
			Buckets:   []float64{5, 12, 24, 48, 96, 180, 300},
		}, []string{"kind"}),
		pendingSlots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_slots",
			Help:      "1 while an action slot holds a non-terminal transaction.",
		}, []string{"kind"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_clients",
			Help:      "Connected WebSocket feed clients.",
		}),
		accountSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_switches_total",
			Help:      "Account changes observed by the position store.",
		}),
	}

	reg.MustRegister(
		c.positionReads,
		c.readDuration,
		c.submissions,
		c.terminalTx,
		c.confirmLatency,
		c.pendingSlots,
		c.wsClients,
		c.accountSwitches,
		collectors.NewGoCollector(),
	)
	return c
}

// Registry exposes the registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordRead(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.positionReads.WithLabelValues(outcome).Inc()
	if outcome == ReadOK || outcome == ReadInconsistent {
		c.readDuration.Observe(d.Seconds())
	}
}

func (c *Collector) RecordSubmission(kind, outcome string) {
	if c == nil {
		return
	}
	c.submissions.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) RecordTerminal(kind, status string, sincePending time.Duration) {
	if c == nil {
		return
	}
	c.terminalTx.WithLabelValues(kind, status).Inc()
	if status == "confirmed" {
		c.confirmLatency.WithLabelValues(kind).Observe(sincePending.Seconds())
	}
}

func (c *Collector) SetPending(kind string, pending bool) {
	if c == nil {
		return
	}
	v := 0.0
	if pending {
		v = 1
	}
	c.pendingSlots.WithLabelValues(kind).Set(v)
}

func (c *Collector) FeedClientConnected() {
	if c == nil {
		return
	}
	c.wsClients.Inc()
}

func (c *Collector) FeedClientDisconnected() {
	if c == nil {
		return
	}
	c.wsClients.Dec()
}

func (c *Collector) RecordAccountSwitch() {
	if c == nil {
		return
	}
	c.accountSwitches.Inc()
}
