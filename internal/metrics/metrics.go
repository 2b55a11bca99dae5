// Package metrics exposes Prometheus counters for the tracker.
//
// Every method is safe to call on a nil *Collector, so components can be
// built without metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultFallback = "fallback"
	ResultRejected = "rejected"
)

// Collector holds all metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	UrgesRecorded prometheus.Counter
	MoodsLogged   prometheus.Counter
	ChatReplies   *prometheus.CounterVec
	StoreSaves    *prometheus.CounterVec
	ChatDuration  prometheus.Histogram
	HTTPRequests  *prometheus.CounterVec
}

// NewCollector creates a collector with a fresh registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		UrgesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "urges_recorded_total",
			Help:      "Total number of urge events recorded",
		}),
		MoodsLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moods_logged_total",
			Help:      "Total number of mood logs recorded",
		}),
		ChatReplies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_replies_total",
			Help:      "Assistant replies by result",
		}, []string{"result"}),
		StoreSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_saves_total",
			Help:      "Snapshot writes by result",
		}, []string{"result"}),
		ChatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_generate_duration_seconds",
			Help:      "Assistant generation latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		c.UrgesRecorded,
		c.MoodsLogged,
		c.ChatReplies,
		c.StoreSaves,
		c.ChatDuration,
		c.HTTPRequests,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// UrgeRecorded counts one appended urge event.
func (c *Collector) UrgeRecorded() {
	if c == nil {
		return
	}
	c.UrgesRecorded.Inc()
}

// MoodLogged counts one appended mood log.
func (c *Collector) MoodLogged() {
	if c == nil {
		return
	}
	c.MoodsLogged.Inc()
}

// ChatReply counts an assistant turn by result and records its latency.
func (c *Collector) ChatReply(result string, d time.Duration) {
	if c == nil {
		return
	}
	c.ChatReplies.WithLabelValues(result).Inc()
	if d > 0 {
		c.ChatDuration.Observe(d.Seconds())
	}
}

// StoreSave counts a snapshot write.
func (c *Collector) StoreSave(err error) {
	if c == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	c.StoreSaves.WithLabelValues(result).Inc()
}

// HTTPRequest counts one served request.
func (c *Collector) HTTPRequest(method, route string, status int) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
