package batch

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result status label values.
const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics records batch activity in a private prometheus registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	items        *prometheus.CounterVec
	attempts     prometheus.Counter
	retries      prometheus.Counter
	itemDuration prometheus.Histogram
}

// NewMetrics creates and registers the batch collectors. tool is attached as a
// constant label so textfiles from different tools can share a directory.
func NewMetrics(tool string) *Metrics {
	labels := prometheus.Labels{"tool": tool}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "endokit",
			Subsystem:   "batch",
			Name:        "items_total",
			Help:        "Items completed, by final status.",
			ConstLabels: labels,
		}, []string{"status"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "endokit",
			Subsystem:   "batch",
			Name:        "call_attempts_total",
			Help:        "External calls issued, including retries.",
			ConstLabels: labels,
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "endokit",
			Subsystem:   "batch",
			Name:        "retries_total",
			Help:        "Backoff waits taken before a retry.",
			ConstLabels: labels,
		}),
		itemDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "endokit",
			Subsystem:   "batch",
			Name:        "item_duration_seconds",
			Help:        "Wall time spent processing one item, retries included.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	m.registry.MustRegister(m.items, m.attempts, m.retries, m.itemDuration)
	return m
}

// Registry exposes the underlying registry for tests and exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current metric values in the text exposition format
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

func (m *Metrics) attempt() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

func (m *Metrics) retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) observeDuration(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.itemDuration.Observe(elapsed.Seconds())
}

// countFinal records the final status of every item once a run is over, so
// items rescued by the retry pass are counted once, as successes.
func (m *Metrics) countFinal(results map[string]Result) {
	if m == nil {
		return
	}
	for _, res := range results {
		status := statusSuccess
		if res.Failed() {
			status = statusFailure
		}
		m.items.WithLabelValues(status).Inc()
	}
}
