// Package metrics exposes pipeline counters and session gauges to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/store"
)

// Metrics holds the pipeline instruments and the registry they live in.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration  *prometheus.HistogramVec
	keywords       *prometheus.GaugeVec
	detected       *prometheus.CounterVec
	removed        prometheus.Counter
	viewRows       *prometheus.GaugeVec
	classified     *prometheus.CounterVec
	classifyTokens *prometheus.CounterVec
}

// New creates a registry with the Go runtime collectors and the pipeline
// instruments registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keyword_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		keywords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keyword_table_rows",
			Help: "Rows in the most recent table produced by each stage",
		}, []string{"stage"}),
		detected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyword_cleaning_detected_total",
			Help: "Keywords detected by cleaning category, removed or not",
		}, []string{"category"}),
		removed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keyword_cleaning_removed_total",
			Help: "Rows removed by cleaning",
		}),
		viewRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "keyword_view_rows",
			Help: "Rows in each generated view",
		}, []string{"view"}),
		classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyword_classifications_total",
			Help: "Classification outcomes",
		}, []string{"outcome"}),
		classifyTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keyword_classify_tokens_total",
			Help: "Tokens consumed by classification",
		}, []string{"direction"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.stageDuration, m.keywords, m.detected, m.removed, m.viewRows, m.classified, m.classifyTokens,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveStage records how long a stage took and how many rows it produced.
func (m *Metrics) ObserveStage(stage string, start time.Time, rows int) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	m.keywords.WithLabelValues(stage).Set(float64(rows))
}

// AddDetected counts keywords a cleaning category matched. A keyword can
// match several categories.
func (m *Metrics) AddDetected(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.detected.WithLabelValues(category).Add(float64(n))
}

// AddRemoved counts rows dropped by a cleaning pass.
func (m *Metrics) AddRemoved(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.removed.Add(float64(n))
}

// SetView records the row count of a generated view.
func (m *Metrics) SetView(name string, rows int) {
	if m == nil {
		return
	}
	m.viewRows.WithLabelValues(name).Set(float64(rows))
}

// AddClassified counts classification outcomes ("succeeded", "failed").
func (m *Metrics) AddClassified(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.classified.WithLabelValues(outcome).Add(float64(n))
}

// AddTokens counts classification token usage.
func (m *Metrics) AddTokens(input, output int64) {
	if m == nil {
		return
	}
	m.classifyTokens.WithLabelValues("input").Add(float64(input))
	m.classifyTokens.WithLabelValues("output").Add(float64(output))
}

// SessionLister is the part of the store the session collector reads.
type SessionLister interface {
	ListSessions(ctx context.Context, filter store.SessionFilter) ([]model.SessionSummary, error)
}

var sessionsDesc = prometheus.NewDesc(
	"keyword_sessions",
	"Stored sessions by stage",
	[]string{"stage"},
	nil,
)

// SessionCollector reads session counts from the store on each scrape.
type SessionCollector struct {
	store SessionLister
	limit int
}

// NewSessionCollector returns a collector over st. Listing is capped at limit
// sessions per scrape.
func NewSessionCollector(st SessionLister, limit int) *SessionCollector {
	if limit <= 0 {
		limit = 1000
	}
	return &SessionCollector{store: st, limit: limit}
}

// Describe sends the metric descriptor to the channel.
func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- sessionsDesc
}

// Collect lists sessions and emits one gauge per stage.
func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sessions, err := c.store.ListSessions(ctx, store.SessionFilter{Limit: c.limit})
	if err != nil {
		zap.L().Error("metrics: collect sessions", zap.Error(err))
		return
	}
	counts := make(map[model.Stage]int)
	for _, s := range sessions {
		counts[s.Stage]++
	}
	for stage, n := range counts {
		ch <- prometheus.MustNewConstMetric(sessionsDesc, prometheus.GaugeValue, float64(n), string(stage))
	}
}

// WatchSessions registers a SessionCollector over st.
func (m *Metrics) WatchSessions(st SessionLister) error {
	return m.registry.Register(NewSessionCollector(st, 0))
}
