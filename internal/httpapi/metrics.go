package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/John-Robertt/subtagger/internal/tagging"
)

// metricsSet lives on a per-handler registry so tests and multiple handlers
// in one process never share counters.
type metricsSet struct {
	registry *prometheus.Registry

	requests      *prometheus.CounterVec
	appErrors     *prometheus.CounterVec
	batches       *prometheus.CounterVec
	nodes         *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

func newMetrics(reg *prometheus.Registry) *metricsSet {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &metricsSet{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtagger_http_requests_total",
			Help: "HTTP requests by ServeMux pattern and status.",
		}, []string{"pattern", "status"}),
		appErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtagger_app_errors_total",
			Help: "Application errors returned to clients.",
		}, []string{"stage", "code"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtagger_batches_total",
			Help: "Tagging batches by probe table status.",
		}, []string{"status"}),
		nodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subtagger_nodes_total",
			Help: "Nodes processed by outcome.",
		}, []string{"result"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "subtagger_batch_duration_seconds",
			Help:    "Time spent tagging one batch, probe fetch included.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.requests, m.appErrors, m.batches, m.nodes, m.batchDuration)
	return m
}

func (m *metricsSet) incRequest(pattern string, status int) {
	if status == 0 {
		status = http.StatusOK
	}
	if pattern == "" {
		pattern = "(unknown)"
	}
	m.requests.WithLabelValues(pattern, strconv.Itoa(status)).Inc()
}

func (m *metricsSet) incAppError(stage, code string) {
	stage = strings.TrimSpace(stage)
	code = strings.TrimSpace(code)
	if stage == "" {
		stage = "(unknown)"
	}
	if code == "" {
		code = "(unknown)"
	}
	m.appErrors.WithLabelValues(stage, code).Inc()
}

func (m *metricsSet) observeBatch(rep tagging.Report, seconds float64) {
	m.batches.WithLabelValues(rep.Status.String()).Inc()
	m.batchDuration.Observe(seconds)
	for result, n := range map[string]int{
		"tagged":    rep.Tagged,
		"unchanged": rep.Unchanged,
		"missing":   rep.Missing,
		"malformed": rep.Malformed,
	} {
		if n > 0 {
			m.nodes.WithLabelValues(result).Add(float64(n))
		}
	}
}

func (m *metricsSet) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
