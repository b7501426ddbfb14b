// Package metrics keeps pipeline counters on a private Prometheus registry and
// serves them with a health check on a small admin router.
package metrics

import (
	"net/http"
	"time"

	"abidenet/domain/subject"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "abidenet"

// Metrics groups the collectors every stage reports to
type Metrics struct {
	registry *prometheus.Registry

	subjects      *prometheus.CounterVec
	regressionRow *prometheus.CounterVec
	blocksScored  *prometheus.CounterVec
	significant   *prometheus.GaugeVec
	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
}

// New builds the collectors and registers them, plus the Go runtime
// collectors, on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		subjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subjects_total",
			Help:      "Subjects processed by the connectivity stage, by QC status.",
		}, []string{"status"}),
		regressionRow: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regression_rows_total",
			Help:      "Subjects entering confound regression, by row validity.",
		}, []string{"valid"}),
		blocksScored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocks_scored_total",
			Help:      "Network blocks scored, by block type and score kind.",
		}, []string{"type", "kind"}),
		significant: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "significant_tests",
			Help:      "Tests significant after multiple-comparison correction in the last run, by family.",
		}, []string{"family"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"stage"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Pipeline stages that returned an error.",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.subjects, m.regressionRow, m.blocksScored,
		m.significant, m.stageDuration, m.stageFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the private registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveQC counts a connectivity ledger by status
func (m *Metrics) ObserveQC(ledger []subject.QCEntry) {
	for status, n := range subject.CountByStatus(ledger) {
		m.subjects.WithLabelValues(string(status)).Add(float64(n))
	}
}

// ObserveRegression counts valid and invalid design rows
func (m *Metrics) ObserveRegression(valid, invalid int) {
	m.regressionRow.WithLabelValues("true").Add(float64(valid))
	m.regressionRow.WithLabelValues("false").Add(float64(invalid))
}

// ObserveBlock counts one scored block
func (m *Metrics) ObserveBlock(blockType, kind string) {
	m.blocksScored.WithLabelValues(blockType, kind).Inc()
}

// SetSignificant records the significant count of one test family
func (m *Metrics) SetSignificant(family string, n int) {
	m.significant.WithLabelValues(family).Set(float64(n))
}

// ObserveStage records a stage's duration and whether it failed
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if err != nil {
		m.stageFailures.WithLabelValues(stage).Inc()
	}
}

// Router serves /metrics from the private registry and /healthz
func (m *Metrics) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return r
}
