package export

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for the export pipeline.
type Metrics struct {
	exports  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pages    prometheus.Histogram
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the export metrics against registerer. A nil
// registerer uses the default Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker instruments a single export run.
type Tracker struct {
	metrics *Metrics
	start   time.Time
}

// Track starts a tracker.
func (m *Metrics) Track() *Tracker {
	return &Tracker{metrics: m, start: time.Now()}
}

// End records the outcome and returns err untouched.
func (t *Tracker) End(pages int, err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		if stage := StageOf(err); stage != "" {
			status = string(stage)
		}
		if errors.Is(err, ErrBusy) {
			status = "busy"
		}
	}
	t.metrics.exports.WithLabelValues(status).Inc()
	t.metrics.duration.WithLabelValues(status).Observe(time.Since(t.start).Seconds())
	if err == nil && pages > 0 {
		t.metrics.pages.Observe(float64(pages))
	}
	return err
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	exports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "resumail_exports_total",
		Help: "PDF exports partitioned by outcome.",
	}, []string{"status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "resumail_export_duration_seconds",
		Help:    "Duration in seconds of PDF exports.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"status"})
	pages := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "resumail_export_pages",
		Help:    "Page count of generated PDFs.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
	})
	registerer.MustRegister(exports, duration, pages)
	return &Metrics{exports: exports, duration: duration, pages: pages}
}
