package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cycle_tracker"

// Exporter exposes service metrics in Prometheus format.
type Exporter struct {
	registry *prometheus.Registry

	predictions        *prometheus.CounterVec
	predictionConf     prometheus.Histogram
	predictionDuration prometheus.Histogram
	logsWritten        *prometheus.CounterVec
}

// NewExporter creates an Exporter with its own registry. Go runtime and
// process collectors are registered alongside the service metrics.
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()

	e := &Exporter{
		registry: registry,
		predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "predictions_total",
				Help:      "Total number of cycle predictions by path",
			},
			[]string{"path"},
		),
		predictionConf: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_confidence",
				Help:      "Confidence of produced predictions",
				Buckets:   []float64{0.5, 0.6, 0.7, 0.8, 0.9, 0.95},
			},
		),
		predictionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_duration_seconds",
				Help:      "Time spent loading logs and predicting",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		logsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logs_written_total",
				Help:      "Daily log writes by operation",
			},
			[]string{"op"},
		),
	}

	registry.MustRegister(
		e.predictions,
		e.predictionConf,
		e.predictionDuration,
		e.logsWritten,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return e
}

// ObservePrediction records a finished prediction.
func (e *Exporter) ObservePrediction(path string, confidence float64, elapsed time.Duration) {
	e.predictions.WithLabelValues(path).Inc()
	e.predictionConf.Observe(confidence)
	e.predictionDuration.Observe(elapsed.Seconds())
}

// ObserveLogWrite counts a daily log upsert or delete.
func (e *Exporter) ObserveLogWrite(op string, n int) {
	e.logsWritten.WithLabelValues(op).Add(float64(n))
}

// Registry returns the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns an http.Handler serving the registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}
