package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	rows        *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	modelScore  *prometheus.GaugeVec
}

// New registers the pipeline collectors on the default registry. Call once
// per process.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		rows: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hoopscast_pipeline_rows_total",
				Help: "Rows produced per pipeline stage",
			},
			[]string{"stage"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hoopscast_errors_total",
				Help: "Errors by kind",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hoopscast_operation_duration_seconds",
				Help:    "Duration of pipeline operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"operation"},
		),
		modelScore: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hoopscast_model_score",
				Help: "Latest validation score of the model by metric",
			},
			[]string{"metric"},
		),
	}
}

func (r *Recorder) RecordRows(stage string, n int) {
	r.rows.WithLabelValues(stage).Add(float64(n))
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordModelScore(metric string, value float64) {
	r.modelScore.WithLabelValues(metric).Set(value)
}
