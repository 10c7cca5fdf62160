package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	batchesTotal  prometheus.Counter
	symbolsInBand prometheus.Histogram
	alertsTotal   *prometheus.CounterVec
	signalsTotal  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		batchesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "pulsescan_ticker_batches_total",
				Help: "Total number of ticker batches ingested",
			},
		),
		symbolsInBand: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pulsescan_ticker_batch_symbols",
				Help:    "Symbols per ingested ticker batch",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsescan_alerts_total",
				Help: "Total number of detector alerts emitted",
			},
			[]string{"detector"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsescan_signals_total",
				Help: "Total number of fused signals emitted",
			},
			[]string{"direction"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pulsescan_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pulsescan_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pulsescan_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordBatchIngested records one absorbed ticker batch.
func (r *Recorder) RecordBatchIngested(symbols int) {
	r.batchesTotal.Inc()
	r.symbolsInBand.Observe(float64(symbols))
}

// RecordAlert records an alert emitted by a detector.
func (r *Recorder) RecordAlert(detector string) {
	r.alertsTotal.WithLabelValues(detector).Inc()
}

// RecordSignal records an emitted fused signal.
func (r *Recorder) RecordSignal(direction string) {
	r.signalsTotal.WithLabelValues(direction).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
