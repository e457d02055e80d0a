package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder publishes refresh cycle metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	refreshTotal    *prometheus.CounterVec
	fetchTotal      *prometheus.CounterVec
	fetchFailures   *prometheus.CounterVec
	rowsPublished   *prometheus.GaugeVec
	lastRefresh     *prometheus.GaugeVec
	refreshDuration *prometheus.HistogramVec
}

// New registers the pricewatch metrics with reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)

	return &Recorder{
		refreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_refresh_total",
				Help: "Refresh cycles by outcome",
			},
			[]string{"board", "outcome"},
		),
		fetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_fetch_total",
				Help: "Per-identifier fetches attempted",
			},
			[]string{"board"},
		),
		fetchFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_fetch_failures_total",
				Help: "Per-identifier fetches dropped from the result set",
			},
			[]string{"board", "type"},
		),
		rowsPublished: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricewatch_rows_published",
				Help: "Rows in the most recently published result set",
			},
			[]string{"board"},
		),
		lastRefresh: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricewatch_last_refresh_timestamp_seconds",
				Help: "Unix time of the most recently published result set",
			},
			[]string{"board"},
		),
		refreshDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricewatch_refresh_duration_seconds",
				Help:    "Refresh cycle duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"board"},
		),
	}
}

// Outcomes recorded by ObserveRefresh.
const (
	OutcomePublished = "published"
	OutcomeRejected  = "rejected"
	OutcomeCancelled = "cancelled"
)

// ObserveFetch counts one per-identifier fetch. failureType is empty on success.
func (r *Recorder) ObserveFetch(board, failureType string) {
	if r == nil {
		return
	}
	r.fetchTotal.WithLabelValues(board).Inc()
	if failureType != "" {
		r.fetchFailures.WithLabelValues(board, failureType).Inc()
	}
}

// ObserveRefresh records the end of a refresh cycle.
func (r *Recorder) ObserveRefresh(board, outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.refreshTotal.WithLabelValues(board, outcome).Inc()
	if outcome == OutcomePublished {
		r.refreshDuration.WithLabelValues(board).Observe(took.Seconds())
	}
}

// ObservePublished records the size and time of a published result set.
func (r *Recorder) ObservePublished(board string, rows int, at time.Time) {
	if r == nil {
		return
	}
	r.rowsPublished.WithLabelValues(board).Set(float64(rows))
	r.lastRefresh.WithLabelValues(board).Set(float64(at.Unix()))
}
