package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the ledger module.
type Metrics struct {
	DocumentsRegistered prometheus.Counter
	DocumentsVerified   prometheus.Counter
	DocumentsRejected   prometheus.Counter
	RegisterDuration    prometheus.Histogram
	AdjudicateDuration  prometheus.Histogram
}

// New creates a new Metrics instance with all ledger module metrics registered.
func New() *Metrics {
	return &Metrics{
		DocumentsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestry_documents_registered_total",
			Help: "Total number of documents registered",
		}),
		DocumentsVerified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestry_documents_verified_total",
			Help: "Total number of documents adjudicated as verified",
		}),
		DocumentsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestry_documents_rejected_total",
			Help: "Total number of documents adjudicated as rejected",
		}),
		RegisterDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attestry_register_duration_seconds",
			Help:    "Duration of document registration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		AdjudicateDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attestry_adjudicate_duration_seconds",
			Help:    "Duration of document adjudication",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementRegistered records a successful registration.
func (m *Metrics) IncrementRegistered() { m.DocumentsRegistered.Inc() }

// IncrementVerified records a verified adjudication.
func (m *Metrics) IncrementVerified() { m.DocumentsVerified.Inc() }

// IncrementRejected records a rejected adjudication.
func (m *Metrics) IncrementRejected() { m.DocumentsRejected.Inc() }

// ObserveRegister records the duration of a Register operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveRegister(start time.Time) {
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}

// ObserveAdjudicate records the duration of an Adjudicate operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveAdjudicate(start time.Time) {
	m.AdjudicateDuration.Observe(time.Since(start).Seconds())
}
