package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the access module.
type Metrics struct {
	VerifiersAdded   prometheus.Counter
	VerifiersRemoved prometheus.Counter
	OwnerTransfers   prometheus.Counter
}

// New creates a new Metrics instance with all access module metrics registered.
func New() *Metrics {
	return &Metrics{
		VerifiersAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestry_verifiers_added_total",
			Help: "Total number of verifier grant/reactivate operations",
		}),
		VerifiersRemoved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestry_verifiers_removed_total",
			Help: "Total number of verifier revocations",
		}),
		OwnerTransfers: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attestry_owner_transfers_total",
			Help: "Total number of owner capability transfers",
		}),
	}
}

// IncrementVerifiersAdded records a successful verifier grant.
func (m *Metrics) IncrementVerifiersAdded() { m.VerifiersAdded.Inc() }

// IncrementVerifiersRemoved records a successful verifier revocation.
func (m *Metrics) IncrementVerifiersRemoved() { m.VerifiersRemoved.Inc() }

// IncrementOwnerTransfers records an owner capability transfer.
func (m *Metrics) IncrementOwnerTransfers() { m.OwnerTransfers.Inc() }
