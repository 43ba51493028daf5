// Package costs tracks per-service cost estimates for external calls. The
// orchestrator reads per-run totals into the result metrics; Prometheus
// counters expose the same numbers process-wide for billing/alerting.
package costs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder is the write side handed to external clients.
type Recorder interface {
	Record(service string, costEstimate float64)
}

// Ledger accumulates cost estimates per service.
type Ledger struct {
	mu     sync.Mutex
	totals map[string]float64

	costCounter *prometheus.CounterVec
	callCounter *prometheus.CounterVec
}

// NewLedger registers the pipeline cost metrics on reg (pass nil to skip
// registration, e.g. in tests).
func NewLedger(reg prometheus.Registerer) *Ledger {
	l := &Ledger{
		totals: map[string]float64{},
		costCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conceptmap_external_cost_estimate_total",
			Help: "Estimated spend per external service.",
		}, []string{"service"}),
		callCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "conceptmap_external_calls_total",
			Help: "External service calls issued by the pipeline.",
		}, []string{"service"}),
	}
	if reg != nil {
		reg.MustRegister(l.costCounter, l.callCounter)
	}
	return l
}

func (l *Ledger) Record(service string, costEstimate float64) {
	if l == nil || service == "" {
		return
	}
	if costEstimate < 0 {
		costEstimate = 0
	}
	l.mu.Lock()
	l.totals[service] += costEstimate
	l.mu.Unlock()
	l.costCounter.WithLabelValues(service).Add(costEstimate)
	l.callCounter.WithLabelValues(service).Inc()
}

// Totals returns a copy of the accumulated per-service totals.
func (l *Ledger) Totals() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.totals))
	for k, v := range l.totals {
		out[k] = v
	}
	return out
}

// Reset clears the run-scoped totals; Prometheus counters keep accumulating.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.totals = map[string]float64{}
}
