package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/g960059/puppeteer/internal/model"
)

type Metrics struct {
	submitted   *prometheus.CounterVec
	acks        *prometheus.CounterVec
	ignoredAcks prometheus.Counter
	resyncs     *prometheus.CounterVec
	pending     prometheus.Gauge
	status      *prometheus.GaugeVec
}

var (
	once     sync.Once
	registry *Metrics
)

var statuses = []model.Status{
	model.StatusIdle,
	model.StatusAwaitingAck,
	model.StatusTimedOut,
	model.StatusNeedsResync,
}

func Puppeteer() *Metrics {
	once.Do(func() {
		registry = &Metrics{
			submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "puppeteer_instructions_submitted_total",
				Help: "Instructions dispatched to the remote chain by kind.",
			}, []string{"kind"}),
			acks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "puppeteer_acks_total",
				Help: "Channel events matched to a pending ledger entry by outcome.",
			}, []string{"outcome"}),
			ignoredAcks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "puppeteer_acks_ignored_total",
				Help: "Channel events for sequences with no pending ledger entry.",
			}),
			resyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "puppeteer_resyncs_total",
				Help: "Confirmed snapshot replacements by source.",
			}, []string{"source"}),
			pending: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "puppeteer_pending_transfers",
				Help: "Ledger entries currently awaiting a channel event.",
			}),
			status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "puppeteer_status",
				Help: "Current reconciliation status (1 for the active status).",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			registry.submitted,
			registry.acks,
			registry.ignoredAcks,
			registry.resyncs,
			registry.pending,
			registry.status,
		)
	})
	return registry
}

func (m *Metrics) ObserveSubmitted(kind model.InstructionKind) {
	if m == nil {
		return
	}
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	m.submitted.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveAck(outcome model.AckOutcome) {
	if m == nil {
		return
	}
	label := string(outcome)
	if label == "" {
		label = "unknown"
	}
	m.acks.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveIgnoredAck() {
	if m == nil {
		return
	}
	m.ignoredAcks.Inc()
}

func (m *Metrics) ObserveResync(source string) {
	if m == nil {
		return
	}
	m.resyncs.WithLabelValues(source).Inc()
}

// SetState publishes the pending count and flips the status gauge.
func (m *Metrics) SetState(status model.Status, pending int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	for _, s := range statuses {
		v := 0.0
		if s == status {
			v = 1
		}
		m.status.WithLabelValues(string(s)).Set(v)
	}
}
