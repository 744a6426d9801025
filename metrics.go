package microocpp

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/microocpp-go/engine/internal/interfaces"
)

// Metrics exports the engine's request/queue activity as Prometheus
// collectors, grounded in the teacher's atomic-counter Metrics struct but
// swapping hand-rolled atomics for prometheus/client_golang collectors —
// the domain dependency SPEC_FULL.md §0 wires in for this concern.
type Metrics struct {
	requestsSent      *prometheus.CounterVec
	requestsCompleted *prometheus.CounterVec
	requestsTimedOut  *prometheus.CounterVec
	requestLatency    *prometheus.HistogramVec
	queueDepth        *prometheus.GaugeVec
	transactionsDone  prometheus.Counter
}

// NewMetrics creates a Metrics registered against reg. Pass
// prometheus.NewRegistry() for an isolated registry (tests) or
// prometheus.DefaultRegisterer to expose via the process-wide /metrics
// handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microocpp_requests_sent_total",
			Help: "Operation Calls sent by action type.",
		}, []string{"action"}),
		requestsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microocpp_requests_completed_total",
			Help: "Operation Calls that received a reply, by action type and outcome.",
		}, []string{"action", "success"}),
		requestsTimedOut: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "microocpp_requests_timed_out_total",
			Help: "Operation Calls that exceeded their TimeoutPeriod, by action type.",
		}, []string{"action"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "microocpp_request_latency_seconds",
			Help:    "Round-trip latency between CreateRequest and a settled reply.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "microocpp_queue_depth",
			Help: "Number of Requests currently waiting in a given Queue.",
		}, []string{"queue"}),
		transactionsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "microocpp_transactions_completed_total",
			Help: "StartTransaction/StopTransaction pairs that both settled.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.requestsSent, m.requestsCompleted, m.requestsTimedOut, m.requestLatency, m.queueDepth, m.transactionsDone)
	}
	return m
}

// ObserveRequestSent implements interfaces.Observer.
func (m *Metrics) ObserveRequestSent(operationType string) {
	m.requestsSent.WithLabelValues(operationType).Inc()
}

// ObserveRequestCompleted implements interfaces.Observer.
func (m *Metrics) ObserveRequestCompleted(operationType string, latencyNs uint64, success bool) {
	m.requestsCompleted.WithLabelValues(operationType, boolLabel(success)).Inc()
	m.requestLatency.WithLabelValues(operationType).Observe(float64(latencyNs) / 1e9)
}

// ObserveRequestTimeout implements interfaces.Observer.
func (m *Metrics) ObserveRequestTimeout(operationType string) {
	m.requestsTimedOut.WithLabelValues(operationType).Inc()
}

// ObserveQueueDepth implements interfaces.Observer.
func (m *Metrics) ObserveQueueDepth(queueName string, depth int) {
	m.queueDepth.WithLabelValues(queueName).Set(float64(depth))
}

// TransactionCompleted increments the paired Start/Stop counter; called by
// ChargePoint's TxNotification sink on EventStopTx (S7 of SPEC_FULL.md §8).
func (m *Metrics) TransactionCompleted() {
	m.transactionsDone.Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

var _ interfaces.Observer = (*Metrics)(nil)
