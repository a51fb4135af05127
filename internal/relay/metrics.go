// ABOUTME: Optional Prometheus metrics for the relay boundary.
// ABOUTME: Request outcomes, queue evictions, controller connectivity, queue depth.

package relay

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soundloop/soundloop-relay/internal/transport"
)

const (
	outcomeOK           = "ok"
	outcomeTimeout      = "timeout"
	outcomeNotConnected = "not_connected"
	outcomeError        = "error"
)

// metrics collects relay counters. All methods are nil-safe so the relay can
// run with metrics disabled.
type metrics struct {
	requests  *prometheus.CounterVec
	evictions prometheus.Counter
}

func newMetrics(adapter transport.Adapter, lp *transport.LongPollAdapter) (*metrics, http.Handler) {
	reg := prometheus.NewRegistry()

	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soundloop_relay_requests_total",
			Help: "Relayed caller requests by outcome.",
		}, []string{"outcome"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soundloop_relay_queue_evictions_total",
			Help: "Requests evicted from the outbound queue under overflow.",
		}),
	}
	reg.MustRegister(m.requests, m.evictions)

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "soundloop_relay_controller_connected",
		Help: "1 when a controller is connected, 0 otherwise.",
	}, func() float64 {
		if adapter.Connected() {
			return 1
		}
		return 0
	}))

	if lp != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "soundloop_relay_outbound_queue_length",
			Help: "Undelivered requests waiting for a controller poll.",
		}, func() float64 {
			return float64(lp.QueueLen())
		}))
	}

	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *metrics) observe(outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *metrics) evict() {
	if m == nil {
		return
	}
	m.evictions.Inc()
}
