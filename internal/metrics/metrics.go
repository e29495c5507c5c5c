// Package metrics holds the Prometheus collectors of the voice client.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicechat"

// Media acquisition outcomes.
const (
	MediaGranted = "granted"
	MediaDenied  = "denied"
	MediaFailed  = "failed"
)

// Signaling directions.
const (
	DirIn  = "in"
	DirOut = "out"
)

type Metrics struct {
	reg *prometheus.Registry

	mediaAttempts *prometheus.CounterVec
	peers         prometheus.Gauge
	transitions   *prometheus.CounterVec
	peerErrors    *prometheus.CounterVec
	signal        *prometheus.CounterVec
	reconnects    prometheus.Counter
	stalls        prometheus.Counter
	playPackets   *prometheus.CounterVec
	playBytes     *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		mediaAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "media_acquire_attempts_total",
			Help:      "Local capture attempts by outcome.",
		}, []string{"result"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Peer connections currently registered.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiation_transitions_total",
			Help:      "Negotiation state transitions by role and target state.",
		}, []string{"role", "state"}),
		peerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_errors_total",
			Help:      "Negotiation failures by operation.",
		}, []string{"op"}),
		signal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_messages_total",
			Help:      "Relay messages by direction and event.",
		}, []string{"dir", "event"}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_reconnects_total",
			Help:      "Relay reconnections.",
		}),
		stalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "negotiation_stalls_total",
			Help:      "Peers that did not reach stable in time.",
		}),
		playPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playout_packets_total",
			Help:      "Remote RTP packets played out, by media kind.",
		}, []string{"kind"}),
		playBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playout_bytes_total",
			Help:      "Remote RTP payload bytes played out, by media kind.",
		}, []string{"kind"}),
	}
	m.reg.MustRegister(
		m.mediaAttempts, m.peers, m.transitions, m.peerErrors,
		m.signal, m.reconnects, m.stalls, m.playPackets, m.playBytes,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) MediaAttempt(result string) {
	if m == nil {
		return
	}
	m.mediaAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.peers.Set(float64(n))
}

func (m *Metrics) Transition(role, state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(role, state).Inc()
}

func (m *Metrics) PeerError(op string) {
	if m == nil {
		return
	}
	m.peerErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) Signal(dir, event string) {
	if m == nil {
		return
	}
	m.signal.WithLabelValues(dir, event).Inc()
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) Stall() {
	if m == nil {
		return
	}
	m.stalls.Inc()
}

func (m *Metrics) Playout(kind string, bytes int) {
	if m == nil {
		return
	}
	m.playPackets.WithLabelValues(kind).Inc()
	m.playBytes.WithLabelValues(kind).Add(float64(bytes))
}
