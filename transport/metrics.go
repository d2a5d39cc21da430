package transport

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks transport statistics. Counts are kept twice: atomic
// mirrors feed the status page snapshot, prometheus counters feed the
// /metrics endpoint once Register has been called.
type Metrics struct {
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	sendErrors      atomic.Uint64
	receiveErrors   atomic.Uint64
	rateLimited     atomic.Uint64

	promPacketsSent     prometheus.Counter
	promPacketsReceived prometheus.Counter
	promBytesSent       prometheus.Counter
	promBytesReceived   prometheus.Counter
	promSendErrors      prometheus.Counter
	promReceiveErrors   prometheus.Counter
	promRateLimited     prometheus.Counter
}

// NewMetrics creates an unregistered metrics tracker.
func NewMetrics() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aleth",
			Subsystem: "discovery_udp",
			Name:      name,
			Help:      help,
		})
	}
	return &Metrics{
		promPacketsSent:     counter("packets_sent_total", "UDP datagrams sent."),
		promPacketsReceived: counter("packets_received_total", "UDP datagrams received."),
		promBytesSent:       counter("bytes_sent_total", "UDP payload bytes sent."),
		promBytesReceived:   counter("bytes_received_total", "UDP payload bytes received."),
		promSendErrors:      counter("send_errors_total", "UDP send failures."),
		promReceiveErrors:   counter("receive_errors_total", "UDP receive failures."),
		promRateLimited:     counter("rate_limited_total", "Datagrams dropped by per-IP rate limiting."),
	}
}

// Register attaches the prometheus counters to a registry. Call once
// per process, typically with prometheus.DefaultRegisterer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.promPacketsSent, m.promPacketsReceived,
		m.promBytesSent, m.promBytesReceived,
		m.promSendErrors, m.promReceiveErrors, m.promRateLimited,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordSent records one sent datagram.
func (m *Metrics) RecordSent(bytes uint64) {
	m.packetsSent.Add(1)
	m.bytesSent.Add(bytes)
	m.promPacketsSent.Inc()
	m.promBytesSent.Add(float64(bytes))
}

// RecordReceived records one received datagram.
func (m *Metrics) RecordReceived(bytes uint64) {
	m.packetsReceived.Add(1)
	m.bytesReceived.Add(bytes)
	m.promPacketsReceived.Inc()
	m.promBytesReceived.Add(float64(bytes))
}

// IncrementSendErrors counts a send failure.
func (m *Metrics) IncrementSendErrors() {
	m.sendErrors.Add(1)
	m.promSendErrors.Inc()
}

// IncrementReceiveErrors counts a receive failure.
func (m *Metrics) IncrementReceiveErrors() {
	m.receiveErrors.Add(1)
	m.promReceiveErrors.Inc()
}

// IncrementRateLimited counts a rate-limited drop.
func (m *Metrics) IncrementRateLimited() {
	m.rateLimited.Add(1)
	m.promRateLimited.Inc()
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	SendErrors      uint64
	ReceiveErrors   uint64
	RateLimited     uint64
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		PacketsSent:     m.packetsSent.Load(),
		PacketsReceived: m.packetsReceived.Load(),
		BytesSent:       m.bytesSent.Load(),
		BytesReceived:   m.bytesReceived.Load(),
		SendErrors:      m.sendErrors.Load(),
		ReceiveErrors:   m.receiveErrors.Load(),
		RateLimited:     m.rateLimited.Load(),
	}
}
