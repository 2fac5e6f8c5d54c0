package common

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// activePeers holds the open connection count per role, read by the active_peers gauge
var activePeers = xsync.NewMapOf[string, *atomic.Int64]()

// --------------------------------------------------------------------------
// Transport metrics (prometheus exposition via VictoriaMetrics/metrics)
// --------------------------------------------------------------------------

// TransportMetrics groups the counters a transport instance updates.
// Counters are process wide and shared by all transports of the same role.
type TransportMetrics struct {
	FramesIn       *metrics.Counter
	FramesOut      *metrics.Counter
	BytesIn        *metrics.Counter
	BytesOut       *metrics.Counter
	BufferGrows    *metrics.Counter
	ProtocolErrors *metrics.Counter
	// client only
	Evictions       *metrics.Counter
	UnknownIDs      *metrics.Counter
	Reconnects      *metrics.Counter
	BurstsExhausted *metrics.Counter
	// server only
	Peers         *metrics.Gauge
	Accepted      *metrics.Counter
	Rejected      *metrics.Counter
	HandlerPanics *metrics.Counter

	peers *atomic.Int64
}

// NewTransportMetrics returns the counters for the given role (client or server)
func NewTransportMetrics(role string) *TransportMetrics {
	name := func(metric string) string {
		return fmt.Sprintf(`udsrpc_%s{role=%q}`, metric, role)
	}
	peers, _ := activePeers.LoadOrCompute(role, func() *atomic.Int64 { return new(atomic.Int64) })
	return &TransportMetrics{
		FramesIn:        metrics.GetOrCreateCounter(name("frames_in_total")),
		FramesOut:       metrics.GetOrCreateCounter(name("frames_out_total")),
		BytesIn:         metrics.GetOrCreateCounter(name("bytes_in_total")),
		BytesOut:        metrics.GetOrCreateCounter(name("bytes_out_total")),
		BufferGrows:     metrics.GetOrCreateCounter(name("buffer_grows_total")),
		ProtocolErrors:  metrics.GetOrCreateCounter(name("protocol_errors_total")),
		Evictions:       metrics.GetOrCreateCounter(name("evicted_requests_total")),
		UnknownIDs:      metrics.GetOrCreateCounter(name("unknown_response_ids_total")),
		Reconnects:      metrics.GetOrCreateCounter(name("reconnects_total")),
		BurstsExhausted: metrics.GetOrCreateCounter(name("reconnect_bursts_exhausted_total")),
		Peers:           metrics.GetOrCreateGauge(name("active_peers"), func() float64 { return float64(peers.Load()) }),
		Accepted:        metrics.GetOrCreateCounter(name("accepted_peers_total")),
		Rejected:        metrics.GetOrCreateCounter(name("rejected_peers_total")),
		HandlerPanics:   metrics.GetOrCreateCounter(name("handler_panics_total")),
		peers:           peers,
	}
}

// FrameIn records one received frame with the given payload size
func (m *TransportMetrics) FrameIn(payloadSize int) {
	m.FramesIn.Inc()
	m.BytesIn.Add(payloadSize)
}

// FrameOut records one sent frame with the given payload size
func (m *TransportMetrics) FrameOut(payloadSize int) {
	m.FramesOut.Inc()
	m.BytesOut.Add(payloadSize)
}

// PeerOpened records one more open connection
func (m *TransportMetrics) PeerOpened() {
	m.peers.Add(1)
}

// PeerClosed records one closed connection
func (m *TransportMetrics) PeerClosed() {
	m.peers.Add(-1)
}

// WriteMetrics writes all registered metrics in prometheus text format
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
}
