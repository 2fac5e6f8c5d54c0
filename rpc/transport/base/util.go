package base

import (
	"errors"

	"code.hybscloud.com/iox"
	"github.com/ValentinKolb/udsrpc/lib/buffer"
	"github.com/ValentinKolb/udsrpc/lib/frame"
	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/ValentinKolb/udsrpc/rpc/transport/sockio"
)

var (
	// ErrNotConnected is returned by SendRequest while the client has no connection
	ErrNotConnected = errors.New("transport not connected")
	// ErrStopped is returned once a transport has been stopped
	ErrStopped = errors.New("transport stopped")
	// ErrBurstExhausted is reported when all attempts of a reconnect burst failed
	ErrBurstExhausted = errors.New("reconnect burst exhausted")
)

// readFrames performs a single read from fd into buf and calls fn for every frame that became
// complete, in stream order. The payload passed to fn aliases buf and is only valid during the call.
//
// It returns the number of bytes read; 0 with a nil error means nothing was available.
// Errors from the socket, a frame above the buffer limit or an error returned by fn are
// returned as is and leave the connection unusable.
func readFrames(fd int, buf *buffer.Buffer, m *common.TransportMetrics, fn func(frame.Frame) error) (int, error) {
	span := buf.WritableSpan()
	if len(span) == 0 {
		// only possible if a previous caller skipped Compact
		buf.Compact()
		span = buf.WritableSpan()
	}

	n, err := sockio.Read(fd, span)
	if err != nil {
		if iox.IsWouldBlock(err) {
			return 0, nil
		}
		return 0, err
	}
	buf.Fill(n)

	grows := buf.Grows()
	for {
		f, ok, err := buf.TryExtractFrame()
		if err != nil {
			m.ProtocolErrors.Inc()
			return n, err
		}
		if !ok {
			break
		}
		m.FrameIn(len(f.Payload))
		if err := fn(f); err != nil {
			return n, err
		}
	}
	if g := buf.Grows() - grows; g > 0 {
		m.BufferGrows.Add(g)
	}
	buf.Compact()
	return n, nil
}
