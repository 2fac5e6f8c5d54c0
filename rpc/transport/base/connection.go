package base

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/udsrpc/lib/buffer"
	"github.com/ValentinKolb/udsrpc/rpc/transport/sockio"
)

// State is the lifecycle state of a client connection
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// connection is the socket of a client together with its reassembly buffer.
// It exists for the whole lifetime of the transport. endpoint, buf and writeTimeout
// are set once by Connect before the first fd is attached. Only the event loop
// changes fd and state; fd is read by senders while holding the send lock of the
// transport, which the loop also holds when it swaps fd.
type connection struct {
	endpoint     string
	writeTimeout time.Duration
	fd           int
	state        atomic.Int32
	buf          *buffer.Buffer
}

func newConnection() *connection {
	return &connection{fd: -1}
}

// configure sets what Connect knows about the endpoint, it runs before any fd is attached
func (c *connection) configure(endpoint string, writeTimeout time.Duration, buf *buffer.Buffer) {
	c.endpoint = endpoint
	c.writeTimeout = writeTimeout
	c.buf = buf
}

func (c *connection) State() State {
	return State(c.state.Load())
}

func (c *connection) setState(s State) {
	c.state.Store(int32(s))
}

// --------------------------------------------------------------------------
// Connection management (runs on the client event loop)
// --------------------------------------------------------------------------

// attempt makes a single connect attempt and attaches the new socket on success
func (t *clientTransport) attempt() error {
	fd, err := t.connector.Connect(t.conn.endpoint, t.config)
	if err != nil {
		return err
	}
	if err := t.notifier.Add(fd); err != nil {
		_ = sockio.Close(fd)
		return fmt.Errorf("failed to watch socket: %w", err)
	}

	t.conn.buf.Reset()
	t.sendMu.Lock()
	t.conn.fd = fd
	t.sendMu.Unlock()
	t.conn.setState(Connected)

	if t.everConnected {
		t.reconnects.Add(1)
		t.metrics.Reconnects.Inc()
	}
	t.everConnected = true
	return nil
}

// connectBurst makes up to RetryCount connect attempts with a fixed pause after each failure.
// It returns ErrBurstExhausted if all attempts failed and ErrStopped if the transport was
// stopped while waiting.
func (t *clientTransport) connectBurst() error {
	retries := t.config.Retries()
	t.conn.setState(Connecting)

	for i := 1; i <= retries; i++ {
		err := t.attempt()
		if err == nil {
			Logger.Infof("Connected to %s (attempt %d/%d)", t.conn.endpoint, i, retries)
			return nil
		}
		Logger.Warningf("Connect to %s failed (attempt %d/%d): %v", t.conn.endpoint, i, retries, err)

		if !t.sleep(t.config.RetryInterval()) {
			t.conn.setState(Disconnected)
			return ErrStopped
		}
		t.evictExpired()
	}

	t.conn.setState(Disconnected)
	return ErrBurstExhausted
}

// disconnect closes the current socket, resets the buffer and drops all pending requests
func (t *clientTransport) disconnect(cause error) {
	t.sendMu.Lock()
	fd := t.conn.fd
	t.conn.fd = -1
	t.sendMu.Unlock()

	if fd >= 0 {
		_ = t.notifier.Remove(fd)
		_ = sockio.Close(fd)
	}
	t.conn.setState(Disconnected)
	t.conn.buf.Reset()

	dropped := t.table.Clear()
	if dropped > 0 {
		t.evicted.Add(uint64(dropped))
		t.metrics.Evictions.Add(dropped)
	}

	if errors.Is(cause, sockio.ErrClosed) {
		Logger.Infof("Connection to %s closed, %d pending requests dropped", t.conn.endpoint, dropped)
	} else {
		Logger.Warningf("Connection to %s lost: %v (%d pending requests dropped)", t.conn.endpoint, cause, dropped)
	}
}

// sleep waits for d and returns false if the transport was stopped in the meantime
func (t *clientTransport) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-t.stopCh:
		return false
	}
}
