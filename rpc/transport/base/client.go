package base

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/udsrpc/lib/buffer"
	"github.com/ValentinKolb/udsrpc/lib/frame"
	"github.com/ValentinKolb/udsrpc/lib/pending"
	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/ValentinKolb/udsrpc/rpc/transport"
	"github.com/ValentinKolb/udsrpc/rpc/transport/poller"
	"github.com/ValentinKolb/udsrpc/rpc/transport/sockio"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport/rpc")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect creates a fresh socket, applies the socket options of config and connects it to endpoint
	Connect(endpoint string, config common.ClientConfig) (fd int, err error)

	// GetName returns the name of the transport type (e.g., "unix")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientTransport implements the core client transport functionality.
//
// One goroutine (the event loop) owns the connection: it connects, reads, extracts
// frames and resolves pending requests. SendRequest may be called from any goroutine
// and only touches the pending table and the socket (under sendMu). The table lock
// and sendMu are never held at the same time, so callbacks may send new requests.
type clientTransport struct {
	connector    IClientConnector
	config       common.ClientConfig
	onDisconnect transport.DisconnectFunc

	table    *pending.Table
	notifier poller.INotifier
	conn     *connection // created with the transport, senders only read it under sendMu
	sendMu   sync.Mutex

	lifecycleMu sync.Mutex
	started     bool
	stopped     atomic.Bool
	stopCh      chan struct{}
	doneCh      chan struct{}

	everConnected bool // loop only
	reconnects    atomic.Uint64
	evicted       atomic.Uint64
	metrics       *common.TransportMetrics
}

// -----------------------------------------------------------
// Transport Factory Method (used for unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		table:     pending.New(),
		conn:      newConnection(),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		metrics:   common.NewTransportMetrics("client"),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) OnDisconnect(fn transport.DisconnectFunc) {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()
	t.onDisconnect = fn
}

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()

	if t.stopped.Load() {
		return ErrStopped
	}
	if t.started {
		return fmt.Errorf("transport already connected to %s", t.config.Endpoint)
	}

	notifier, err := poller.New(config.Notifier)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}

	t.config = config
	t.notifier = notifier
	t.conn.configure(config.Endpoint, config.WriteTimeout(), buffer.New(config.BufferSize, config.MaxFrameSize))

	// the first attempt is made synchronously, the loop takes over on failure
	if err := t.attempt(); err != nil {
		Logger.Warningf("Initial connect to %s failed, retrying in background: %v", config.Endpoint, err)
	} else {
		Logger.Infof("Connected to %s using %s transport (%s notifier)", config.Endpoint, t.connector.GetName(), notifier.GetName())
	}

	t.started = true
	go t.run()
	return nil
}

func (t *clientTransport) SendRequest(req []byte, cb transport.ResponseFunc) (uint64, error) {
	if t.stopped.Load() {
		return 0, ErrStopped
	}
	if uint64(len(req)) > frame.MaxPayloadSize {
		return 0, frame.ErrPayloadTooLarge
	}

	// register first, the response can arrive before WriteFrame returns
	id := t.table.Submit(pending.Callback(cb))

	t.sendMu.Lock()
	if t.conn.fd < 0 {
		t.sendMu.Unlock()
		t.table.Remove(id)
		return 0, ErrNotConnected
	}
	fd := t.conn.fd
	err := sockio.WriteFrame(fd, id, req, t.conn.writeTimeout)
	if err != nil {
		// a partially written frame corrupts the stream, let the loop reconnect
		_ = sockio.Shutdown(fd)
	}
	t.sendMu.Unlock()

	if err != nil {
		t.table.Remove(id)
		return 0, fmt.Errorf("failed to send request %d: %w", id, err)
	}

	t.metrics.FrameOut(len(req))
	return id, nil
}

func (t *clientTransport) IsConnected() bool {
	return t.conn.State() == Connected && !t.stopped.Load()
}

func (t *clientTransport) Stats() transport.ClientStats {
	return transport.ClientStats{
		Connected:  t.IsConnected(),
		Pending:    t.table.Len(),
		Reconnects: t.reconnects.Load(),
		Evicted:    t.evicted.Load(),
	}
}

// Stop must not be called from a response or disconnect callback, it waits for the event loop
func (t *clientTransport) Stop() {
	t.lifecycleMu.Lock()
	if t.stopped.Swap(true) {
		t.lifecycleMu.Unlock()
		return
	}
	close(t.stopCh)
	started := t.started
	t.lifecycleMu.Unlock()

	if started {
		<-t.doneCh
	}
}

// --------------------------------------------------------------------------
// Event loop
// --------------------------------------------------------------------------

// run is the event loop of the client, it exits once Stop was called
func (t *clientTransport) run() {
	defer close(t.doneCh)
	defer t.shutdown()

	events := make([]poller.Event, 8)

	for !t.stopped.Load() {
		t.evictExpired()

		if t.conn.State() != Connected {
			if err := t.connectBurst(); err != nil {
				if errors.Is(err, ErrStopped) {
					return
				}
				t.metrics.BurstsExhausted.Inc()
				Logger.Errorf("Could not reach %s after %d attempts", t.config.Endpoint, t.config.Retries())
				t.notifyDisconnect()
			}
			continue
		}

		n, err := t.notifier.Wait(events, t.config.PollInterval())
		if err != nil {
			Logger.Errorf("Waiting for readiness failed: %v", err)
			t.disconnect(err)
			continue
		}

		for _, ev := range events[:n] {
			if ev.Fd != t.conn.fd {
				continue
			}
			if err := t.handleEvent(ev); err != nil {
				t.disconnect(err)
				break
			}
		}
	}
}

// handleEvent reads the responses signalled by ev. A hang-up drains what is left
// in the socket and is reported as sockio.ErrClosed.
func (t *clientTransport) handleEvent(ev poller.Event) error {
	if !ev.Closed {
		if ev.Readable {
			_, err := t.readResponses()
			return err
		}
		return nil
	}

	for {
		n, err := t.readResponses()
		if err != nil {
			return err
		}
		if n == 0 {
			return sockio.ErrClosed
		}
	}
}

// readResponses performs one read and resolves every completed response
func (t *clientTransport) readResponses() (int, error) {
	var responses []frame.Frame
	n, err := readFrames(t.conn.fd, t.conn.buf, t.metrics, func(f frame.Frame) error {
		// the buffer is compacted before the callbacks run
		responses = append(responses, frame.Frame{ID: f.ID, Payload: bytes.Clone(f.Payload)})
		return nil
	})

	for _, r := range responses {
		if !t.table.Resolve(r.ID, r.Payload) {
			t.metrics.UnknownIDs.Inc()
			Logger.Debugf("Dropping response for unknown request %d (%d bytes)", r.ID, len(r.Payload))
		}
	}

	if errors.Is(err, buffer.ErrFrameTooLarge) {
		Logger.Warningf("Framing violation on %s: %v", t.config.Endpoint, err)
	}
	return n, err
}

// evictExpired drops requests that waited longer than the request timeout
func (t *clientTransport) evictExpired() {
	if n := t.table.EvictExpired(time.Now(), t.config.RequestTimeout()); n > 0 {
		t.evicted.Add(uint64(n))
		t.metrics.Evictions.Add(n)
		Logger.Debugf("Evicted %d requests older than %s", n, t.config.RequestTimeout())
	}
}

// notifyDisconnect calls the registered disconnect notification
func (t *clientTransport) notifyDisconnect() {
	t.lifecycleMu.Lock()
	fn := t.onDisconnect
	t.lifecycleMu.Unlock()

	if fn != nil {
		fn()
	}
}

// shutdown closes the connection and drops all pending requests, it runs when the loop exits
func (t *clientTransport) shutdown() {
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

	if n := t.table.Clear(); n > 0 {
		t.evicted.Add(uint64(n))
		t.metrics.Evictions.Add(n)
	}
	if err := t.notifier.Close(); err != nil {
		Logger.Warningf("Failed to close notifier: %v", err)
	}
	Logger.Infof("Client transport for %s stopped", t.config.Endpoint)
}
