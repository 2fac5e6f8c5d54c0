package base

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/udsrpc/lib/buffer"
	"github.com/ValentinKolb/udsrpc/lib/frame"
	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/ValentinKolb/udsrpc/rpc/transport"
	"github.com/ValentinKolb/udsrpc/rpc/transport/poller"
	"github.com/ValentinKolb/udsrpc/rpc/transport/sockio"
	"github.com/puzpuzpuz/xsync/v3"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a non-blocking listening socket and returns it
	Listen(config common.ServerConfig) (fd int, err error)

	// Accept accepts one pending connection in non-blocking mode,
	// it returns iox.ErrWouldBlock if none is pending
	Accept(listenFd int) (fd int, err error)

	// Cleanup removes what Listen left behind (e.g. the socket file)
	Cleanup(config common.ServerConfig) error

	// GetName returns the name of the transport type (e.g., "unix")
	GetName() string
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// peer is one accepted connection with its own reassembly buffer
type peer struct {
	fd          int
	buf         *buffer.Buffer
	connectedAt time.Time
	requests    uint64
}

// serverTransport implements the core server transport functionality.
// A single event loop accepts connections, reads requests, calls the handler
// and writes the responses back, one connection never blocks the others for
// longer than one handler call or one bounded write.
type serverTransport struct {
	connector IServerConnector
	handler   transport.ServerHandleFunc
	config    common.ServerConfig

	peers    *xsync.MapOf[int, *peer] // written by the loop, read by Stats
	listenFd int
	notifier poller.INotifier

	lifecycleMu sync.Mutex
	running     bool
	stopped     bool
	listening   atomic.Bool
	ready       chan struct{}
	readyOnce   sync.Once
	stopCh      chan struct{}
	doneCh      chan struct{}
	stopErr     error

	accepted atomic.Uint64
	requests atomic.Uint64
	metrics  *common.TransportMetrics
}

// -----------------------------------------------------------
// Transport Factory Method (used for unix, etc.)
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		peers:     xsync.NewMapOf[int, *peer](),
		listenFd:  -1,
		ready:     make(chan struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
		metrics:   common.NewTransportMetrics("server"),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.lifecycleMu.Lock()
	defer t.lifecycleMu.Unlock()
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	t.lifecycleMu.Lock()
	switch {
	case t.stopped:
		t.lifecycleMu.Unlock()
		return ErrStopped
	case t.running:
		t.lifecycleMu.Unlock()
		return fmt.Errorf("transport already listening on %s", t.config.Endpoint)
	case t.handler == nil:
		t.lifecycleMu.Unlock()
		return fmt.Errorf("no handler registered")
	}
	t.running = true
	t.config = config
	t.lifecycleMu.Unlock()
	defer close(t.doneCh)
	defer t.markReady() // also on failure, Stats().Listening tells both apart

	notifier, err := poller.New(config.Notifier)
	if err != nil {
		return fmt.Errorf("failed to create notifier: %w", err)
	}
	t.notifier = notifier

	// Create listener using the connector
	listenFd, err := t.connector.Listen(config)
	if err != nil {
		_ = notifier.Close()
		return fmt.Errorf("failed to create listener: %w", err)
	}
	if err := notifier.Add(listenFd); err != nil {
		_ = sockio.Close(listenFd)
		_ = notifier.Close()
		return fmt.Errorf("failed to watch listener: %w", err)
	}
	t.listenFd = listenFd

	Logger.Infof("Starting %s server on %s (%s notifier, max %d connections)",
		t.connector.GetName(), config.Endpoint, notifier.GetName(), config.MaxConnections)

	t.listening.Store(true)
	t.markReady()

	t.run()
	return t.stopErr
}

func (t *serverTransport) Ready() <-chan struct{} {
	return t.ready
}

// markReady closes the ready channel once
func (t *serverTransport) markReady() {
	t.readyOnce.Do(func() { close(t.ready) })
}

func (t *serverTransport) Stop() error {
	t.lifecycleMu.Lock()
	if t.stopped {
		t.lifecycleMu.Unlock()
		return nil
	}
	t.stopped = true
	close(t.stopCh)
	running := t.running
	t.lifecycleMu.Unlock()

	if !running {
		return nil
	}
	<-t.doneCh
	return t.stopErr
}

func (t *serverTransport) Stats() transport.ServerStats {
	return transport.ServerStats{
		Listening: t.listening.Load(),
		Peers:     t.peers.Size(),
		Accepted:  t.accepted.Load(),
		Requests:  t.requests.Load(),
	}
}

// --------------------------------------------------------------------------
// Event loop
// --------------------------------------------------------------------------

// run serves readiness events until Stop is called
func (t *serverTransport) run() {
	defer t.shutdown()

	events := make([]poller.Event, 64)
	pollInterval := t.config.PollInterval()

	for {
		select {
		case <-t.stopCh:
			return
		default:
		}

		n, err := t.notifier.Wait(events, pollInterval)
		if err != nil {
			Logger.Errorf("Waiting for readiness failed: %v", err)
			t.stopErr = err
			return
		}

		for _, ev := range events[:n] {
			if ev.Fd == t.listenFd {
				t.acceptAll()
				continue
			}
			if p, ok := t.peers.Load(ev.Fd); ok {
				t.handleEvent(p, ev)
			}
		}
	}
}

// acceptAll accepts every pending connection
func (t *serverTransport) acceptAll() {
	for {
		fd, err := t.connector.Accept(t.listenFd)
		if err != nil {
			if !sockio.IsTransient(err) {
				Logger.Errorf("Accept error: %v", err)
			}
			return
		}

		if limit := t.config.MaxConnections; limit > 0 && t.peers.Size() >= limit {
			Logger.Warningf("Rejecting connection, limit of %d connections reached", limit)
			t.metrics.Rejected.Inc()
			_ = sockio.Close(fd)
			continue
		}

		if err := t.notifier.Add(fd); err != nil {
			Logger.Errorf("Failed to watch connection: %v", err)
			_ = sockio.Close(fd)
			continue
		}

		t.peers.Store(fd, &peer{
			fd:          fd,
			buf:         buffer.New(t.config.BufferSize, t.config.MaxFrameSize),
			connectedAt: time.Now(),
		})
		t.accepted.Add(1)
		t.metrics.Accepted.Inc()
		t.metrics.PeerOpened()
		Logger.Debugf("Accepted connection %d (%d active)", fd, t.peers.Size())
	}
}

// handleEvent serves the requests signalled by ev and closes the peer on error or hang-up
func (t *serverTransport) handleEvent(p *peer, ev poller.Event) {
	var err error
	switch {
	case ev.Closed:
		// answer what is left before closing
		for {
			var n int
			n, err = t.serveRequests(p)
			if err != nil {
				break
			}
			if n == 0 {
				err = sockio.ErrClosed
				break
			}
		}
	case ev.Readable:
		_, err = t.serveRequests(p)
	}

	if err != nil {
		t.closePeer(p, err)
	}
}

// serveRequests performs one read and answers every completed request
func (t *serverTransport) serveRequests(p *peer) (int, error) {
	return readFrames(p.fd, p.buf, t.metrics, func(f frame.Frame) error {
		resp, err := t.invoke(f.Payload)
		if err != nil {
			return err
		}
		p.requests++
		t.requests.Add(1)

		// the server echoes the id of the request
		if err := sockio.WriteFrame(p.fd, f.ID, resp, t.config.WriteTimeout()); err != nil {
			return fmt.Errorf("failed to write response %d: %w", f.ID, err)
		}
		t.metrics.FrameOut(len(resp))
		return nil
	})
}

// invoke calls the handler, a panicking handler only costs the connection
func (t *serverTransport) invoke(req []byte) (resp []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			t.metrics.HandlerPanics.Inc()
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return t.handler(req), nil
}

// closePeer unregisters and closes one connection
func (t *serverTransport) closePeer(p *peer, cause error) {
	_ = t.notifier.Remove(p.fd)
	_ = sockio.Close(p.fd)
	t.peers.Delete(p.fd)
	t.metrics.PeerClosed()

	switch {
	case errors.Is(cause, sockio.ErrClosed):
		Logger.Debugf("Connection %d closed by client after %d requests (%s)", p.fd, p.requests, time.Since(p.connectedAt).Round(time.Millisecond))
	case errors.Is(cause, buffer.ErrFrameTooLarge):
		Logger.Warningf("Closing connection %d, framing violation: %v", p.fd, cause)
	default:
		Logger.Warningf("Closing connection %d: %v", p.fd, cause)
	}
}

// shutdown closes every connection and the listener and removes the socket file
func (t *serverTransport) shutdown() {
	t.listening.Store(false)

	t.peers.Range(func(_ int, p *peer) bool {
		_ = t.notifier.Remove(p.fd)
		_ = sockio.Close(p.fd)
		t.peers.Delete(p.fd)
		t.metrics.PeerClosed()
		return true
	})

	_ = t.notifier.Remove(t.listenFd)
	if err := sockio.Close(t.listenFd); err != nil && t.stopErr == nil {
		t.stopErr = fmt.Errorf("failed to close listener: %w", err)
	}
	t.listenFd = -1

	if err := t.connector.Cleanup(t.config); err != nil && t.stopErr == nil {
		t.stopErr = err
	}
	if err := t.notifier.Close(); err != nil && t.stopErr == nil {
		t.stopErr = err
	}
	Logger.Infof("Server on %s stopped", t.config.Endpoint)
}
