package transport

import (
	"github.com/ValentinKolb/udsrpc/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes the request payload and returns the response payload
type ServerHandleFunc func(req []byte) (resp []byte)

// ServerStats is a snapshot of a server transport
type ServerStats struct {
	// Listening is true while the accept loop is running
	Listening bool
	// Peers is the number of connected clients
	Peers int
	// Accepted is the number of connections accepted since Listen
	Accepted uint64
	// Requests is the number of handled requests since Listen
	Requests uint64
}

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a RPCServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler is called synchronously by the event loop for every request
	RegisterHandler(handler ServerHandleFunc)
	// Listen starts the transport layer and serves requests until Stop is called
	Listen(config common.ServerConfig) error
	// Ready is closed once the transport accepts connections or Listen failed to start
	Ready() <-chan struct{}
	// Stop terminates the event loop, closes all connections and removes the socket file
	Stop() error
	// Stats returns a snapshot of the transport
	Stats() ServerStats
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// ResponseFunc receives the payload of a response, it is called on the event loop
// of the client and must not block for long
type ResponseFunc func(resp []byte)

// DisconnectFunc is called when a reconnect burst could not establish a connection
type DisconnectFunc func()

// ClientStats is a snapshot of a client transport
type ClientStats struct {
	Connected bool
	// Pending is the number of requests waiting for a response
	Pending int
	// Reconnects counts successful connects after the first one
	Reconnects uint64
	// Evicted counts requests dropped without a response
	Evicted uint64
}

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// OnDisconnect registers the notification for exhausted reconnect bursts, call before Connect
	OnDisconnect(fn DisconnectFunc)
	// Connect initializes the transport with the given configuration and starts its event loop
	Connect(config common.ClientConfig) error
	// SendRequest sends a request and returns its id, cb is called once with the response
	SendRequest(req []byte, cb ResponseFunc) (id uint64, err error)
	// IsConnected reports whether the transport currently has a connection
	IsConnected() bool
	// Stats returns a snapshot of the transport
	Stats() ClientStats
	// Stop terminates the event loop and closes the connection, the transport cannot be reused
	Stop()
}
