package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/udsrpc/rpc/common"
	"github.com/ValentinKolb/udsrpc/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var (
	Logger = logger.GetLogger("rpc")

	// ErrTimeout is returned by Call if no response arrived within the request timeout
	ErrTimeout = errors.New("request timed out")
)

// RPCClient is a blocking convenience layer on top of an asynchronous client transport
type RPCClient struct {
	config    common.ClientConfig
	transport transport.IRPCClientTransport
	latency   gometrics.Timer
}

// NewRPCClient connects the transport and returns a client using it
// The function takes a config and a transport as parameters
//
// Usage:
//
//	c, err := client.NewRPCClient(common.DefaultClientConfig("/tmp/udsrpc.sock"), unix.NewUnixClientTransport())
//	if err != nil {
//		panic(err)
//	}
//	defer c.Close()
//
//	resp, err := c.Call(ctx, []byte("hello"))
func NewRPCClient(config common.ClientConfig, t transport.IRPCClientTransport) (*RPCClient, error) {
	if err := t.Connect(config); err != nil {
		return nil, err
	}

	if !t.IsConnected() {
		Logger.Warningf("Server at %s not reachable yet, requests fail until the connection is up", config.Endpoint)
	}

	return &RPCClient{
		config:    config,
		transport: t,
		latency:   gometrics.NewTimer(),
	}, nil
}

// Call sends payload and blocks until the response arrives, ctx is done or the request timeout passed.
// A request abandoned by ctx stays in the pending table until it is answered or evicted.
func (c *RPCClient) Call(ctx context.Context, payload []byte) ([]byte, error) {
	respCh := make(chan []byte, 1)
	start := time.Now()

	id, err := c.transport.SendRequest(payload, func(resp []byte) {
		respCh <- resp
	})
	if err != nil {
		return nil, err
	}

	// eviction drops the callback silently, so Call keeps its own deadline
	timer := time.NewTimer(c.config.RequestTimeout())
	defer timer.Stop()

	select {
	case resp := <-respCh:
		c.latency.UpdateSince(start)
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		Logger.Debugf("Request %d timed out after %s", id, c.config.RequestTimeout())
		return nil, fmt.Errorf("request %d: %w", id, ErrTimeout)
	}
}

// Send passes payload to the transport without waiting, cb runs on the event loop of the transport
func (c *RPCClient) Send(payload []byte, cb transport.ResponseFunc) (uint64, error) {
	return c.transport.SendRequest(payload, cb)
}

// Latency returns the round trip timer of all successful calls
func (c *RPCClient) Latency() gometrics.Timer {
	return c.latency
}

func (c *RPCClient) IsConnected() bool {
	return c.transport.IsConnected()
}

func (c *RPCClient) Stats() transport.ClientStats {
	return c.transport.Stats()
}

// Close stops the transport, pending requests are dropped
func (c *RPCClient) Close() {
	c.transport.Stop()
}
