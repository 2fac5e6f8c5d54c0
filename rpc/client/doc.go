// Package client implements a blocking RPC client on top of the asynchronous
// client transport.
//
// The transport delivers responses through callbacks on its event loop and drops
// requests that were not answered within the request timeout without notice.
// RPCClient turns this into a plain function call:
//
//   - Call: sends a payload and waits for the response, the request timeout
//     (ErrTimeout) or the end of the given context.
//
//   - Send: passes a payload through to the transport with a response callback.
//
//   - Latency: a go-metrics timer with the round trip time of every successful Call.
//
// Usage Example:
//
//	c, err := client.NewRPCClient(common.DefaultClientConfig("/tmp/udsrpc.sock"), unix.NewUnixClientTransport())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer c.Close()
//
//	resp, err := c.Call(context.Background(), []byte("hello"))
//
// Thread Safety:
//
//	RPCClient is safe for concurrent use. All goroutines share the single
//	connection of the transport, responses are matched by request id.
package client
