// Package base provides the protocol independent core of the RPC transport:
// the client event loop with its connection manager and the server connection pool.
// Socket specific operations are injected through connectors.
//
// The package focuses on:
//   - Asynchronous requests with out of order responses, correlated by request id
//   - Reassembly of frames from partial reads in a growable per-connection buffer
//   - Reconnect bursts with a fixed pause and a caller visible notification
//   - Per-connection isolation on the server
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for socket creation, connect,
//     listen and accept that allow the base transport to run on different socket types.
//
//   - clientTransport: A single event loop per client waits on a readiness notifier
//     with a bounded timeout, reads into the reassembly buffer, extracts frames and
//     resolves the pending requests. Requests that wait longer than the request timeout
//     are evicted on every iteration. When the connection is lost the buffer is reset,
//     all pending requests are dropped and the loop reconnects in bursts of RetryCount
//     attempts; after every failed burst the disconnect notification is called.
//
//   - serverTransport: A single event loop per server accepts connections up to
//     MaxConnections, reads requests of every peer into its own buffer, calls the
//     handler synchronously and writes the response with the id of the request.
//     A failing peer is closed without affecting the others.
//
// Thread Safety:
//
//	SendRequest may be called from any goroutine. The pending table and the socket
//	writes are guarded by separate locks that are never held together, so response
//	callbacks may send new requests. Buffers are only touched by the event loop.
//	Response callbacks run on the event loop and must not call Stop.
package base
