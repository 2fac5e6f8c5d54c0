// Package rpc provides a lightweight request/response framework over Unix
// domain stream sockets. Requests and responses are opaque byte payloads,
// correlated by a 64-bit request id carried in a 12 byte frame header.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures, the logger factory and the transport
//     metrics shared by clients and servers.
//
//   - transport: The transport interfaces and their implementation. The base
//     package contains the event loops, unix the socket specific connectors,
//     poller the readiness notifiers (epoll, poll) and sockio the raw socket I/O.
//
//   - client: A blocking Call layer on top of the asynchronous client transport.
//
//   - server: Wires a request handler to a server transport, with signal
//     handling and an optional metrics endpoint.
package rpc
