// Package unix implements the RPC transport on Unix domain stream sockets.
// It provides communication for processes running on the same machine,
// the endpoint of both sides is the path of the socket file.
//
// This package extends the base transport layer with Unix socket-specific connectors
// while inheriting the event loops, framing, request correlation and reconnect
// handling from the base package.
//
// Key Components:
//
//   - clientConnector: Creates a socket with receive and send timeouts and connects it
//
//   - serverConnector: Removes a stale socket file, binds and listens, accepts peers
//     and removes the socket file again when the server stops
package unix
