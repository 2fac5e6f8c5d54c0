// Package server implements the RPC server of udsrpc. It wires a request handler
// to a server transport and manages the lifecycle around it.
//
// Key Components:
//
//   - NewRPCServer: Factory function creating a server from a configuration, a
//     transport and a transport.ServerHandleFunc.
//
//   - Serve: initializes the loggers, starts the optional prometheus endpoint
//     (ServerConfig.MetricsEndpoint) and runs the transport until Stop is called
//     or the process receives SIGINT or SIGTERM.
//
//   - Echo, Upper, Multiply: built-in handlers used by the serve command and the
//     tests. Multiply answers a decimal integer with ten times its value.
//
// Usage Example:
//
//	s := server.NewRPCServer(
//	  common.DefaultServerConfig("/tmp/udsrpc.sock"),
//	  unix.NewUnixServerTransport(),
//	  server.Upper,
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Handlers are called on the event loop of the transport, one request at a time.
// The request slice is only valid during the call and must not be retained.
package server
