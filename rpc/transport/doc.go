// Package transport defines the interfaces of the Unix domain socket RPC transport.
//
// The package focuses on:
//   - Asynchronous requests on the client: every request gets a unique id and a
//     callback that is invoked once when the response with the same id arrives
//   - A synchronous request handler on the server
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     manage the connection and correlate responses with requests.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     accept connections and answer requests with a handler.
//
//   - ServerHandleFunc, ResponseFunc, DisconnectFunc: callbacks exchanged with the
//     transports.
//
// Implementations live in the base package, socket specific connectors in unix.
package transport
