// Package common provides the configuration, logging and metrics shared by the
// client and server side of the Unix domain socket RPC transport.
//
// Key Components:
//
//   - ServerConfig / ClientConfig: all tunables of the transports (socket path,
//     buffer sizes, reconnect burst, timeouts, readiness backend) with defaults
//     and human readable String() printers. Both can be overlaid from a TOML file.
//
//   - Logger: custom implementation of dragonboats logger.ILogger that renders
//     records through zerolog, installed with InitLoggers.
//
//   - TransportMetrics: prometheus counters for frames, bytes, reconnects,
//     evictions and peers, exported with WriteMetrics.
package common
