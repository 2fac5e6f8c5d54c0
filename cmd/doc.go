// Package cmd implements the command-line interface of udsrpc. It provides
// commands for running a server and talking to it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a server with one of the built-in handlers (echo, upper, multiply)
//   - call: Sends payloads from the arguments or stdin and prints the responses
//   - perf: Load test against an echo server (throughput, latency percentiles, sizes)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can be set through environment variables with the UDSRPC_ prefix,
// .env and .env.local files are loaded on start.
//
// See udsrpc -help for a list of all commands.
package cmd
