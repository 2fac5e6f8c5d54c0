// Package util provides small data structures shared by the transport layers.
//
// The package contains:
//   - mapheap: a min-heap addressable by key, used to find the oldest pending requests
//     without scanning the whole pending table
//   - sizehist: a bucketed histogram of payload sizes, used by the benchmark tooling
package util
