// Package frame implements the wire codec of the RPC transport.
//
// Every message on a connection is a single frame made of a fixed 12-byte header
// followed by the payload:
//
//	+------------------+---------------------+-------------------+
//	| id (8 bytes)     | payload_size (4 b.) | payload (n bytes) |
//	+------------------+---------------------+-------------------+
//
// Both header fields are unsigned and written in the host's native byte order,
// which keeps the format bit-compatible with peers that lay the header out as a
// packed C struct on the same machine. The transport is single-host IPC only, so
// the byte order never crosses a machine boundary.
//
// The format carries no magic number, no version and no checksum. Corruption on
// a local stream socket is not expected; an impossible size is detected by the
// reassembly layer and treated as fatal for the connection that produced it.
//
// Key Components:
//
//   - Encode / EncodeHeader: build a contiguous frame, or only the header for a
//     vectored (header, payload) write.
//
//   - TryDecode: decode a complete frame from the front of a byte slice. It reports
//     "not yet" instead of an error when the slice holds only part of a frame.
//
//   - DecodeHeader: parse just the header, used to size buffers before the payload
//     has arrived.
package frame
