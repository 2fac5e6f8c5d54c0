// Package buffer provides the reassembly buffer used by every connection of the
// RPC transport to turn a raw byte stream back into frames.
//
// A Buffer owns one byte region with a window [start, end) of received but not yet
// consumed bytes. The read path asks for the free tail (WritableSpan), reads into it
// and commits the read (Fill). Complete frames are then taken from the front of the
// window (TryExtractFrame) until only a partial frame is left, after which the window
// is moved back to offset 0 (Compact) so the next read has room again.
//
// When a header announces a frame larger than the whole buffer, the buffer grows to
// the frame size plus one header of slack and copies the live window over.
//
// Buffers never shrink. A connection that once carried a large frame keeps the larger
// region for its lifetime; this trades peak memory for not reallocating again on every
// burst of similarly sized frames.
//
// Thread Safety:
//
//	A Buffer is not safe for concurrent use. It is owned by exactly one connection and
//	only ever touched by the goroutine running that connection's event loop.
package buffer
