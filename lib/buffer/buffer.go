package buffer

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/udsrpc/lib/frame"
)

const (
	// DefaultCapacity is the initial capacity used when none is given
	DefaultCapacity = 5120

	// MinCapacity is the smallest capacity a buffer is created with, two headers fit in it
	MinCapacity = 2 * frame.HeaderSize
)

// ErrFrameTooLarge is returned when a header announces a frame above the configured limit
var ErrFrameTooLarge = errors.New("buffer: frame exceeds maximum size")

// Buffer accumulates partial reads and extracts complete frames
// Invariant: 0 <= start <= end <= len(data)
type Buffer struct {
	data     []byte
	start    int
	end      int
	maxFrame int
	grows    int
}

// New creates a buffer with the given initial capacity.
// maxFrame limits the total size of a single frame (header included), 0 means no limit
// besides what the header can express.
func New(capacity int, maxFrame int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	return &Buffer{
		data:     make([]byte, capacity),
		maxFrame: maxFrame,
	}
}

// --------------------------------------------------------------------------
// Read side
// --------------------------------------------------------------------------

// WritableSpan returns the free region after the window, the target of the next read
func (b *Buffer) WritableSpan() []byte {
	return b.data[b.end:]
}

// Fill commits n bytes that were read into WritableSpan
func (b *Buffer) Fill(n int) {
	if n < 0 || b.end+n > len(b.data) {
		panic(fmt.Sprintf("buffer: fill of %d bytes exceeds writable span of %d", n, len(b.data)-b.end))
	}
	b.end += n
}

// --------------------------------------------------------------------------
// Frame extraction
// --------------------------------------------------------------------------

// TryExtractFrame takes the next complete frame from the front of the window.
//
// If the window only holds part of a frame, ok is false. If that partial frame cannot
// fit into the current capacity the buffer is grown so the rest of it can be read.
// The returned payload aliases the buffer and is valid until the next mutation.
func (b *Buffer) TryExtractFrame() (f frame.Frame, ok bool, err error) {
	window := b.data[b.start:b.end]

	h, err := frame.DecodeHeader(window)
	if err != nil {
		// not even a full header yet
		return frame.Frame{}, false, nil
	}

	total := h.TotalSize()
	if b.maxFrame > 0 && total > b.maxFrame {
		return frame.Frame{}, false, fmt.Errorf("%w: frame %d announces %d bytes (limit %d)", ErrFrameTooLarge, h.ID, total, b.maxFrame)
	}

	if total > len(window) {
		if total > len(b.data) {
			// required size plus one header of slack
			b.Grow(total + frame.HeaderSize)
		}
		return frame.Frame{}, false, nil
	}

	id, payload, consumed, _ := frame.TryDecode(window)
	b.start += consumed
	return frame.Frame{ID: id, Payload: payload}, true, nil
}

// --------------------------------------------------------------------------
// Space management
// --------------------------------------------------------------------------

// Compact moves the live window to offset 0. If the window is empty both ends are reset.
func (b *Buffer) Compact() {
	if b.start == b.end {
		b.start, b.end = 0, 0
		return
	}
	if b.start == 0 {
		return
	}
	n := copy(b.data, b.data[b.start:b.end])
	b.start, b.end = 0, n
}

// Grow reallocates the buffer with the given capacity and copies the live window to offset 0.
// Requests that do not exceed the current capacity are ignored, buffers never shrink.
func (b *Buffer) Grow(capacity int) {
	if capacity <= len(b.data) {
		return
	}
	data := make([]byte, capacity)
	n := copy(data, b.data[b.start:b.end])
	b.data = data
	b.start, b.end = 0, n
	b.grows++
}

// Reset discards all buffered bytes, the capacity is kept
func (b *Buffer) Reset() {
	b.start, b.end = 0, 0
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// Len returns the number of unconsumed bytes
func (b *Buffer) Len() int { return b.end - b.start }

// Cap returns the current capacity
func (b *Buffer) Cap() int { return len(b.data) }

// Bytes returns the unconsumed window, valid until the next mutation
func (b *Buffer) Bytes() []byte { return b.data[b.start:b.end] }

// Grows returns how often the buffer was reallocated
func (b *Buffer) Grows() int { return b.grows }
