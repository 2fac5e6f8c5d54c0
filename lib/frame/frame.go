package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// HeaderSize is the size of the fixed frame header (8 bytes id + 4 bytes payload size)
	HeaderSize = 12

	// MaxPayloadSize is the largest payload a single frame can describe
	MaxPayloadSize = math.MaxUint32

	idOffset   = 0
	sizeOffset = 8
)

var (
	// ErrShortBuffer is returned when a slice is too small to hold a frame header
	ErrShortBuffer = errors.New("frame: buffer shorter than header")
	// ErrPayloadTooLarge is returned when a payload does not fit into the 32-bit size field
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// byteOrder is the byte order of both header fields
var byteOrder = binary.NativeEndian

// Header is the decoded fixed frame header
type Header struct {
	ID          uint64
	PayloadSize uint32
}

// TotalSize returns the number of bytes the complete frame occupies on the wire
func (h Header) TotalSize() int {
	return HeaderSize + int(h.PayloadSize)
}

// Frame is one complete unit on the wire
type Frame struct {
	ID      uint64
	Payload []byte
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// EncodeHeader writes the header for a frame with the given id and payload size into dst.
// dst must be at least HeaderSize bytes long.
func EncodeHeader(dst []byte, id uint64, payloadSize uint32) {
	_ = dst[HeaderSize-1] // bounds check hint
	byteOrder.PutUint64(dst[idOffset:sizeOffset], id)
	byteOrder.PutUint32(dst[sizeOffset:HeaderSize], payloadSize)
}

// NewHeader returns a freshly allocated header for the given id and payload.
// It is meant to be combined with the payload in a vectored write.
func NewHeader(id uint64, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	hdr := make([]byte, HeaderSize)
	EncodeHeader(hdr, id, uint32(len(payload)))
	return hdr, nil
}

// Encode returns the contiguous wire representation of a frame (header followed by payload)
func Encode(id uint64, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	buf := make([]byte, HeaderSize+len(payload))
	EncodeHeader(buf, id, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// --------------------------------------------------------------------------
// Decoding
// --------------------------------------------------------------------------

// DecodeHeader parses the header at the front of b
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortBuffer
	}
	return Header{
		ID:          byteOrder.Uint64(b[idOffset:sizeOffset]),
		PayloadSize: byteOrder.Uint32(b[sizeOffset:HeaderSize]),
	}, nil
}

// TryDecode decodes the frame at the front of b.
// If b does not yet contain a complete frame, ok is false and nothing is consumed.
// The returned payload aliases b.
func TryDecode(b []byte) (id uint64, payload []byte, consumed int, ok bool) {
	h, err := DecodeHeader(b)
	if err != nil {
		return 0, nil, 0, false
	}
	total := h.TotalSize()
	if len(b) < total {
		return 0, nil, 0, false
	}
	return h.ID, b[HeaderSize:total:total], total, true
}
