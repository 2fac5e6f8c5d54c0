package sockio

import (
	"errors"
	"fmt"
	"os"
	"time"

	"code.hybscloud.com/iox"
	"github.com/ValentinKolb/udsrpc/lib/frame"
	"golang.org/x/sys/unix"
)

var (
	// ErrClosed is returned when the peer closed its end of the stream
	ErrClosed = errors.New("socket closed by peer")
	// ErrWriteTimeout is returned when a frame could not be written before the write deadline
	ErrWriteTimeout = errors.New("write timed out")
)

// --------------------------------------------------------------------------
// Socket setup
// --------------------------------------------------------------------------

// newStreamSocket creates a close-on-exec Unix domain stream socket
func newStreamSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("failed to create socket: %w", err)
	}
	unix.CloseOnExec(fd)
	return fd, nil
}

// Dial connects a fresh blocking socket to the socket file at path.
// recvTimeout and sendTimeout are applied before connecting so a connect cannot hang.
func Dial(path string, recvTimeout, sendTimeout time.Duration) (int, error) {
	fd, err := newStreamSocket()
	if err != nil {
		return -1, err
	}

	if err := SetTimeouts(fd, recvTimeout, sendTimeout); err != nil {
		unix.Close(fd)
		return -1, err
	}

	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	return fd, nil
}

// Listen removes any stale file at path, binds a non-blocking socket to it and starts listening
func Listen(path string, backlog int) (int, error) {
	if err := os.RemoveAll(path); err != nil {
		return -1, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	fd, err := newStreamSocket()
	if err != nil {
		return -1, err
	}

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to bind %s: %w", path, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to listen on %s: %w", path, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("failed to set listener non-blocking: %w", err)
	}
	return fd, nil
}

// Accept accepts one pending connection and returns it in non-blocking mode.
// It returns iox.ErrWouldBlock if no connection is pending.
func Accept(listenFd int) (int, error) {
	for {
		fd, _, err := unix.Accept(listenFd)
		if err == nil {
			unix.CloseOnExec(fd)
			if err := unix.SetNonblock(fd, true); err != nil {
				unix.Close(fd)
				return -1, fmt.Errorf("failed to set peer non-blocking: %w", err)
			}
			return fd, nil
		}
		switch {
		case errors.Is(err, unix.EINTR), errors.Is(err, unix.ECONNABORTED):
			continue
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EWOULDBLOCK):
			return -1, iox.ErrWouldBlock
		default:
			return -1, fmt.Errorf("accept failed: %w", err)
		}
	}
}

// SetTimeouts sets SO_RCVTIMEO and SO_SNDTIMEO, a zero duration leaves the option untouched
func SetTimeouts(fd int, recvTimeout, sendTimeout time.Duration) error {
	if recvTimeout > 0 {
		tv := unix.NsecToTimeval(recvTimeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return fmt.Errorf("failed to set receive timeout: %w", err)
		}
	}
	if sendTimeout > 0 {
		tv := unix.NsecToTimeval(sendTimeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			return fmt.Errorf("failed to set send timeout: %w", err)
		}
	}
	return nil
}

// Close closes fd, negative descriptors are ignored
func Close(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}

// Shutdown shuts down both directions of fd so that a poller watching it reports a hang-up
func Shutdown(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Shutdown(fd, unix.SHUT_RDWR)
}

// --------------------------------------------------------------------------
// Reading & writing
// --------------------------------------------------------------------------

// IsTransient reports whether err is a would-block or interrupted error that can be retried
func IsTransient(err error) bool {
	return iox.IsWouldBlock(err) ||
		errors.Is(err, unix.EAGAIN) ||
		errors.Is(err, unix.EWOULDBLOCK) ||
		errors.Is(err, unix.EINTR)
}

// Read reads once into p. It returns iox.ErrWouldBlock if no data is available
// (or the receive timeout elapsed) and ErrClosed on an orderly shutdown by the peer.
func Read(fd int, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(fd, p)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if IsTransient(err) {
				return 0, iox.ErrWouldBlock
			}
			return 0, fmt.Errorf("read failed: %w", err)
		}
		if n == 0 {
			return 0, ErrClosed
		}
		return n, nil
	}
}

// WriteFrame writes the header and payload of one frame with a vectored write.
// Partial writes are continued and transient errors are retried with backoff until
// timeout has passed; a timeout <= 0 retries indefinitely.
func WriteFrame(fd int, id uint64, payload []byte, timeout time.Duration) error {
	header, err := encodeHeader(id, len(payload))
	if err != nil {
		return err
	}

	iovs := [][]byte{header[:], payload}
	if len(payload) == 0 {
		iovs = iovs[:1]
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	var bo iox.Backoff
	for len(iovs) > 0 {
		n, err := writev(fd, iovs)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if !IsTransient(err) {
				return fmt.Errorf("write failed: %w", err)
			}
			if !deadline.IsZero() && time.Now().After(deadline) {
				return ErrWriteTimeout
			}
			bo.Wait()
			continue
		}
		bo.Reset()
		iovs = advance(iovs, n)
	}
	return nil
}

// encodeHeader builds the header of a frame with size payload bytes
func encodeHeader(id uint64, size int) ([frame.HeaderSize]byte, error) {
	var header [frame.HeaderSize]byte
	if uint64(size) > frame.MaxPayloadSize {
		return header, fmt.Errorf("%w: %d bytes", frame.ErrPayloadTooLarge, size)
	}
	frame.EncodeHeader(header[:], id, uint32(size))
	return header, nil
}

// advance drops the first n written bytes from iovs
func advance(iovs [][]byte, n int) [][]byte {
	for len(iovs) > 0 && n >= len(iovs[0]) {
		n -= len(iovs[0])
		iovs = iovs[1:]
	}
	if len(iovs) > 0 {
		iovs[0] = iovs[0][n:]
	}
	return iovs
}
