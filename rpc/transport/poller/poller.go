package poller

import (
	"errors"
	"fmt"
	"time"
)

const (
	// KindEpoll selects the epoll backend (linux only)
	KindEpoll = "epoll"
	// KindPoll selects the poll backend
	KindPoll = "poll"
)

// ErrUnsupported is returned by New if the requested backend is not available on this platform
var ErrUnsupported = errors.New("notifier not supported on this platform")

// Event is a readiness notification for one file descriptor
type Event struct {
	Fd int
	// Readable is set if data (or a pending connection) can be read without blocking
	Readable bool
	// Closed is set on hang-up or error, remaining data may still be readable
	Closed bool
}

// INotifier is the interface every readiness backend implements.
// A notifier is owned by a single event loop and is not safe for concurrent use.
type INotifier interface {
	// Add registers fd for read and hang-up notifications
	Add(fd int) error
	// Remove unregisters fd, it must be called before fd is closed
	Remove(fd int) error
	// Wait blocks for at most timeout and fills events with ready descriptors.
	// It returns the number of events written. An interrupted wait returns 0 and no error.
	Wait(events []Event, timeout time.Duration) (int, error)
	// Close releases the notifier
	Close() error
	// GetName returns the name of the backend
	GetName() string
}

// New creates a notifier of the given kind, an empty kind selects the platform default
func New(kind string) (INotifier, error) {
	if kind == "" {
		kind = defaultKind
	}

	switch kind {
	case KindEpoll:
		n, err := newEpoll()
		if err != nil {
			return nil, err
		}
		return n, nil
	case KindPoll:
		return newPoll(), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q, must be one of %s, %s", kind, KindEpoll, KindPoll)
	}
}

// timeoutMillis converts a wait timeout to the millisecond argument of poll and epoll_wait
func timeoutMillis(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	ms := timeout.Milliseconds()
	if ms == 0 && timeout > 0 {
		return 1
	}
	return int(ms)
}
