package poller

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const defaultKind = KindEpoll

// epollNotifier implements INotifier on top of epoll(7)
type epollNotifier struct {
	epfd int
	raw  []unix.EpollEvent
}

func newEpoll() (*epollNotifier, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("failed to create epoll instance: %w", err)
	}
	return &epollNotifier{epfd: epfd}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see poller.INotifier)
// --------------------------------------------------------------------------

func (e *epollNotifier) GetName() string {
	return KindEpoll
}

func (e *epollNotifier) Add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLRDHUP, Fd: int32(fd)}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("failed to register fd %d: %w", fd, err)
	}
	return nil
}

func (e *epollNotifier) Remove(fd int) error {
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{}); err != nil {
		return fmt.Errorf("failed to unregister fd %d: %w", fd, err)
	}
	return nil
}

func (e *epollNotifier) Wait(events []Event, timeout time.Duration) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}
	if cap(e.raw) < len(events) {
		e.raw = make([]unix.EpollEvent, len(events))
	}
	raw := e.raw[:len(events)]

	n, err := unix.EpollWait(e.epfd, raw, timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("epoll_wait failed: %w", err)
	}

	for i := 0; i < n; i++ {
		ev := raw[i].Events
		events[i] = Event{
			Fd:       int(raw[i].Fd),
			Readable: ev&unix.EPOLLIN != 0,
			Closed:   ev&(unix.EPOLLHUP|unix.EPOLLERR|unix.EPOLLRDHUP) != 0,
		}
	}
	return n, nil
}

func (e *epollNotifier) Close() error {
	if e.epfd < 0 {
		return nil
	}
	err := unix.Close(e.epfd)
	e.epfd = -1
	return err
}
