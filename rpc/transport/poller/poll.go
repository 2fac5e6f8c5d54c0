//go:build unix

package poller

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// pollNotifier implements INotifier on top of poll(2)
type pollNotifier struct {
	fds   []unix.PollFd
	index map[int]int // fd -> position in fds
}

func newPoll() *pollNotifier {
	return &pollNotifier{index: make(map[int]int)}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see poller.INotifier)
// --------------------------------------------------------------------------

func (p *pollNotifier) GetName() string {
	return KindPoll
}

func (p *pollNotifier) Add(fd int) error {
	if _, ok := p.index[fd]; ok {
		return fmt.Errorf("fd %d already registered", fd)
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	return nil
}

func (p *pollNotifier) Remove(fd int) error {
	i, ok := p.index[fd]
	if !ok {
		return fmt.Errorf("fd %d not registered", fd)
	}

	// swap with the last entry to keep the slice dense
	last := len(p.fds) - 1
	if i != last {
		p.fds[i] = p.fds[last]
		p.index[int(p.fds[i].Fd)] = i
	}
	p.fds = p.fds[:last]
	delete(p.index, fd)
	return nil
}

func (p *pollNotifier) Wait(events []Event, timeout time.Duration) (int, error) {
	if len(p.fds) == 0 {
		time.Sleep(max(timeout, 0))
		return 0, nil
	}

	ready, err := unix.Poll(p.fds, timeoutMillis(timeout))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("poll failed: %w", err)
	}

	n := 0
	for i := range p.fds {
		if ready == 0 || n == len(events) {
			break
		}
		re := p.fds[i].Revents
		if re == 0 {
			continue
		}
		ready--
		events[n] = Event{
			Fd:       int(p.fds[i].Fd),
			Readable: re&unix.POLLIN != 0,
			Closed:   re&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0,
		}
		n++
	}
	return n, nil
}

func (p *pollNotifier) Close() error {
	p.fds = nil
	clear(p.index)
	return nil
}
