//go:build unix && !linux

package poller

const defaultKind = KindPoll

func newEpoll() (INotifier, error) {
	return nil, ErrUnsupported
}
