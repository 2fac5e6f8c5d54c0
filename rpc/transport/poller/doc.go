// Package poller provides the readiness notifiers used by the transport event loops.
//
// A notifier watches a set of file descriptors for read readiness and hang-up and
// reports them through Wait, which always returns after at most the given timeout.
// Two backends exist: epoll (linux only) and poll (every unix). New selects one by
// name, an empty name picks the best backend for the platform.
package poller
