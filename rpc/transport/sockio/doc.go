// Package sockio wraps the raw Unix domain stream socket calls used by the transport.
//
// All functions operate on plain file descriptors. Reads and writes retry EINTR
// in place; EAGAIN is reported as iox.ErrWouldBlock on reads and retried with an
// adaptive backoff on writes until the write deadline passes. An orderly peer
// shutdown is reported as ErrClosed.
package sockio
