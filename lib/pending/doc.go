// Package pending implements the client-side table of requests that were sent but
// not yet answered.
//
// Every request gets a unique id from a per-table counter (starting at 1, 0 is never
// handed out) and is stored together with its submission time and the callback that
// receives the response. An entry leaves the table in exactly one of two ways:
//
//   - Resolve: the matching response arrived. The entry is removed under the lock and
//     the callback is invoked after the lock was released, so a callback may submit new
//     requests without deadlocking.
//
//   - EvictExpired: the entry is older than the timeout. It is dropped without invoking
//     the callback. The event loop calls this on every iteration and flushes the whole
//     table (timeout 0) whenever the connection is lost.
//
// Ids are never reused within the lifetime of a table, so a late response for an
// evicted request can never be delivered to a newer request.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. Submit is called from arbitrary caller
//	goroutines while Resolve and EvictExpired run on the event loop.
package pending
