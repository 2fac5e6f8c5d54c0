package pending

import (
	"sync"
	"time"

	"github.com/ValentinKolb/udsrpc/lib/util"
)

// Callback receives the payload of a response.
// The payload is owned by the callback and may be retained.
type Callback func(payload []byte)

// entry is a single pending request
type entry struct {
	submittedAt time.Time
	callback    Callback
}

// Table correlates response ids with the callbacks of their requests
type Table struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]entry
	byAge   *util.MapHeap // ids ordered by submission time, relative to epoch
	epoch   time.Time
	now     func() time.Time
}

// New creates an empty table, the first id handed out is 1
func New() *Table {
	return &Table{
		nextID:  1,
		entries: make(map[uint64]entry),
		byAge:   util.NewMapHeap(),
		epoch:   time.Now(),
		now:     time.Now,
	}
}

// --------------------------------------------------------------------------
// Submission & resolution
// --------------------------------------------------------------------------

// Submit registers a callback under a fresh id and returns the id
func (t *Table) Submit(cb Callback) uint64 {
	return t.SubmitAt(t.now(), cb)
}

// SubmitAt registers a callback with an explicit submission time
func (t *Table) SubmitAt(submittedAt time.Time, cb Callback) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++

	t.entries[id] = entry{submittedAt: submittedAt, callback: cb}
	t.byAge.AddItem(id, submittedAt.Sub(t.epoch).Nanoseconds())
	return id
}

// Resolve delivers a response payload to the request with the given id.
// It returns false if no such request is pending (already resolved, evicted or never sent).
func (t *Table) Resolve(id uint64, payload []byte) bool {
	e, ok := t.take(id)
	if !ok {
		return false
	}
	if e.callback != nil {
		e.callback(payload)
	}
	return true
}

// Remove drops a pending request without invoking its callback
func (t *Table) Remove(id uint64) bool {
	_, ok := t.take(id)
	return ok
}

// take removes and returns the entry for id
func (t *Table) take(id uint64) (entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return entry{}, false
	}
	delete(t.entries, id)
	t.byAge.RemoveByKey(id)
	return e, true
}

// --------------------------------------------------------------------------
// Eviction
// --------------------------------------------------------------------------

// EvictExpired drops every request older than timeout (measured at now) without invoking
// its callback and returns how many were dropped. A timeout <= 0 drops all requests.
func (t *Table) EvictExpired(now time.Time, timeout time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timeout <= 0 {
		n := len(t.entries)
		clear(t.entries)
		t.byAge.Clear()
		return n
	}

	evicted := 0
	for {
		oldest, ok := t.byAge.Peek()
		if !ok {
			break
		}
		e := t.entries[oldest.Key]
		if now.Sub(e.submittedAt) <= timeout {
			break
		}
		t.byAge.PopMin()
		delete(t.entries, oldest.Key)
		evicted++
	}
	return evicted
}

// Len returns the number of pending requests
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Clear drops all pending requests without invoking their callbacks
func (t *Table) Clear() int {
	return t.EvictExpired(time.Time{}, 0)
}
