package shadow

import (
	"strings"
	"sync"
	"time"
)

// Status is the outcome delivered to a request callback.
type Status int

const (
	StatusAccepted Status = iota
	StatusRejected
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusAccepted:
		return "ACCEPTED"
	case StatusRejected:
		return "REJECTED"
	case StatusTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// Ack is the result of a published request: accepted (with the response
// document), rejected (with a code/message pair), or timeout.
type Ack struct {
	Status   Status
	Document map[string]any // set only for StatusAccepted
	Code     string         // set only for StatusRejected
	Message  string         // set only for StatusRejected
}

// Callback receives the ack for a single published request exactly once.
type Callback func(action Action, ack Ack, ctx any)

// maxRequestIDLen bounds request-id comparisons, matching the 64-char cap
// the in-flight entry carries (see spec data model).
const maxRequestIDLen = 64

type inflightEntry struct {
	requestID  string
	action     Action
	callback   Callback
	ctx        any
	createdAt  time.Time
	timeoutSec uint8
}

// InFlightTable is a bounded map from request-id to pending request. A fixed
// capacity is retained as an admission-control knob per the original design
// (a linear-scan fixed array simple enough for a constrained device); here
// it backs a hash map, which is the natural target for a general-purpose
// host: insert and an exact-case complete are O(1), while reap and a
// complete that needs a case-folded match scan every entry.
type InFlightTable struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*inflightEntry
}

// NewInFlightTable returns a table admitting at most capacity concurrent
// requests.
func NewInFlightTable(capacity int) *InFlightTable {
	return &InFlightTable{
		capacity: capacity,
		entries:  make(map[string]*inflightEntry, capacity),
	}
}

// Insert registers a pending request. It fails with CodeTooManyInFlight if
// the table is at capacity; no entry is added in that case.
func (t *InFlightTable) Insert(requestID string, action Action, cb Callback, ctx any, timeoutSec uint8) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.capacity {
		return newErr("insert", CodeTooManyInFlight)
	}
	// Duplicate request-ids are a programming error (invariant 1): a fresh
	// UUID v4 makes collision practically impossible, so we simply overwrite
	// rather than defend against it at runtime.
	t.entries[requestID] = &inflightEntry{
		requestID:  requestID,
		action:     action,
		callback:   cb,
		ctx:        ctx,
		createdAt:  time.Now(),
		timeoutSec: timeoutSec,
	}
	return nil
}

// Complete looks up requestID (case-insensitively, bounded to
// maxRequestIDLen), removes it, and invokes its callback with ack. The
// callback runs after the slot is released under lock but before Complete
// returns, so the exactly-once guarantee holds even though the mutex itself
// is no longer held during invocation -- this avoids a caller's callback
// re-entering the table (e.g. issuing another request) and deadlocking on
// its own lock.
//
// A request-id with no matching entry is reported via ok=false; spec treats
// this as a warning, never an error raised to a caller.
func (t *InFlightTable) Complete(requestID string, ack Ack) (ok bool) {
	if len(requestID) > maxRequestIDLen {
		return false
	}
	key := strings.ToLower(requestID)

	t.mu.Lock()
	entry, found := t.lookupLocked(key)
	if found {
		delete(t.entries, entry.requestID)
	}
	t.mu.Unlock()

	if !found {
		return false
	}
	entry.callback(entry.action, ack, entry.ctx)
	return true
}

// lookupLocked scans for an occupied entry whose id matches key
// case-insensitively. Must be called with t.mu held.
func (t *InFlightTable) lookupLocked(key string) (*inflightEntry, bool) {
	if e, ok := t.entries[key]; ok {
		return e, true
	}
	for id, e := range t.entries {
		if strings.ToLower(id) == key {
			return e, true
		}
	}
	return nil, false
}

// Reap expires every entry whose deadline has passed as of now, invoking
// each callback with a timeout ack. Returns the number reaped.
func (t *InFlightTable) Reap(now time.Time) int {
	t.mu.Lock()
	var expired []*inflightEntry
	for id, e := range t.entries {
		if now.Sub(e.createdAt) > time.Duration(e.timeoutSec)*time.Second {
			expired = append(expired, e)
			delete(t.entries, id)
		}
	}
	t.mu.Unlock()

	for _, e := range expired {
		e.callback(e.action, Ack{Status: StatusTimeout}, e.ctx)
	}
	return len(expired)
}

// Len returns the number of pending requests, mostly useful for tests.
func (t *InFlightTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
