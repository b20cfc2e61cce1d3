package shadow

import "sync"

// DeltaCallback receives a delta notification. key is empty when the
// handler registered for the whole desired object; otherwise it is the
// property key the handler registered for and value is that sub-object.
//
// Returning a non-empty code/message marks the delta as rejected: dispatch
// stops at the first such handler and the error is published back to the
// cloud on the delta/rejected topic.
type DeltaCallback func(key string, value any) (code, message string)

type deltaEntry struct {
	key      string // "" means "whole desired object"
	hasKey   bool
	callback DeltaCallback
}

// DeltaRegistry is an append-only list of (property-key, callback) entries.
// Handlers are invoked in registration order and the registry never shrinks,
// per spec invariant 4.
type DeltaRegistry struct {
	mu       sync.RWMutex
	capacity int
	entries  []deltaEntry
}

// NewDeltaRegistry returns a registry admitting at most capacity handlers.
func NewDeltaRegistry(capacity int) *DeltaRegistry {
	return &DeltaRegistry{capacity: capacity}
}

// Register appends a handler. An empty key receives the entire desired
// object; a non-empty key receives only the sub-object at that key, when
// present.
func (r *DeltaRegistry) Register(key string, cb DeltaCallback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.entries) >= r.capacity {
		return newErr("registerDelta", CodeTooManyDeltaHandlers)
	}
	r.entries = append(r.entries, deltaEntry{key: key, hasKey: key != "", callback: cb})
	return nil
}

// DeltaResult is returned by Dispatch: the first handler that reports a user
// error short-circuits the remaining handlers, and that error is reported
// back to the cloud on delta/rejected.
type DeltaResult struct {
	Rejected bool
	Code     string
	Message  string
}

// Dispatch invokes every registered handler in order against desired. If a
// handler returns a non-empty code and message, iteration stops immediately
// and that error is returned for the caller to publish on delta/rejected.
func (r *DeltaRegistry) Dispatch(desired map[string]any) DeltaResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		var code, message string
		if !e.hasKey {
			code, message = e.callback("", desired)
		} else {
			sub, ok := desired[e.key]
			if !ok {
				continue
			}
			code, message = e.callback(e.key, sub)
		}
		if code != "" && message != "" {
			return DeltaResult{Rejected: true, Code: code, Message: message}
		}
	}
	return DeltaResult{}
}

// Len returns the number of registered handlers, mostly useful for tests.
func (r *DeltaRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
