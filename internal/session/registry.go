package session

import (
	"sync"
	"time"
)

// attempt is an in-flight connection attempt. done is closed when the
// attempt finishes; err holds the outcome and may only be read after done.
type attempt struct {
	done chan struct{}
	err  error
}

// entry is the per-outlet connection state. At most one of conn and att is
// non-nil at a time: a live handle, or an attempt in flight, or neither.
type entry struct {
	conn        Conn
	att         *attempt
	blocked     bool
	lastQR      string
	lastAttempt time.Time
	retries     int
}

// registry tracks all per-outlet connection state behind one mutex. Every
// transition happens under the lock so concurrent callers observe at most
// one live handle or one in-flight attempt per outlet.
type registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) get(outletID string) *entry {
	e, ok := r.entries[outletID]
	if !ok {
		e = &entry{}
		r.entries[outletID] = e
	}
	return e
}

// Live returns the live handle for the outlet, or nil.
func (r *registry) Live(outletID string) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[outletID]; ok {
		return e.conn
	}
	return nil
}

// Begin claims the right to dial for an outlet. It returns (att, true) when
// the caller now owns a fresh attempt, or (existing, false) when another
// attempt is already in flight or a live handle exists (att is nil in the
// live case).
func (r *registry) Begin(outletID string) (*attempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.get(outletID)
	if e.conn != nil {
		return nil, false
	}
	if e.att != nil {
		return e.att, false
	}
	att := &attempt{done: make(chan struct{})}
	e.att = att
	e.lastAttempt = time.Now()
	return att, true
}

// Finish resolves the outlet's in-flight attempt. On success the handle
// becomes the outlet's live connection and the retry counter resets.
func (r *registry) Finish(outletID string, conn Conn, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.get(outletID)
	att := e.att
	e.att = nil
	if err == nil {
		e.conn = conn
		e.retries = 0
	}
	if att != nil {
		att.err = err
		close(att.done)
	}
}

// DropConn discards the live handle but keeps block state and attempt
// timing, so cooldown and mismatch decisions survive the drop. It returns
// the dropped handle, or nil if none was live.
func (r *registry) DropConn(outletID string) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[outletID]
	if !ok {
		return nil
	}
	c := e.conn
	e.conn = nil
	e.lastQR = ""
	return c
}

// Purge removes all in-memory state for the outlet, including block flags
// and retry counters. Used by full session resets. Returns the live handle,
// if any, so the caller can close it outside the lock.
func (r *registry) Purge(outletID string) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[outletID]
	if !ok {
		return nil
	}
	delete(r.entries, outletID)
	return e.conn
}

// Block suppresses automatic reconnection for the outlet.
func (r *registry) Block(outletID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(outletID).blocked = true
}

// ClearBlock lifts the reconnect suppression for the outlet.
func (r *registry) ClearBlock(outletID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[outletID]; ok {
		e.blocked = false
	}
}

func (r *registry) Blocked(outletID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[outletID]; ok {
		return e.blocked
	}
	return false
}

// SetQR records the latest pairing code for the outlet.
func (r *registry) SetQR(outletID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(outletID).lastQR = code
}

func (r *registry) QR(outletID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[outletID]; ok {
		return e.lastQR
	}
	return ""
}

// Connecting reports whether a connection attempt is in flight.
func (r *registry) Connecting(outletID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[outletID]; ok {
		return e.att != nil
	}
	return false
}

// LastAttempt returns when the outlet last started a connection attempt.
func (r *registry) LastAttempt(outletID string) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[outletID]; ok {
		return e.lastAttempt
	}
	return time.Time{}
}

// BumpRetries increments and returns the outlet's consecutive reconnect
// counter.
func (r *registry) BumpRetries(outletID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.get(outletID)
	e.retries++
	return e.retries
}

// OutletIDs returns the IDs of every outlet with any in-memory state.
func (r *registry) OutletIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}
