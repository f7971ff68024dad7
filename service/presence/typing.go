package presence

import (
	"sync"
	"time"
)

const (
	// typingWindow is how long a typing signal stays fresh.
	typingWindow = 5 * time.Second
	// maxTypingEntries bounds the tracker; stale entries are swept before
	// the map is allowed to grow past this.
	maxTypingEntries = 4096
)

type typingKey struct {
	ConsultationID uint
	UserID         uint
}

// TypingTracker is a bounded, time-evicting record of who is typing in
// which consultation. State is process-local and lost on restart, which is
// acceptable for an ephemeral indicator.
type TypingTracker struct {
	mu      sync.Mutex
	entries map[typingKey]time.Time
	window  time.Duration
	max     int
	now     func() time.Time
}

func NewTypingTracker() *TypingTracker {
	return &TypingTracker{
		entries: make(map[typingKey]time.Time),
		window:  typingWindow,
		max:     maxTypingEntries,
		now:     time.Now,
	}
}

// Mark records that a user is typing in a consultation right now.
func (t *TypingTracker) Mark(consultationID, userID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entries) >= t.max {
		t.sweepLocked()
	}
	t.entries[typingKey{consultationID, userID}] = t.now()
}

// Active reports whether the user signalled typing within the freshness
// window. Stale entries are removed on read.
func (t *TypingTracker) Active(consultationID, userID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := typingKey{consultationID, userID}
	stamp, ok := t.entries[key]
	if !ok {
		return false
	}
	if t.now().Sub(stamp) > t.window {
		delete(t.entries, key)
		return false
	}
	return true
}

// sweepLocked drops every stale entry. Caller holds the lock.
func (t *TypingTracker) sweepLocked() {
	cutoff := t.now().Add(-t.window)
	for key, stamp := range t.entries {
		if stamp.Before(cutoff) {
			delete(t.entries, key)
		}
	}
}

// Len reports the current number of tracked entries.
func (t *TypingTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
