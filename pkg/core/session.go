package core

import (
	"regexp"
	"sync"
	"time"
)

// sessionRegex extracts the session UUID from an Anthropic metadata
// user_id field formatted like "user_<hex>_account__session_<uuid>".
var sessionRegex = regexp.MustCompile(`session_([a-f0-9-]{36})$`)

// SessionKeyDefaultTTL is the fixed TTL for session-table entries.
const SessionKeyDefaultTTL = time.Hour

// ExtractSessionID pulls the session UUID out of an Anthropic metadata
// user_id value, if present.
func ExtractSessionID(userID string) (sessionID string, ok bool) {
	m := sessionRegex.FindStringSubmatch(userID)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SessionKey composes the session-table key: "{principal}:{session_id}"
// when a session id was extracted, else just "{principal}".
func SessionKey(principal, userID string) string {
	if sessionID, ok := ExtractSessionID(userID); ok {
		return principal + ":" + sessionID
	}
	return principal
}

// sessionEntry is the sticky-routing record for one session key.
type sessionEntry struct {
	Provider     string
	InstanceName string
	LastUsedAt   time.Time
}

// SessionTable is a TTL-expiring concurrent map from session key to the
// instance it's pinned to, with a background cleanup goroutine:
// entries only expire by age, there is no size-bounded eviction.
type SessionTable struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
	ttl     time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewSessionTable creates a session table with the default 1h TTL and
// starts its background sweeper.
func NewSessionTable() *SessionTable {
	return newSessionTableWithClock(SessionKeyDefaultTTL, time.Now)
}

func newSessionTableWithClock(ttl time.Duration, now func() time.Time) *SessionTable {
	t := &SessionTable{
		entries: make(map[string]*sessionEntry),
		ttl:     ttl,
		now:     now,
		stopCh:  make(chan struct{}),
	}
	go t.sweepLoop()
	return t
}

// Lookup returns the sticky instance for a key only if it still matches
// the requested provider and has not expired (expiry is checked here;
// health is checked by the caller against the filtered healthy set).
func (t *SessionTable) Lookup(key, provider string) (instanceName string, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, found := t.entries[key]
	if !found || e.Provider != provider {
		return "", false
	}
	if t.now().Sub(e.LastUsedAt) > t.ttl {
		return "", false
	}
	return e.InstanceName, true
}

// Record upserts the sticky entry for a key, refreshing LastUsedAt.
func (t *SessionTable) Record(key, provider, instanceName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = &sessionEntry{
		Provider:     provider,
		InstanceName: instanceName,
		LastUsedAt:   t.now(),
	}
}

// purgeExpired removes entries past their TTL. Only sweepLoop calls it;
// Lookup ignores an expired entry but does not remove it.
func (t *SessionTable) purgeExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	for key, e := range t.entries {
		if now.Sub(e.LastUsedAt) > t.ttl {
			delete(t.entries, key)
		}
	}
}

func (t *SessionTable) sweepLoop() {
	ticker := time.NewTicker(t.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.purgeExpired()
		case <-t.stopCh:
			return
		}
	}
}

// Close stops the background sweeper.
func (t *SessionTable) Close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Len reports the current entry count, for tests and /health reporting.
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
