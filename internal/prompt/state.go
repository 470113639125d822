package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/rolelink/internal/discord"
)

// Reserved state keys. User code may not write keys with the reserved prefix.
const (
	reservedPrefix = "_"
	keyPage        = "_page"
)

// State is the key/value data of one prompt session.
type State map[string]json.RawMessage

// Get decodes key into v. It reports false when the key is absent.
func (s State) Get(key string, v any) (bool, error) {
	raw, ok := s[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode state %q: %w", key, err)
	}
	return true, nil
}

// Has reports whether key is present.
func (s State) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := make(State, len(s))
	for k, v := range s {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// StateStore persists prompt sessions with a sliding TTL. Implementations must
// wrap backend failures in ErrStoreUnavailable.
type StateStore interface {
	// Load returns the session under key, or an empty State when absent or expired.
	Load(ctx context.Context, key string) (State, error)

	// Save merges partial into the session; other keys are untouched.
	Save(ctx context.Context, key string, partial State, ttl time.Duration) error

	// Clear removes fields from the session, or the whole session when no
	// fields are named.
	Clear(ctx context.Context, key string, ttl time.Duration, fields ...string) error

	// Delete removes the whole session.
	Delete(ctx context.Context, key string) error
}

// MessageKey is the store key of a session bound to a message.
func MessageKey(wizard string, messageID discord.Snowflake) string {
	return wizard + ":" + messageID.String()
}

// UserKey is the store key of a session bound to a user.
func UserKey(wizard string, userID discord.Snowflake) string {
	return wizard + ":u" + userID.String()
}

func reserved(key string) bool { return strings.HasPrefix(key, reservedPrefix) }

type memEntry struct {
	data    State
	expires time.Time
}

// MemoryStore is a process-local StateStore.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{entries: make(map[string]*memEntry), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load returns a copy of the live session.
func (s *MemoryStore) Load(_ context.Context, key string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.liveLocked(key)
	if e == nil {
		return State{}, nil
	}
	return e.data.Clone(), nil
}

// Save merges partial and refreshes the TTL.
func (s *MemoryStore) Save(_ context.Context, key string, partial State, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.liveLocked(key)
	if e == nil {
		e = &memEntry{data: State{}}
		s.entries[key] = e
	}
	for k, v := range partial {
		e.data[k] = append(json.RawMessage(nil), v...)
	}
	e.expires = s.now().Add(ttl)
	return nil
}

// Clear drops fields and refreshes the TTL.
func (s *MemoryStore) Clear(_ context.Context, key string, ttl time.Duration, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(fields) == 0 {
		delete(s.entries, key)
		return nil
	}
	e := s.liveLocked(key)
	if e == nil {
		return nil
	}
	for _, f := range fields {
		delete(e.data, f)
	}
	e.expires = s.now().Add(ttl)
	return nil
}

// Delete removes the session.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// DeleteExpiredState drops every session that expired before now.
func (s *MemoryStore) DeleteExpiredState(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) liveLocked(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil
	}
	return e
}
