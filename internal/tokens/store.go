package tokens

import (
	"context"
	"encoding/json"
	"sync"
)

// Flags is the auxiliary session state persisted next to the credential
// pair. It is written on login and cleared together with the credentials
// on logout or expiration.
type Flags struct {
	User         json.RawMessage `json:"user,omitempty"`
	IsLoggedIn   bool            `json:"isLoggedIn"`
	IsAdmin      bool            `json:"isAdmin"`
	IsSuperAdmin bool            `json:"isSuperAdmin"`
	IsModerator  bool            `json:"isModerator"`
	IsInstructor bool            `json:"isInstructor"`
}

// Store persists the credential pair and auxiliary flags.
// Different implementations keep tokens in files, cookie sessions, or
// memory. Methods take a context so per-request implementations (the web
// session store) can recover the request and response writer from it.
//
// A store running outside a context it can serve (for example the web
// store with no request in the context) returns empty values rather than
// failing; an absent credential is an empty string with a nil error.
type Store interface {
	// AccessToken returns the current access credential, "" if absent.
	AccessToken(ctx context.Context) (string, error)

	// RefreshToken returns the current refresh credential, "" if absent.
	RefreshToken(ctx context.Context) (string, error)

	// SetTokens overwrites both credentials in every sink the store
	// manages. The write is atomic from the caller's perspective: a
	// reader of any sink sees either the old pair or the new pair.
	SetTokens(ctx context.Context, access, refresh string) error

	// SetFlags overwrites the auxiliary session flags.
	SetFlags(ctx context.Context, flags Flags) error

	// Clear removes both credentials and all auxiliary flags from every
	// sink. Clearing an already-clear store is a no-op.
	Clear(ctx context.Context) error
}

// MemoryStore is a Store backed by process memory. Used by tests and by
// short-lived tools that have no persistent storage of their own.
type MemoryStore struct {
	mu      sync.RWMutex
	access  string
	refresh string
	flags   Flags
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) AccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.access, nil
}

func (s *MemoryStore) RefreshToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh, nil
}

func (s *MemoryStore) SetTokens(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	return nil
}

func (s *MemoryStore) SetFlags(ctx context.Context, flags Flags) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags = flags
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	s.flags = Flags{}
	return nil
}

// Flags returns the stored auxiliary flags.
func (s *MemoryStore) Flags(ctx context.Context) (Flags, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.flags, nil
}
