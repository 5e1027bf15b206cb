// Package store provides the guest-tier persistence backends for dreamtalk.
//
// The guest tier holds the device-local conversation state for users who
// have not authenticated: transcript, stage, hint, guest session id, and
// optional profile fields, each stored as an independent key. Absence of any
// key is always a valid state. Backends: SQLite (default), PostgreSQL, and
// an in-memory store for tests.
package store

import "sync"

// Guest-tier keys. Each is independently readable, writable, and deletable.
const (
	// KeyTranscript holds the JSON-encoded message transcript.
	KeyTranscript = "transcript"
	// KeyStage holds the last known stage label.
	KeyStage = "stage"
	// KeyHint holds the last hint returned by the backend.
	KeyHint = "hint"
	// KeyGuestSessionID holds the opaque guest session identifier.
	KeyGuestSessionID = "guest_session_id"
	// KeyProfileName holds the optional guest display name.
	KeyProfileName = "profile_name"
	// KeyProfileBirthDate holds the optional guest birth date (YYYY-MM-DD).
	KeyProfileBirthDate = "profile_birth_date"
)

// Store is the guest-tier persistence abstraction.
type Store interface {
	// Get returns the value for (userID, key) and whether it was present.
	Get(userID, key string) (string, bool, error)
	// Set writes the value for (userID, key), replacing any previous value.
	Set(userID, key, value string) error
	// Delete removes (userID, key); deleting an absent key is not an error.
	Delete(userID, key string) error
	// ClearUser removes every guest-tier key for the user.
	ClearUser(userID string) error
	// Close releases the underlying resources.
	Close() error
}

// InMemoryStore is a map-backed Store for tests and DSN-less runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: make(map[string]map[string]string)}
}

func (s *InMemoryStore) Get(userID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.data[userID]
	if !ok {
		return "", false, nil
	}
	v, ok := user[key]
	return v, ok, nil
}

func (s *InMemoryStore) Set(userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.data[userID]
	if !ok {
		user = make(map[string]string)
		s.data[userID] = user
	}
	user[key] = value
	return nil
}

func (s *InMemoryStore) Delete(userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.data[userID]; ok {
		delete(user, key)
	}
	return nil
}

func (s *InMemoryStore) ClearUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, userID)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }
