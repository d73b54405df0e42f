package tokens

import (
	"context"
	"sync"
)

// Store is the durable credential store, keyed by user ID.
//
// Implementations must be safe for concurrent use. Absence of a record is a
// valid, expected state and is reported as ErrNoRecord, not invented.
type Store interface {
	// Get returns the record for a user, or ErrNoRecord.
	Get(ctx context.Context, userID string) (*CredentialRecord, error)

	// Put overwrites the record for rec.UserID unconditionally.
	Put(ctx context.Context, rec *CredentialRecord) error

	// CompareAndSwap overwrites the record for rec.UserID only if the
	// stored refresh token still equals prevRefreshToken. It returns
	// ErrSwapConflict when another writer already rotated the token, and
	// ErrNoRecord when the record vanished entirely.
	CompareAndSwap(ctx context.Context, prevRefreshToken string, rec *CredentialRecord) error

	// Delete removes the record for a user. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, userID string) error
}

// MemoryStore is an in-memory credential store for stdio transport and
// tests. Records survive for the process lifetime only.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*CredentialRecord
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*CredentialRecord),
	}
}

// Get returns the record for a user, or ErrNoRecord.
func (s *MemoryStore) Get(_ context.Context, userID string) (*CredentialRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrNoRecord
	}
	return rec.clone(), nil
}

// Put overwrites the record for rec.UserID.
func (s *MemoryStore) Put(_ context.Context, rec *CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[rec.UserID] = rec.clone()
	return nil
}

// CompareAndSwap overwrites the record only if the stored refresh token
// still matches prevRefreshToken.
func (s *MemoryStore) CompareAndSwap(_ context.Context, prevRefreshToken string, rec *CredentialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[rec.UserID]
	if !ok {
		return ErrNoRecord
	}
	if stored.RefreshToken != prevRefreshToken {
		return ErrSwapConflict
	}

	s.records[rec.UserID] = rec.clone()
	return nil
}

// Delete removes the record for a user.
func (s *MemoryStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, userID)
	return nil
}
