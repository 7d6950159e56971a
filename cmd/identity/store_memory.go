package identity

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is the development and test Store.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]User
	byNorm map[string]string

	// OnDelete runs after a user is removed, under no lock. The server wires
	// it to drop the user's sessions, mirroring ON DELETE CASCADE.
	OnDelete func(ctx context.Context, userID string)
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]User),
		byNorm: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, in NewUser) (User, error) {
	const op = "identity.CreateUser"

	u, err := prepareUser(op, in)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byNorm[u.UsernameNorm]; ok {
		return User{}, ConflictError{Op: op, Field: "username"}
	}
	s.byID[u.ID] = u
	s.byNorm[u.UsernameNorm] = u.ID
	return u, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNorm[NormalizeUsername(username)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByUsername", Resource: "user"}
	}
	return s.byID[id], nil
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	const op = "identity.UpdatePasswordHash"
	if strings.TrimSpace(hash) == "" {
		return invalid(op, "empty hash")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	u.PasswordHash = hash
	s.byID[id] = u
	return nil
}

func (s *MemoryStore) DeleteUserByUsername(ctx context.Context, username string) (User, error) {
	s.mu.Lock()
	norm := NormalizeUsername(username)
	id, ok := s.byNorm[norm]
	if !ok {
		s.mu.Unlock()
		return User{}, NotFoundError{Op: "identity.DeleteUserByUsername", Resource: "user"}
	}
	u := s.byID[id]
	delete(s.byID, id)
	delete(s.byNorm, norm)
	s.mu.Unlock()

	if s.OnDelete != nil {
		s.OnDelete(ctx, u.ID)
	}
	return u, nil
}
