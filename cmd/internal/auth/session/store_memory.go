package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the development and test Store.
type MemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]Row
	byHash map[string]string
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]Row),
		byHash: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, in NewRow) (Row, error) {
	row, err := prepareRow(in)
	if err != nil {
		return Row{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[row.ID] = row
	s.byHash[row.TokenHash] = row.ID
	return row, nil
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.byID[id]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return row, nil
}

func (s *MemoryStore) GetByTokenHash(_ context.Context, tokenHash string) (Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return s.byID[id], nil
}

func (s *MemoryStore) Touch(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.byID[id]
	if !ok {
		return ErrSessionNotFound
	}
	t := now.UTC()
	row.LastUsedAt = &t
	s.byID[id] = row
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return ErrSessionNotFound
	}
	s.removeLocked(id)
	return nil
}

func (s *MemoryStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	return s.deleteMatching(func(r Row) bool { return r.UserID == userID }), nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return s.deleteMatching(func(r Row) bool { return !r.ExpiresAt.After(now) }), nil
}

func (s *MemoryStore) DeleteAll(_ context.Context) (int64, error) {
	return s.deleteMatching(func(Row) bool { return true }), nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

// DropUser matches identity.MemoryStore.OnDelete, standing in for ON DELETE CASCADE.
func (s *MemoryStore) DropUser(ctx context.Context, userID string) {
	_, _ = s.DeleteByUser(ctx, userID)
}

func (s *MemoryStore) deleteMatching(match func(Row) bool) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, row := range s.byID {
		if match(row) {
			s.removeLocked(id)
			n++
		}
	}
	return n
}

func (s *MemoryStore) removeLocked(id string) {
	delete(s.byHash, s.byID[id].TokenHash)
	delete(s.byID, id)
}
