// Package denylist remembers revoked access-token ids until the tokens
// would have expired on their own. Both stores satisfy session.Denylist.
package denylist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrEmptyID = errors.New("denylist: empty token id")

// Memory is a process-local denylist. Entries are dropped lazily once expired.
type Memory struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]time.Time), now: time.Now}
}

func (m *Memory) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return ErrEmptyID
	}
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)
	m.entries[tokenID] = now.Add(ttl)
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.entries[tokenID]
	if !ok {
		return false, nil
	}
	if !m.now().Before(until) {
		delete(m.entries, tokenID)
		return false, nil
	}
	return true, nil
}

// Len reports live and not-yet-swept entries.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Memory) sweepLocked(now time.Time) {
	for id, until := range m.entries {
		if !now.Before(until) {
			delete(m.entries, id)
		}
	}
}
