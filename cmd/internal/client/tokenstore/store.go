package tokenstore

import "sync"

// Source is the read side of a token store.
type Source interface {
	// Get returns the current token and true, or "" and false when no token is held.
	Get() (string, bool)
}

// Store is a mutable token holder. Concurrent Set/Clear calls overwrite each
// other; the last write wins.
type Store interface {
	Source
	Set(token string)
	Clear()
}

// Memory is an in-process Store safe for concurrent use.
type Memory struct {
	mu    sync.RWMutex
	token string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory { return &Memory{} }

// NewMemoryWith returns a store preloaded with token.
func NewMemoryWith(token string) *Memory {
	m := &Memory{}
	m.Set(token)
	return m
}

func (m *Memory) Get() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

// Set replaces the stored token. An empty token is the same as Clear.
func (m *Memory) Set(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}

func (m *Memory) Clear() {
	m.Set("")
}
