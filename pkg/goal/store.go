package goal

import (
	"context"
	"sync"
)

// Completion is one recorded goal completion.
type Completion struct {
	Goal *Goal
	XP   int
}

// MemoryStore is an in-memory Store for tests and ephemeral sessions.
type MemoryStore struct {
	mu          sync.Mutex
	goals       map[string]*Goal
	completions []Completion
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{goals: make(map[string]*Goal)}
}

func (m *MemoryStore) SaveGoal(_ context.Context, g *Goal) error {
	m.mu.Lock()
	m.goals[g.ID] = g.clone()
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) RecordCompletion(_ context.Context, g *Goal, xp int) error {
	m.mu.Lock()
	m.completions = append(m.completions, Completion{Goal: g.clone(), XP: xp})
	m.mu.Unlock()
	return nil
}

// Saved returns the stored state for a goal id, or nil.
func (m *MemoryStore) Saved(id string) *Goal {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.goals[id]
	if !ok {
		return nil
	}
	return g.clone()
}

// Completions returns a copy of the completion log.
func (m *MemoryStore) Completions() []Completion {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Completion(nil), m.completions...)
}
