package clipcache

import (
	"context"
	"sync"

	"github.com/lingopod/lingopod/pkg/jsontime"
)

// Memory is an in-memory Store implementation.
// It is safe for concurrent use and intended for testing and for sessions
// that do not need replay to survive a restart.
type Memory struct {
	mu    sync.RWMutex
	clips map[string]*Clip
}

// NewMemory creates a new in-memory Store.
func NewMemory() *Memory {
	return &Memory{clips: make(map[string]*Clip)}
}

func (m *Memory) Get(_ context.Context, id string) (*Clip, error) {
	m.mu.RLock()
	c, ok := m.clips[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	cp.Data = make([]byte, len(c.Data))
	copy(cp.Data, c.Data)
	return &cp, nil
}

func (m *Memory) Put(_ context.Context, id string, data []byte, meta Meta) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	clip := &Clip{
		ID:        id,
		Data:      cp,
		ByteSize:  int64(len(cp)),
		CreatedAt: jsontime.Now(),
		Meta:      meta,
	}
	m.mu.Lock()
	m.clips[id] = clip
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.clips, id)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error {
	return nil
}
