package profile

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Memory is an in-memory Store, intended for testing.
type Memory struct {
	mu       sync.Mutex
	settings *Settings
}

// NewMemory creates an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		return nil, ErrNotFound
	}
	cp := *m.settings
	cp.CustomSubjects = append([]string(nil), m.settings.CustomSubjects...)
	return &cp, nil
}

func (m *Memory) Save(_ context.Context, p Partial) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		m.settings = &Settings{}
	}
	p.Apply(m.settings)
	return nil
}

// File is a Store backed by a single msgpack file on disk.
type File struct {
	mu   sync.Mutex
	path string
}

// NewFile creates a file-backed Store at path. The file is created on the
// first Save; parent directories must exist.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Load(_ context.Context) (*Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *File) load() (*Settings, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var s Settings
	if err := msgpack.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (f *File) Save(_ context.Context, p Partial) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, err := f.load()
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		s = &Settings{}
	}
	p.Apply(s)

	raw, err := msgpack.Marshal(s)
	if err != nil {
		return err
	}
	// Write-then-rename so a crash mid-write cannot corrupt the file.
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Clean(f.path))
}
