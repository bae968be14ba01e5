package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileName is the registry file name inside the root directory.
const FileName = "config"

// Store reads and persists a Registry.
type Store interface {
	// Bootstrap makes sure the backing storage exists, seeding it with an
	// empty registry. It is idempotent.
	Bootstrap() error

	// Read loads the whole registry.
	Read() (*Registry, error)

	// Persist replaces the stored registry with reg.
	Persist(reg *Registry) error
}

// FileStore keeps the registry in a JSON file.
type FileStore struct {
	root string
	path string
}

// NewFileStore returns a store for <root>/config.
func NewFileStore(root string) *FileStore {
	return &FileStore{
		root: root,
		path: filepath.Join(root, FileName),
	}
}

// Path returns the registry file location.
func (s *FileStore) Path() string {
	return s.path
}

// Bootstrap creates the root directory and an empty registry file if they
// are missing. An existing file is left untouched.
func (s *FileStore) Bootstrap() error {
	if err := os.MkdirAll(s.root, 0700); err != nil {
		return fmt.Errorf("%w: failed to create root directory %s: %v", ErrConfigIO, s.root, err)
	}

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrConfigIO, err)
	}

	return s.Persist(Empty())
}

// Read loads and parses the registry file.
func (s *FileStore) Read() (*Registry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrConfigIO, s.path, err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigParse, s.path, err)
	}
	if reg.Projects == nil {
		reg.Projects = make(map[string]ProjectConfig)
	}

	return &reg, nil
}

// Persist writes the registry pretty-printed. The file is replaced through
// a rename so a crash never leaves it half written. A nil registry is
// written as an empty one.
func (s *FileStore) Persist(reg *Registry) error {
	if reg == nil || reg.Projects == nil {
		reg = Empty()
	}
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("%w: failed to write registry: %v", ErrConfigIO, err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to rename registry: %v", ErrConfigIO, err)
	}

	return nil
}

// MemoryStore keeps the registry in memory. Useful for tests and for
// callers that manage persistence themselves.
type MemoryStore struct {
	mu           sync.RWMutex
	reg          *Registry
	bootstrapped bool

	// PersistErr, when set, is returned by Persist without storing anything.
	PersistErr error
}

// NewMemoryStore returns an empty, not yet bootstrapped store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Bootstrap seeds an empty registry if none exists.
func (m *MemoryStore) Bootstrap() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.bootstrapped {
		m.reg = Empty()
		m.bootstrapped = true
	}
	return nil
}

// Read returns a copy of the stored registry.
func (m *MemoryStore) Read() (*Registry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.bootstrapped {
		return nil, fmt.Errorf("%w: memory store not bootstrapped", ErrConfigIO)
	}
	return m.reg.clone(), nil
}

// Persist stores a copy of reg. A nil registry is stored as an empty one.
func (m *MemoryStore) Persist(reg *Registry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PersistErr != nil {
		return m.PersistErr
	}
	if reg == nil {
		reg = Empty()
	}
	m.reg = reg.clone()
	m.bootstrapped = true
	return nil
}
