// Package wallet holds the shared wallet connection state and keeps every
// subscriber view in sync with it across connects, verifications and
// process restarts.
package wallet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoSnapshot is returned by Load when no snapshot exists for a key.
var ErrNoSnapshot = errors.New("no persisted snapshot")

// Persister stores state snapshots by key across restarts.
type Persister interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, error)
	Delete(key string) error
}

// FilePersister keeps one JSON file per key in a directory.
type FilePersister struct {
	dir string
}

// NewFilePersister creates the directory if needed.
func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	return &FilePersister{dir: dir}, nil
}

func (p *FilePersister) path(key string) string {
	return filepath.Join(p.dir, key+".json")
}

// Save writes the snapshot atomically via a rename.
func (p *FilePersister) Save(key string, data []byte) error {
	tmp := p.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, p.path(key)); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for a key.
func (p *FilePersister) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(p.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	return data, nil
}

// Delete removes the snapshot for a key. Missing snapshots are not an error.
func (p *FilePersister) Delete(key string) error {
	err := os.Remove(p.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing snapshot: %w", err)
	}
	return nil
}

// MemPersister is an in-memory Persister for tests.
type MemPersister struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemPersister creates an empty in-memory persister.
func NewMemPersister() *MemPersister {
	return &MemPersister{data: make(map[string][]byte)}
}

func (p *MemPersister) Save(key string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	p.data[key] = cp
	return nil
}

func (p *MemPersister) Load(key string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.data[key]
	if !ok {
		return nil, ErrNoSnapshot
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (p *MemPersister) Delete(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.data, key)
	return nil
}

// Keys lists persisted keys, for tests.
func (p *MemPersister) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.data))
	for k := range p.data {
		out = append(out, k)
	}
	return out
}
