package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one JSON file per key under <dataDir>/state.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	closed bool
}

// NewFileStore creates the state directory if needed.
func NewFileStore(dataDir string) (*FileStore, error) {
	dir := filepath.Join(dataDir, "state")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Get reads the file for key.
func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put writes value to a temp file and renames it over the key's file so
// readers never see a partial snapshot.
func (s *FileStore) Put(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tmp, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(key))
}

// Close marks the store closed.
func (s *FileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Dir returns the directory holding the state files.
func (s *FileStore) Dir() string {
	return s.dir
}

// path maps a key like "mapOverLayer:lastState" to a safe file name.
func (s *FileStore) path(key string) string {
	var b strings.Builder
	for _, r := range key {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return filepath.Join(s.dir, b.String()+".json")
}

var _ Store = (*FileStore)(nil)
