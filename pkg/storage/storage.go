package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"
)

var ErrCorruptFile = errors.New("storage: corrupt store file")

// Store is a synchronous text key/value surface, the shape the credential
// store persists through. Implementations must tolerate concurrent callers.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Set inserts or overwrites one entry.
	Set(key, value string) error
	// Delete removes one entry; deleting an absent key is not an error.
	Delete(key string) error
}

// FileStore keeps all entries in a single JSON file. The whole file is
// rewritten on every mutation; entries are small text values so this stays
// cheap.
type FileStore struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

func NewFileStore(fs afero.Fs, path string) *FileStore {
	return &FileStore{
		fs:   fs,
		path: path,
	}
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return "", false, err
	}

	v, ok := m[key]
	return v, ok, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return err
	}

	m[key] = value
	return s.write(m)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.read()
	if err != nil {
		return err
	}

	if _, ok := m[key]; !ok {
		return nil
	}

	delete(m, key)
	return s.write(m)
}

func (s *FileStore) read() (map[string]string, error) {
	b, err := afero.ReadFile(s.fs, s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", s.path, err)
	}

	m := map[string]string{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCorruptFile, s.path)
	}
	return m, nil
}

func (s *FileStore) write(m map[string]string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	if err := afero.WriteFile(s.fs, s.path, b, 0600); err != nil {
		return fmt.Errorf("storage: write %s: %w", s.path, err)
	}
	return nil
}
