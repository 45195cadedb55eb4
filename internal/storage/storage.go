package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/eugenenazirov/ijbridge/internal/config"
)

// Storage persists the user's settings document between sessions.
type Storage interface {
	GetSettings() (config.Partial, error)
	SetSettings(settings config.Partial) error
}

// MemoryStorage keeps settings in-memory and guards access with a RWMutex.
type MemoryStorage struct {
	mu       sync.RWMutex
	settings config.Partial
}

// NewMemoryStorage initialises storage with a copy of initial.
func NewMemoryStorage(initial config.Partial) *MemoryStorage {
	return &MemoryStorage{settings: clone(initial)}
}

// GetSettings returns a copy of the stored settings.
func (s *MemoryStorage) GetSettings() (config.Partial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return clone(s.settings), nil
}

// SetSettings replaces the stored settings with a copy of settings.
func (s *MemoryStorage) SetSettings(settings config.Partial) error {
	s.mu.Lock()
	s.settings = clone(settings)
	s.mu.Unlock()

	return nil
}

// FileStorage keeps settings in a YAML settings file. A missing file reads as
// an empty document.
type FileStorage struct {
	mu   sync.Mutex
	path string
}

// NewFileStorage returns storage backed by path.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the backing file path.
func (s *FileStorage) Path() string {
	return s.path
}

// GetSettings reads the settings file.
func (s *FileStorage) GetSettings() (config.Partial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := config.LoadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Partial{}, nil
	}
	if err != nil {
		return config.Partial{}, fmt.Errorf("read settings: %w", err)
	}
	return settings, nil
}

// SetSettings rewrites the settings file atomically. Only set fields are
// written.
func (s *FileStorage) SetSettings(settings config.Partial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := config.WriteFile(s.path, settings, config.OmitUnset()); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func clone(p config.Partial) config.Partial {
	return config.Merge(config.Partial{}, p)
}
