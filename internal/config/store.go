package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"
)

// Store owns the live configuration and persists it after every mutation.
type Store struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

// NewStore wraps an already loaded configuration.
func NewStore(path string, cfg Config) *Store {
	return &Store{path: path, cfg: cfg.Clone()}
}

// Open loads the configuration at path. When the file does not exist yet it
// is written with the defaults so operators have something to edit.
func Open(path string) (*Store, error) {
	cfg, created, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := NewStore(path, cfg)
	if created {
		if err := Write(path, cfg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the file the store persists to.
func (s *Store) Path() string {
	return s.path
}

// Get returns a snapshot of the current configuration.
func (s *Store) Get() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Update applies fn to a copy of the configuration, validates it and writes it
// to disk before publishing it. If fn, validation or the write fails, the
// previous configuration stays in effect both in memory and on disk.
func (s *Store) Update(fn func(*Config) error) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg.Clone()
	if err := fn(&next); err != nil {
		return s.cfg.Clone(), err
	}
	if err := next.Validate(); err != nil {
		return s.cfg.Clone(), err
	}
	if err := Write(s.path, next); err != nil {
		return s.cfg.Clone(), err
	}
	s.cfg = next
	return next.Clone(), nil
}

// Write serializes cfg as indented JSON and atomically replaces path.
func Write(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("encode config JSON: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".zip_backup-*.json")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write config %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close config %q: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace config %q: %w", path, err)
	}
	return nil
}
