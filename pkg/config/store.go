package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// Store persists the configuration. Exists reports whether setup has ever
// been completed, which decides whether the device boots into setup mode.
type Store interface {
	Exists(ctx context.Context) (bool, error)
	Load(ctx context.Context) (*Config, error)
	Save(ctx context.Context, cfg *Config) error
}

// FileStore keeps the configuration in a JSON file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Exists(ctx context.Context) (bool, error) {
	_, err := os.Stat(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat config file: %w", err)
	}
	return true, nil
}

func (s *FileStore) Load(ctx context.Context) (*Config, error) {
	return Load(s.Path)
}

func (s *FileStore) Save(ctx context.Context, cfg *Config) error {
	return cfg.Save(s.Path)
}

// Holder gives goroutines a consistent view of a configuration that may be
// replaced at any time. Readers take a snapshot per cycle; a concurrent Set
// is seen on the next one.
type Holder struct {
	mu  sync.RWMutex
	cfg *Config
}

func NewHolder(cfg *Config) *Holder {
	return &Holder{cfg: cfg.Clone()}
}

// Snapshot returns a private copy of the current configuration.
func (h *Holder) Snapshot() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg.Clone()
}

// Set replaces the current configuration.
func (h *Holder) Set(cfg *Config) {
	cp := cfg.Clone()
	h.mu.Lock()
	h.cfg = cp
	h.mu.Unlock()
}
