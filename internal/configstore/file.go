// Package configstore persists the operator-supplied replay directives as a
// JSON array on disk, replaced wholesale on every update.
package configstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hydrowatch/reservoir-pipeline/internal/domain"
)

// ErrConfigMissing is returned by Load when no configuration has been saved
// yet. Replay treats this as "nothing to do" with no side effects.
var ErrConfigMissing = errors.New("no reservoir configuration found")

// File stores the ReservoirConfig array at a fixed path. Replace and Load are
// safe for concurrent use.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a store writing to the given path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Replace overwrites the stored array with configs. The write goes through a
// temp file and rename so a crashed write never leaves a truncated config.
func (f *File) Replace(configs []domain.ReservoirConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode reservoir configs: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".reservoir-configs-*")
	if err != nil {
		return fmt.Errorf("stage reservoir configs: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write reservoir configs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close reservoir configs: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace reservoir configs: %w", err)
	}
	return nil
}

// Load reads the whole stored array. Returns ErrConfigMissing when the file
// does not exist.
func (f *File) Load() ([]domain.ReservoirConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrConfigMissing
	}
	if err != nil {
		return nil, fmt.Errorf("read reservoir configs: %w", err)
	}

	var configs []domain.ReservoirConfig
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("decode reservoir configs: %w", err)
	}
	return configs, nil
}
