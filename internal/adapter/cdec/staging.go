package cdec

import (
	"fmt"
	"os"
	"path/filepath"
)

// Staging persists fetched CSV text verbatim, one file per station keyed by
// display name. Re-fetching a station overwrites its prior staged copy.
type Staging struct {
	dir string
}

// NewStaging creates the staging area rooted at dir.
func NewStaging(dir string) *Staging {
	return &Staging{dir: dir}
}

// Stage writes text to "<dir>/<stationName>.csv" and returns the path.
func (s *Staging) Stage(stationName, text string) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	path := filepath.Join(s.dir, stationName+".csv")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("stage csv for %s: %w", stationName, err)
	}
	return path, nil
}
