// Package lease manages scoped temporary storage for in-flight audio
// payloads. Each request acquires exactly one lease, hands its path to the
// engine, and releases it when processing finishes on any exit path.
package lease

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/oklog/ulid/v2"
)

// Store creates uniquely-named temporary objects under a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// Lease is an exclusively-owned handle to one stored payload. Never shared
// between requests.
type Lease struct {
	path    string
	logger  *slog.Logger
	release sync.Once
}

func NewStore(dir string, logger *slog.Logger) *Store {
	if dir == "" {
		dir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Acquire writes the payload to a new uniquely-named object with the given
// suffix and returns the owning lease. The caller must Release it.
func (s *Store) Acquire(data []byte, suffix string) (*Lease, error) {
	path := filepath.Join(s.dir, ulid.Make().String()+suffix)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp object: %w", err)
	}
	return &Lease{path: path, logger: s.logger}, nil
}

// Path returns the stored object's location for the engine to read.
func (l *Lease) Path() string {
	return l.path
}

// Release reclaims the backing storage. Safe to call more than once; a failure
// to delete is logged, never propagated.
func (l *Lease) Release() {
	l.release.Do(func() {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			l.logger.Warn("failed to remove temp object", "path", l.path, "error", err)
		}
	})
}
