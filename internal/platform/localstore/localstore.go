// Package localstore persists namespaced JSON blobs on disk. It plays the
// role a browser's local storage plays for the stores: one blob per key,
// synchronous writes, and corruption that degrades to "key absent" instead
// of failing the caller.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Store reads and writes JSON blobs under a state directory.
type Store struct {
	dir    string
	logger *zap.Logger
}

// New ensures the state directory exists and returns a Store over it.
func New(dir string, logger *zap.Logger) (*Store, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, errors.New("localstore: directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("localstore: create %s: %w", trimmed, err)
	}
	return &Store{dir: trimmed, logger: logger}, nil
}

// Path returns the file backing the given key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, sanitizeKey(key)+".json")
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// Get unmarshals the blob stored under key into out. It reports whether a
// usable blob existed. A corrupted blob is deleted and treated as absent so
// a bad write can never wedge construction; the deletion is logged, not
// surfaced.
func (s *Store) Get(key string, out any) (bool, error) {
	path := s.Path(key)
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("localstore: read %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Warn("discarding corrupted blob",
			zap.String("key", key),
			zap.Error(err))
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			s.logger.Warn("unable to remove corrupted blob",
				zap.String("key", key),
				zap.Error(removeErr))
		}
		return false, nil
	}
	return true, nil
}

// Put marshals v and replaces the blob under key atomically: the payload is
// written to a temp file in the same directory and renamed over the target,
// so a concurrent reader never observes a torn blob.
func (s *Store) Put(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("localstore: encode %s: %w", key, err)
	}

	path := s.Path(key)
	tmp, err := os.CreateTemp(s.dir, sanitizeKey(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("localstore: temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("localstore: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("localstore: close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("localstore: replace %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob under key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	err := os.Remove(s.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localstore: delete %s: %w", key, err)
	}
	return nil
}

func sanitizeKey(key string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(key))
	if cleaned == "" {
		return "blob"
	}
	return cleaned
}
