package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the general store's file name within the data directory.
const FileName = "storage.json"

// LockTimeout is the maximum time to wait for the file lock.
// If exceeded, operations proceed without locking (fail-open) so a crashed
// process holding the lock cannot wedge the shell.
const LockTimeout = 100 * time.Millisecond

// FileStore is a KV persisted as one JSON object on disk. Every operation is a
// locked read-modify-write so separate processes sharing the data directory
// don't clobber each other's keys.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
// If dir is empty, it uses the default location (~/.local/share/linxtalk/).
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDataDir()
	}
	return &FileStore{dir: dir}
}

// DefaultDataDir returns the platform data directory for linxtalk.
func DefaultDataDir() string {
	if dataDir := os.Getenv("XDG_DATA_HOME"); dataDir != "" {
		return filepath.Join(dataDir, "linxtalk")
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".local", "share", "linxtalk")
	}

	// Last resort: use temp directory to avoid relative paths
	return filepath.Join(os.TempDir(), "linxtalk")
}

// Dir returns the data directory path.
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the full path to the store file.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, FileName)
}

func (s *FileStore) lockPath() string {
	return filepath.Join(s.dir, ".lock")
}

type fileLock struct {
	flock *flock.Flock
}

// acquireLock obtains an exclusive lock on the data directory.
// Returns nil (with no error) if the lock cannot be acquired within LockTimeout.
func (s *FileStore) acquireLock() (*fileLock, error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, err
	}

	fl := flock.New(s.lockPath())

	ctx, cancel := context.WithTimeout(context.Background(), LockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, 10*time.Millisecond)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, nil
		}
		return nil, err
	}
	if !locked {
		return nil, nil
	}

	return &fileLock{flock: fl}, nil
}

func (fl *fileLock) release() error {
	if fl == nil || fl.flock == nil {
		return nil
	}
	return fl.flock.Unlock()
}

// Get returns the raw JSON stored under key.
func (s *FileStore) Get(key string) ([]byte, error) {
	lock, err := s.acquireLock()
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer func() { _ = lock.release() }()
	}

	entries, err := s.loadUnsafe()
	if err != nil {
		return nil, err
	}
	v, ok := entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Set stores value under key. The value must be valid JSON.
func (s *FileStore) Set(key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("storage: value for %q is not valid JSON", key)
	}
	return s.update(func(entries map[string]json.RawMessage) {
		entries[key] = append(json.RawMessage(nil), value...)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (s *FileStore) Delete(key string) error {
	return s.update(func(entries map[string]json.RawMessage) {
		delete(entries, key)
	})
}

func (s *FileStore) update(fn func(map[string]json.RawMessage)) error {
	lock, err := s.acquireLock()
	if err != nil {
		return err
	}
	if lock != nil {
		defer func() { _ = lock.release() }()
	}

	entries, err := s.loadUnsafe()
	if err != nil {
		return err
	}
	fn(entries)
	return s.saveUnsafe(entries)
}

// loadUnsafe reads the store without locking (caller must hold lock).
func (s *FileStore) loadUnsafe() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, err
	}

	entries := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &entries); err != nil {
		// Corrupted file: start over rather than refuse every key.
		return make(map[string]json.RawMessage), nil
	}
	return entries, nil
}

// saveUnsafe writes the store without locking (caller must hold lock).
func (s *FileStore) saveUnsafe(entries map[string]json.RawMessage) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	// Unique temp name so fail-open writers from two processes never share one.
	tmpPath := fmt.Sprintf("%s.%d.%d.tmp", s.Path(), os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	// On Windows, os.Rename fails if destination exists.
	if runtime.GOOS == "windows" {
		_ = os.Remove(s.Path())
	}

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
