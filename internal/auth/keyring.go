package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/zalando/go-keyring"

	"github.com/linxtalk/linxtalk-cli/internal/storage"
)

const (
	serviceName = "linxtalk"

	// CredentialsFile is the plaintext fallback used when no keyring is available.
	CredentialsFile = "credentials.json"
)

// Keyring is the secure store: a storage.KV backed by the system keychain,
// falling back to a 0600 file when the keychain is unavailable.
type Keyring struct {
	useKeyring  bool
	fallbackDir string
}

// KeyringOption configures NewKeyring.
type KeyringOption func(*keyringOptions)

type keyringOptions struct {
	disabled bool
	logger   *slog.Logger
}

// WithoutKeyring forces the file fallback.
func WithoutKeyring() KeyringOption {
	return func(o *keyringOptions) {
		o.disabled = true
	}
}

// WithKeyringLogger sets the logger used to warn about the plaintext fallback.
func WithKeyringLogger(l *slog.Logger) KeyringOption {
	return func(o *keyringOptions) {
		o.logger = l
	}
}

// NewKeyring creates a secure store. fallbackDir holds the credentials file
// when the keychain can't be used.
func NewKeyring(fallbackDir string, opts ...KeyringOption) *Keyring {
	o := keyringOptions{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&o)
	}

	// Skip keyring for tests or when explicitly disabled
	if o.disabled || os.Getenv("LINXTALK_NO_KEYRING") != "" {
		return &Keyring{useKeyring: false, fallbackDir: fallbackDir}
	}

	// Test if keyring is available
	testKey := key("test")
	if err := keyring.Set(serviceName, testKey, "test"); err == nil {
		_ = keyring.Delete(serviceName, testKey) // Best-effort cleanup
		return &Keyring{useKeyring: true, fallbackDir: fallbackDir}
	}
	o.logger.Warn("system keyring unavailable, tokens stored in plaintext",
		"path", filepath.Join(fallbackDir, CredentialsFile))
	return &Keyring{useKeyring: false, fallbackDir: fallbackDir}
}

func key(name string) string {
	return fmt.Sprintf("linxtalk::%s", name)
}

// Get returns the value stored under name.
func (k *Keyring) Get(name string) ([]byte, error) {
	if k.useKeyring {
		data, err := keyring.Get(serviceName, key(name))
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, storage.ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return []byte(data), nil
	}

	all, err := k.loadAllFromFile()
	if err != nil {
		return nil, err
	}
	v, ok := all[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return []byte(v), nil
}

// Set stores value under name.
func (k *Keyring) Set(name string, value []byte) error {
	if k.useKeyring {
		return keyring.Set(serviceName, key(name), string(value))
	}

	all, err := k.loadAllFromFile()
	if err != nil {
		return err
	}
	all[name] = string(value)
	return k.saveAllToFile(all)
}

// Delete removes name. Deleting a missing entry is not an error.
func (k *Keyring) Delete(name string) error {
	if k.useKeyring {
		err := keyring.Delete(serviceName, key(name))
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return err
	}

	all, err := k.loadAllFromFile()
	if err != nil {
		return err
	}
	if _, ok := all[name]; !ok {
		return nil
	}
	delete(all, name)
	return k.saveAllToFile(all)
}

// File fallback methods

func (k *Keyring) credentialsPath() string {
	return filepath.Join(k.fallbackDir, CredentialsFile)
}

func (k *Keyring) loadAllFromFile() (map[string]string, error) {
	data, err := os.ReadFile(k.credentialsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}

	all := make(map[string]string)
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (k *Keyring) saveAllToFile(all map[string]string) error {
	if err := os.MkdirAll(k.fallbackDir, 0700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}

	// Atomic write with randomized temp file name
	tmpFile, err := os.CreateTemp(k.fallbackDir, "credentials-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	destPath := k.credentialsPath()
	if err := os.Rename(tmpPath, destPath); err != nil {
		if runtime.GOOS == "windows" {
			_ = os.Remove(destPath)
			return os.Rename(tmpPath, destPath)
		}
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// MigrateToKeyring moves entries from the plaintext file into the keychain
// and removes the file.
func (k *Keyring) MigrateToKeyring() error {
	if !k.useKeyring {
		return nil
	}

	all, err := k.loadAllFromFile()
	if err != nil {
		return nil //nolint:nilerr // No file to migrate is not an error
	}
	if len(all) == 0 {
		return nil
	}

	for name, v := range all {
		if err := keyring.Set(serviceName, key(name), v); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", name, err)
		}
	}

	_ = os.Remove(k.credentialsPath()) // Best-effort cleanup
	return nil
}

// UsingKeyring returns true if the store is using the system keyring.
func (k *Keyring) UsingKeyring() bool {
	return k.useKeyring
}
