// Package accounts tracks the accounts this device has signed into and the
// profile of the one currently active.
package accounts

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/linxtalk/linxtalk-cli/internal/storage"
)

// RegistryKey is the general-store key holding the saved account list.
const RegistryKey = "saved-accounts-storage"

// SavedAccount is a previously signed-in account offered for switching.
type SavedAccount struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type registryState struct {
	SavedAccounts []SavedAccount `json:"savedAccounts"`
}

// Registry is the most-recently-used list of saved accounts, unique by username.
type Registry struct {
	repo    storage.Repository[registryState]
	persist *storage.Persister[registryState]
	logger  *slog.Logger

	mu       sync.RWMutex
	accounts []SavedAccount
	hydrated bool
	mutated  bool
	subs     subscribers[[]SavedAccount]

	hydrateOnce sync.Once
	hydrateErr  error
}

// NewRegistry creates an empty, unhydrated registry persisted to kv.
func NewRegistry(kv storage.KV, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	repo := storage.NewJSON[registryState](kv, RegistryKey)
	return &Registry{
		repo:    repo,
		persist: storage.NewPersister[registryState](repo, RegistryKey, storage.WithLogger[registryState](logger)),
		logger:  logger,
	}
}

// Save adds account at the front of the list, replacing any entry with the
// same username.
func (r *Registry) Save(account SavedAccount) {
	r.mu.Lock()
	filtered := make([]SavedAccount, 0, len(r.accounts)+1)
	filtered = append(filtered, account)
	for _, existing := range r.accounts {
		if existing.Username != account.Username {
			filtered = append(filtered, existing)
		}
	}
	r.accounts = filtered
	r.mutated = true
	snapshot := r.copyLocked()
	// Enqueue under the lock so the last mutation is the last write.
	r.persist.Enqueue(registryState{SavedAccounts: snapshot})
	r.mu.Unlock()

	r.subs.notify(snapshot)
}

// Remove drops the entry for username. It reports whether one existed.
func (r *Registry) Remove(username string) bool {
	r.mu.Lock()
	filtered := make([]SavedAccount, 0, len(r.accounts))
	for _, existing := range r.accounts {
		if existing.Username != username {
			filtered = append(filtered, existing)
		}
	}
	if len(filtered) == len(r.accounts) {
		r.mu.Unlock()
		return false
	}
	r.accounts = filtered
	r.mutated = true
	snapshot := r.copyLocked()
	r.persist.Enqueue(registryState{SavedAccounts: snapshot})
	r.mu.Unlock()

	r.subs.notify(snapshot)
	return true
}

// Accounts returns a copy of the list, most recently used first.
func (r *Registry) Accounts() []SavedAccount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyLocked()
}

// Find returns the saved entry for username.
func (r *Registry) Find(username string) (SavedAccount, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.accounts {
		if a.Username == username {
			return a, true
		}
	}
	return SavedAccount{}, false
}

// Others returns the saved accounts other than activeUsername: the list of
// switch targets.
func (r *Registry) Others(activeUsername string) []SavedAccount {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []SavedAccount
	for _, a := range r.accounts {
		if a.Username != activeUsername {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) HasSavedAccounts() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts) > 0
}

func (r *Registry) IsHydrated() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hydrated
}

// Hydrate loads the persisted list once. Load failures leave the registry
// empty but still mark it hydrated.
func (r *Registry) Hydrate(ctx context.Context) error {
	r.hydrateOnce.Do(func() {
		stored, found, err := r.repo.Load(ctx)
		if err != nil {
			r.logger.Warn("saved account hydration failed", "error", err)
			r.hydrateErr = err
		}

		r.mu.Lock()
		if err == nil && found && !r.mutated {
			r.accounts = dedupe(stored.SavedAccounts)
		}
		r.hydrated = true
		snapshot := r.copyLocked()
		r.mu.Unlock()

		r.logger.Debug("saved accounts hydrated", "count", len(snapshot))
		r.subs.notify(snapshot)
	})
	return r.hydrateErr
}

// Subscribe registers fn to receive the list after every change.
func (r *Registry) Subscribe(fn func([]SavedAccount)) (unsubscribe func()) {
	return r.subs.add(fn)
}

// Flush waits for pending writes.
func (r *Registry) Flush(ctx context.Context) error {
	return r.persist.Flush(ctx)
}

func (r *Registry) copyLocked() []SavedAccount {
	out := make([]SavedAccount, len(r.accounts))
	copy(out, r.accounts)
	return out
}

// dedupe keeps the first occurrence of each username, so a hand-edited or
// legacy file can't break the uniqueness guarantee.
func dedupe(in []SavedAccount) []SavedAccount {
	seen := make(map[string]bool, len(in))
	out := make([]SavedAccount, 0, len(in))
	for _, a := range in {
		if seen[a.Username] {
			continue
		}
		seen[a.Username] = true
		out = append(out, a)
	}
	return out
}
