package accounts

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/linxtalk/linxtalk-cli/internal/storage"
)

// ProfileKey is the general-store key holding the active account.
const ProfileKey = "account-storage"

// ActiveAccount is the signed-in account's display profile. Username is
// empty for sessions opened with an identity-provider token.
type ActiveAccount struct {
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// IsPasswordAccount reports whether the session was opened with a username
// and password, which is what makes it eligible for the saved-account list.
func (a ActiveAccount) IsPasswordAccount() bool {
	return a.Username != ""
}

// Saved returns the registry entry for a password account.
func (a ActiveAccount) Saved() SavedAccount {
	return SavedAccount{Username: a.Username, DisplayName: a.DisplayName, AvatarURL: a.AvatarURL}
}

type profileState struct {
	Account *ActiveAccount `json:"account"`
}

// Profile holds the active account, if any.
type Profile struct {
	repo    storage.Repository[profileState]
	persist *storage.Persister[profileState]
	logger  *slog.Logger

	mu       sync.RWMutex
	account  *ActiveAccount
	hydrated bool
	mutated  bool
	subs     subscribers[*ActiveAccount]

	hydrateOnce sync.Once
	hydrateErr  error
}

// NewProfile creates an empty, unhydrated profile persisted to kv.
func NewProfile(kv storage.KV, logger *slog.Logger) *Profile {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	repo := storage.NewJSON[profileState](kv, ProfileKey)
	return &Profile{
		repo:    repo,
		persist: storage.NewPersister[profileState](repo, ProfileKey, storage.WithLogger[profileState](logger)),
		logger:  logger,
	}
}

// Set makes account the active one.
func (p *Profile) Set(account ActiveAccount) {
	p.mu.Lock()
	a := account
	p.account = &a
	p.mutated = true
	// Enqueue under the lock so the last mutation is the last write.
	p.persist.Enqueue(profileState{Account: &a})
	p.mu.Unlock()

	p.subs.notify(&a)
}

// Clear removes the active account.
func (p *Profile) Clear() {
	p.mu.Lock()
	p.account = nil
	p.mutated = true
	p.persist.Enqueue(profileState{})
	p.mu.Unlock()

	p.subs.notify(nil)
}

// Current returns the active account.
func (p *Profile) Current() (ActiveAccount, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.account == nil {
		return ActiveAccount{}, false
	}
	return *p.account, true
}

func (p *Profile) IsHydrated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.hydrated
}

// Hydrate loads the persisted account once.
func (p *Profile) Hydrate(ctx context.Context) error {
	p.hydrateOnce.Do(func() {
		stored, found, err := p.repo.Load(ctx)
		if err != nil {
			p.logger.Warn("profile hydration failed", "error", err)
			p.hydrateErr = err
		}

		p.mu.Lock()
		if err == nil && found && !p.mutated {
			p.account = stored.Account
		}
		p.hydrated = true
		var current *ActiveAccount
		if p.account != nil {
			a := *p.account
			current = &a
		}
		p.mu.Unlock()

		p.subs.notify(current)
	})
	return p.hydrateErr
}

// Subscribe registers fn to receive the active account after every change;
// nil means signed out.
func (p *Profile) Subscribe(fn func(*ActiveAccount)) (unsubscribe func()) {
	return p.subs.add(fn)
}

// Flush waits for pending writes.
func (p *Profile) Flush(ctx context.Context) error {
	return p.persist.Flush(ctx)
}
