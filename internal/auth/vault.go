// Package auth holds the session's token pair: custody, expiry checks and
// the secure store it is persisted to.
package auth

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/linxtalk/linxtalk-cli/internal/clock"
	"github.com/linxtalk/linxtalk-cli/internal/output"
	"github.com/linxtalk/linxtalk-cli/internal/storage"
)

// StorageKey is the secure-store key holding the token pair.
const StorageKey = "auth-storage"

// TokenPair is the access/refresh credential pair.
// Both fields are set or both are empty.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether both tokens are present.
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}

// persisted is the on-disk shape; null fields mean "no token".
type persisted struct {
	AccessToken  *string `json:"accessToken"`
	RefreshToken *string `json:"refreshToken"`
}

func toPersisted(p TokenPair) persisted {
	var out persisted
	if p.AccessToken != "" {
		out.AccessToken = &p.AccessToken
	}
	if p.RefreshToken != "" {
		out.RefreshToken = &p.RefreshToken
	}
	return out
}

// VaultState is a snapshot delivered to subscribers.
type VaultState struct {
	Tokens        TokenPair
	Authenticated bool
	Hydrated      bool
}

// Vault owns the token pair and the derived authenticated flag.
type Vault struct {
	repo    storage.Repository[persisted]
	persist *storage.Persister[persisted]
	clock   clock.Clock
	logger  *slog.Logger

	mu            sync.RWMutex
	tokens        TokenPair
	authenticated bool
	hydrated      bool
	mutated       bool
	subs          map[int]func(VaultState)
	nextSub       int

	hydrateOnce sync.Once
	hydrateErr  error
}

// VaultOption configures a Vault.
type VaultOption func(*Vault)

// WithClock sets the time source used for expiry checks.
func WithClock(c clock.Clock) VaultOption {
	return func(v *Vault) {
		v.clock = c
	}
}

// WithLogger sets the vault's logger.
func WithLogger(l *slog.Logger) VaultOption {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewVault creates an empty, unhydrated vault persisted to kv under StorageKey.
func NewVault(kv storage.KV, opts ...VaultOption) *Vault {
	v := &Vault{
		repo:   storage.NewJSON[persisted](kv, StorageKey),
		clock:  clock.Real(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		subs:   make(map[int]func(VaultState)),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.persist = storage.NewPersister[persisted](v.repo, StorageKey, storage.WithLogger[persisted](v.logger))
	return v
}

// SetTokens replaces both tokens and marks the session authenticated.
// The write to the secure store happens in the background.
func (v *Vault) SetTokens(access, refresh string) error {
	if access == "" || refresh == "" {
		return output.ErrUsage("both access and refresh tokens are required")
	}
	v.mu.Lock()
	v.tokens = TokenPair{AccessToken: access, RefreshToken: refresh}
	v.authenticated = true
	v.mutated = true
	state := v.stateLocked()
	// Enqueue under the lock so the last mutation is the last write.
	v.persist.Enqueue(toPersisted(state.Tokens))
	v.mu.Unlock()

	v.notify(state)
	return nil
}

// Logout clears both tokens.
func (v *Vault) Logout() {
	v.mu.Lock()
	v.tokens = TokenPair{}
	v.authenticated = false
	v.mutated = true
	state := v.stateLocked()
	v.persist.Enqueue(persisted{})
	v.mu.Unlock()

	v.notify(state)
}

// Hydrate loads the persisted pair. Only the first call does any work.
// The vault is marked hydrated even when the read fails, in which case it
// stays unauthenticated and the error is returned.
func (v *Vault) Hydrate(ctx context.Context) error {
	v.hydrateOnce.Do(func() {
		stored, found, err := v.repo.Load(ctx)
		if err != nil {
			v.logger.Warn("token hydration failed", "error", err)
			v.hydrateErr = err
		}

		v.mu.Lock()
		// A mutation made before hydration finished is newer than disk.
		if err == nil && found && !v.mutated {
			pair := TokenPair{}
			if stored.AccessToken != nil {
				pair.AccessToken = *stored.AccessToken
			}
			if stored.RefreshToken != nil {
				pair.RefreshToken = *stored.RefreshToken
			}
			if pair.Complete() {
				v.tokens = pair
				v.authenticated = !IsExpired(pair.RefreshToken, v.clock.Now())
			}
		}
		v.hydrated = true
		state := v.stateLocked()
		v.mu.Unlock()

		v.logger.Debug("tokens hydrated", "authenticated", state.Authenticated)
		v.notify(state)
	})
	return v.hydrateErr
}

// Tokens returns the current pair.
func (v *Vault) Tokens() TokenPair {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tokens
}

// AccessToken returns the current access token, or "" when signed out.
func (v *Vault) AccessToken() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tokens.AccessToken
}

func (v *Vault) IsAuthenticated() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.authenticated
}

func (v *Vault) IsHydrated() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.hydrated
}

// State returns a snapshot of the vault.
func (v *Vault) State() VaultState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.stateLocked()
}

// Subscribe registers fn to receive a snapshot after every change.
// The returned function removes the subscription.
func (v *Vault) Subscribe(fn func(VaultState)) (unsubscribe func()) {
	v.mu.Lock()
	id := v.nextSub
	v.nextSub++
	v.subs[id] = fn
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		delete(v.subs, id)
		v.mu.Unlock()
	}
}

// Flush waits for pending writes to reach the secure store.
func (v *Vault) Flush(ctx context.Context) error {
	return v.persist.Flush(ctx)
}

func (v *Vault) stateLocked() VaultState {
	return VaultState{Tokens: v.tokens, Authenticated: v.authenticated, Hydrated: v.hydrated}
}

func (v *Vault) notify(state VaultState) {
	v.mu.RLock()
	fns := make([]func(VaultState), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.RUnlock()
	for _, fn := range fns {
		fn(state)
	}
}
