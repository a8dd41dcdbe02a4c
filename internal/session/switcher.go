// Package session coordinates sign-in, account switching and sign-out
// across the token vault, the saved-account registry and the active profile.
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/linxtalk/linxtalk-cli/internal/accounts"
	"github.com/linxtalk/linxtalk-cli/internal/auth"
	"github.com/linxtalk/linxtalk-cli/internal/busy"
	"github.com/linxtalk/linxtalk-cli/internal/device"
	"github.com/linxtalk/linxtalk-cli/internal/notify"
	"github.com/linxtalk/linxtalk-cli/internal/observability"
	"github.com/linxtalk/linxtalk-cli/internal/output"
)

// Default toast texts when the server doesn't supply one.
const (
	msgAccountAdded = "Account added"
	msgRegistered   = "Account created"
)

// Deps are the collaborators a Switcher coordinates.
type Deps struct {
	Service  AuthService
	Vault    *auth.Vault
	Registry *accounts.Registry
	Profile  *accounts.Profile
	Busy     *busy.Signal
	Notifier *notify.Notifier
}

// Switcher drives the session lifecycle. Store mutations happen only after
// the triggering remote call resolves, in resolution order.
type Switcher struct {
	svc      AuthService
	vault    *auth.Vault
	registry *accounts.Registry
	profile  *accounts.Profile
	busy     *busy.Signal
	notifier *notify.Notifier
	hooks    observability.Hooks
	logger   *slog.Logger

	switches singleflight.Group

	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int
}

// Option configures a Switcher.
type Option func(*Switcher)

// WithHooks sets the observability hooks.
func WithHooks(h observability.Hooks) Option {
	return func(s *Switcher) {
		if h != nil {
			s.hooks = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Switcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Switcher in the Idle phase.
func New(d Deps, opts ...Option) *Switcher {
	s := &Switcher{
		svc:      d.Service,
		vault:    d.Vault,
		registry: d.Registry,
		profile:  d.Profile,
		busy:     d.Busy,
		notifier: d.Notifier,
		hooks:    observability.NoopHooks{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		subs:     make(map[int]func(State)),
	}
	if s.busy == nil {
		s.busy = busy.New()
	}
	if s.notifier == nil {
		s.notifier = notify.New()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login signs in with a username and password and makes that account active.
func (s *Switcher) Login(ctx context.Context, creds Credentials, fp device.Fingerprint) error {
	op := observability.OperationInfo{Component: "session", Operation: "login", Username: creds.Username}
	return s.run(ctx, op, func(ctx context.Context) error {
		grant, err := s.svc.Login(ctx, creds, fp)
		if err != nil {
			return err
		}
		if err := s.openPasswordSession(creds.Username, grant); err != nil {
			return err
		}
		s.setState(State{Phase: Idle})
		return nil
	})
}

// LoginWithIdentityToken signs in with an identity-provider token. The
// resulting session has no username and is not added to the saved accounts.
func (s *Switcher) LoginWithIdentityToken(ctx context.Context, creds IdentityCredentials, fp device.Fingerprint) error {
	op := observability.OperationInfo{Component: "session", Operation: "login_identity"}
	return s.run(ctx, op, func(ctx context.Context) error {
		grant, err := s.svc.LoginWithIdentityToken(ctx, creds, fp)
		if err != nil {
			return err
		}
		if err := s.vault.SetTokens(grant.Tokens.AccessToken, grant.Tokens.RefreshToken); err != nil {
			return output.ErrDecode("token pair", err)
		}
		s.profile.Set(accounts.ActiveAccount{
			Email:       creds.Email,
			DisplayName: grant.DisplayName,
			AvatarURL:   grant.AvatarURL,
		})
		s.setState(State{Phase: Idle})
		return nil
	})
}

// SwitchAccount silently switches to a saved account. If the server refuses,
// the switcher moves to AwaitingReauth for target and the current session
// stays as it was. Concurrent calls for the same username share one request.
// The shared request is detached from each caller's ctx: a caller whose ctx
// ends gets ctx.Err() and stops waiting, while the request runs on for the
// others, bounded by the client's timeout.
func (s *Switcher) SwitchAccount(ctx context.Context, target accounts.SavedAccount, fp device.Fingerprint) error {
	shared := context.WithoutCancel(ctx)
	ch := s.switches.DoChan(target.Username, func() (any, error) {
		op := observability.OperationInfo{Component: "session", Operation: "switch_account", Username: target.Username}
		return nil, s.run(shared, op, func(ctx context.Context) error {
			s.setState(State{Phase: Switching, Target: &target})

			grant, err := s.svc.SwitchAccount(ctx, target.Username, fp.DeviceID)
			if err != nil {
				s.afterSwitchFailure(target, err)
				return err
			}
			if err := s.openPasswordSession(target.Username, grant); err != nil {
				s.setState(State{Phase: AwaitingReauth, Target: &target})
				return err
			}
			s.setState(State{Phase: Idle})
			return nil
		})
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// afterSwitchFailure decides where a failed silent switch lands. Transport
// failures say nothing about the target's session, so they return to Idle
// for a retry; anything the server rejected asks for the password.
func (s *Switcher) afterSwitchFailure(target accounts.SavedAccount, err error) {
	if output.HasCode(err, output.CodeNetwork) || errors.Is(err, context.Canceled) {
		s.setState(State{Phase: Idle})
		return
	}
	s.setState(State{Phase: AwaitingReauth, Target: &target})
}

// Reauthenticate completes a switch with the target's password.
// On failure the switcher stays in AwaitingReauth for target.
func (s *Switcher) Reauthenticate(ctx context.Context, target accounts.SavedAccount, password string, fp device.Fingerprint) error {
	op := observability.OperationInfo{Component: "session", Operation: "reauthenticate", Username: target.Username}
	return s.run(ctx, op, func(ctx context.Context) error {
		s.setState(State{Phase: Switching, Target: &target})

		grant, err := s.svc.Login(ctx, Credentials{Username: target.Username, Password: password}, fp)
		if err == nil {
			err = s.openPasswordSession(target.Username, grant)
		}
		if err != nil {
			s.setState(State{Phase: AwaitingReauth, Target: &target})
			return err
		}
		s.setState(State{Phase: Idle})
		return nil
	})
}

// CancelReauth abandons a pending re-authentication.
func (s *Switcher) CancelReauth() {
	s.mu.Lock()
	if s.state.Phase != AwaitingReauth {
		s.mu.Unlock()
		return
	}
	s.state = State{Phase: Idle}
	state, fns := s.state, s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// AddAccount verifies another account's credentials and saves it for later
// switching. The active session is left untouched.
func (s *Switcher) AddAccount(ctx context.Context, creds Credentials, fp device.Fingerprint) error {
	op := observability.OperationInfo{Component: "session", Operation: "add_account", Username: creds.Username}
	return s.run(ctx, op, func(ctx context.Context) error {
		res, err := s.svc.AddAccount(ctx, creds, fp)
		if err != nil {
			return err
		}
		s.registry.Save(accounts.SavedAccount{
			Username:    creds.Username,
			DisplayName: res.DisplayName,
			AvatarURL:   res.AvatarURL,
		})
		msg := res.Message
		if msg == "" {
			msg = msgAccountAdded
		}
		s.notifier.Success(msg)
		return nil
	})
}

// RemoveAccount forgets a saved account on the server and locally. The local
// entry is removed even when the remote call fails; that error is returned.
func (s *Switcher) RemoveAccount(ctx context.Context, username string, fp device.Fingerprint) error {
	op := observability.OperationInfo{Component: "session", Operation: "remove_account", Username: username}
	return s.run(ctx, op, func(ctx context.Context) error {
		err := s.svc.RemoveAccount(ctx, username, fp.DeviceID)
		s.registry.Remove(username)
		return err
	})
}

// Logout ends the session. Local state is cleared whatever the server says;
// the remote error, if any, is returned for reporting only.
func (s *Switcher) Logout(ctx context.Context, fp device.Fingerprint) error {
	op := observability.OperationInfo{Component: "session", Operation: "logout"}
	ctx = s.hooks.OnOperationStart(ctx, op)
	start := time.Now()

	s.busy.Show()
	remoteErr := s.svc.Logout(ctx, fp.DeviceID)
	s.busy.Hide()

	current, hadAccount := s.profile.Current()
	s.vault.Logout()
	s.profile.Clear()
	if hadAccount && current.IsPasswordAccount() {
		s.registry.Remove(current.Username)
	}
	s.setState(State{Phase: Idle})

	if remoteErr != nil {
		s.logger.Warn("remote logout failed, local session cleared", "error", remoteErr)
	}
	s.hooks.OnOperationEnd(ctx, op, remoteErr, time.Since(start))
	return remoteErr
}

// Register creates a new account. No session state changes; the server's
// confirmation is shown as a toast.
func (s *Switcher) Register(ctx context.Context, reg Registration) error {
	op := observability.OperationInfo{Component: "session", Operation: "register", Username: reg.Username}
	return s.run(ctx, op, func(ctx context.Context) error {
		msg, err := s.svc.Register(ctx, reg)
		if err != nil {
			return err
		}
		if msg == "" {
			msg = msgRegistered
		}
		s.notifier.Success(msg)
		return nil
	})
}

// Hydrate loads every store concurrently. All three loads run to completion
// even when one fails; the first error is returned.
func (s *Switcher) Hydrate(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.vault.Hydrate(ctx) })
	g.Go(func() error { return s.registry.Hydrate(ctx) })
	g.Go(func() error { return s.profile.Hydrate(ctx) })
	return g.Wait()
}

// Ready reports whether every store has hydrated.
func (s *Switcher) Ready() bool {
	return s.vault.IsHydrated() && s.registry.IsHydrated() && s.profile.IsHydrated()
}

// Destination tells a UI shell where to route.
func (s *Switcher) Destination() Destination {
	switch {
	case !s.Ready():
		return DestinationPending
	case s.vault.IsAuthenticated():
		return DestinationApp
	case s.registry.HasSavedAccounts():
		return DestinationSavedAccounts
	default:
		return DestinationLogin
	}
}

// SwitchTargets lists saved accounts other than the active one.
func (s *Switcher) SwitchTargets() []accounts.SavedAccount {
	current, _ := s.profile.Current()
	return s.registry.Others(current.Username)
}

// State returns the current state machine position.
func (s *Switcher) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive every state transition.
func (s *Switcher) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// run wraps a remote operation with the busy signal, hooks, and the error
// toast that reports failures to the user.
func (s *Switcher) run(ctx context.Context, op observability.OperationInfo, fn func(context.Context) error) error {
	ctx = s.hooks.OnOperationStart(ctx, op)
	start := time.Now()

	s.busy.Show()
	err := fn(ctx)
	s.busy.Hide()

	if err != nil {
		s.logger.Debug("operation failed", "op", op.Name(), "error", err)
		s.notifier.Error(output.AsError(err).Message)
	}
	s.hooks.OnOperationEnd(ctx, op, err, time.Since(start))
	return err
}

// openPasswordSession applies a grant for a username/password account:
// tokens, active profile and a move-to-front registry entry.
func (s *Switcher) openPasswordSession(username string, grant Grant) error {
	if err := s.vault.SetTokens(grant.Tokens.AccessToken, grant.Tokens.RefreshToken); err != nil {
		return output.ErrDecode("token pair", err)
	}
	active := accounts.ActiveAccount{
		Username:    username,
		DisplayName: grant.DisplayName,
		AvatarURL:   grant.AvatarURL,
	}
	s.registry.Save(active.Saved())
	s.profile.Set(active)
	return nil
}

func (s *Switcher) setState(state State) {
	s.mu.Lock()
	if state.Target != nil {
		t := *state.Target
		state.Target = &t
	}
	s.state = state
	fns := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (s *Switcher) subscribersLocked() []func(State) {
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	return fns
}
