package session

import "github.com/linxtalk/linxtalk-cli/internal/accounts"

// Phase is the switcher's position in the account-switch state machine.
type Phase int

const (
	// Idle: no switch in progress.
	Idle Phase = iota
	// Switching: a silent switch or re-authentication call is in flight.
	Switching
	// AwaitingReauth: the server refused a silent switch; the target
	// account needs its password.
	AwaitingReauth
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Switching:
		return "switching"
	case AwaitingReauth:
		return "awaiting_reauth"
	default:
		return "unknown"
	}
}

// State is the switcher's observable state. Target is set while Switching
// or AwaitingReauth.
type State struct {
	Phase  Phase
	Target *accounts.SavedAccount
}

// Destination is where a UI shell should route once the session is known.
type Destination int

const (
	// DestinationPending: stores are still hydrating.
	DestinationPending Destination = iota
	// DestinationApp: an authenticated session exists.
	DestinationApp
	// DestinationSavedAccounts: signed out, but saved accounts can be picked.
	DestinationSavedAccounts
	// DestinationLogin: signed out with nothing saved.
	DestinationLogin
)

func (d Destination) String() string {
	switch d {
	case DestinationPending:
		return "pending"
	case DestinationApp:
		return "app"
	case DestinationSavedAccounts:
		return "saved_accounts"
	case DestinationLogin:
		return "login"
	default:
		return "unknown"
	}
}
