package session

import (
	"context"

	"github.com/linxtalk/linxtalk-cli/internal/auth"
	"github.com/linxtalk/linxtalk-cli/internal/device"
)

// Credentials are a username and password.
type Credentials struct {
	Username string
	Password string
}

// IdentityCredentials carry an identity-provider token (Google sign-in)
// and the email address the provider vouched for.
type IdentityCredentials struct {
	IDToken string
	Email   string
}

// Registration describes a new account.
type Registration struct {
	Username    string
	Password    string
	DisplayName string
}

// Grant is what the auth service returns when it opens a session.
type Grant struct {
	Tokens      auth.TokenPair
	DisplayName string
	AvatarURL   string
}

// AddAccountResult is the profile of an account verified by AddAccount,
// plus the server's confirmation text.
type AddAccountResult struct {
	DisplayName string
	AvatarURL   string
	Message     string
}

// AuthService is the remote authentication collaborator.
type AuthService interface {
	Login(ctx context.Context, creds Credentials, fp device.Fingerprint) (Grant, error)
	LoginWithIdentityToken(ctx context.Context, creds IdentityCredentials, fp device.Fingerprint) (Grant, error)
	SwitchAccount(ctx context.Context, username, deviceID string) (Grant, error)
	AddAccount(ctx context.Context, creds Credentials, fp device.Fingerprint) (AddAccountResult, error)
	RemoveAccount(ctx context.Context, username, deviceID string) error
	Logout(ctx context.Context, deviceID string) error
	// Register creates an account and returns the server's confirmation text.
	Register(ctx context.Context, reg Registration) (string, error)
}
