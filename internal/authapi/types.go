package authapi

import (
	"github.com/linxtalk/linxtalk-cli/internal/auth"
	"github.com/linxtalk/linxtalk-cli/internal/device"
	"github.com/linxtalk/linxtalk-cli/internal/session"
)

// Request bodies. The embedded fingerprint flattens into the top-level object.

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	device.Fingerprint
}

type identityRequest struct {
	IDTokenString string `json:"idTokenString"`
	device.Fingerprint
}

type accountRequest struct {
	Username string `json:"username"`
	DeviceID string `json:"deviceId"`
}

type logoutRequest struct {
	DeviceID string `json:"deviceId"`
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// Response payloads.

type authResponse struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	DisplayName  string  `json:"displayName"`
	AvatarURL    *string `json:"avatarUrl"`
}

func (r authResponse) grant() session.Grant {
	return session.Grant{
		Tokens:      auth.TokenPair{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken},
		DisplayName: r.DisplayName,
		AvatarURL:   deref(r.AvatarURL),
	}
}

type addAccountResponse struct {
	DisplayName string  `json:"displayName"`
	AvatarURL   *string `json:"avatarUrl"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
