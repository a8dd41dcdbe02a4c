// Package authapi is the HTTP client for the linxtalk authentication service.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/linxtalk/linxtalk-cli/internal/auth"
	"github.com/linxtalk/linxtalk-cli/internal/device"
	"github.com/linxtalk/linxtalk-cli/internal/observability"
	"github.com/linxtalk/linxtalk-cli/internal/output"
	"github.com/linxtalk/linxtalk-cli/internal/session"
	"github.com/linxtalk/linxtalk-cli/internal/version"
)

// DefaultPrefix is the path under the base URL where the auth routes live.
const DefaultPrefix = "/api/auth"

// DefaultTimeout bounds each request when no http.Client is supplied.
const DefaultTimeout = 30 * time.Second

// maxBodySize caps how much of a response body is read.
const maxBodySize = 1 << 20

// Route paths relative to the prefix.
const (
	pathLogin         = "/login"
	pathLoginGoogle   = "/login-google"
	pathSwitchAccount = "/switch-account"
	pathAddAccount    = "/add-account"
	pathRemoveAccount = "/remove-account"
	pathLogout        = "/logout"
	pathRegister      = "/register"
)

// TokenSource supplies the bearer token for requests. *auth.Vault satisfies it.
type TokenSource interface {
	AccessToken() string
}

var _ TokenSource = (*auth.Vault)(nil)

// Verify Client implements session.AuthService at compile time.
var _ session.AuthService = (*Client)(nil)

// Client calls the auth service over HTTP.
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
	tokens     TokenSource
	hooks      observability.Hooks
	logger     *slog.Logger
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(c *Client) {
		c.prefix = "/" + strings.Trim(prefix, "/")
		if c.prefix == "/" {
			c.prefix = ""
		}
	}
}

// WithTokenSource sets where the bearer token comes from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// WithHooks sets the observability hooks for requests.
func WithHooks(h observability.Hooks) Option {
	return func(c *Client) {
		if h != nil {
			c.hooks = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     DefaultPrefix,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		hooks:      observability.NoopHooks{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		userAgent:  version.UserAgent(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the service's response wrapper.
type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Login authenticates with a username and password.
func (c *Client) Login(ctx context.Context, creds session.Credentials, fp device.Fingerprint) (session.Grant, error) {
	var resp authResponse
	_, err := c.post(ctx, pathLogin, loginRequest{
		Username:    creds.Username,
		Password:    creds.Password,
		Fingerprint: fp,
	}, &resp)
	if err != nil {
		return session.Grant{}, err
	}
	return resp.grant(), nil
}

// LoginWithIdentityToken authenticates with a Google ID token.
func (c *Client) LoginWithIdentityToken(ctx context.Context, creds session.IdentityCredentials, fp device.Fingerprint) (session.Grant, error) {
	var resp authResponse
	_, err := c.post(ctx, pathLoginGoogle, identityRequest{
		IDTokenString: creds.IDToken,
		Fingerprint:   fp,
	}, &resp)
	if err != nil {
		return session.Grant{}, err
	}
	return resp.grant(), nil
}

// SwitchAccount asks for a fresh token pair for a saved account without a
// password. A 401 means the server no longer holds a session for that
// account on this device.
func (c *Client) SwitchAccount(ctx context.Context, username, deviceID string) (session.Grant, error) {
	var resp authResponse
	_, err := c.post(ctx, pathSwitchAccount, accountRequest{Username: username, DeviceID: deviceID}, &resp)
	if err != nil {
		if e := output.AsError(err); e.Code == output.CodeAuth {
			return session.Grant{}, output.ErrSessionRevoked(username, e.Message)
		}
		return session.Grant{}, err
	}
	return resp.grant(), nil
}

// AddAccount verifies credentials for an additional account.
func (c *Client) AddAccount(ctx context.Context, creds session.Credentials, fp device.Fingerprint) (session.AddAccountResult, error) {
	var resp addAccountResponse
	msg, err := c.post(ctx, pathAddAccount, loginRequest{
		Username:    creds.Username,
		Password:    creds.Password,
		Fingerprint: fp,
	}, &resp)
	if err != nil {
		return session.AddAccountResult{}, err
	}
	return session.AddAccountResult{
		DisplayName: resp.DisplayName,
		AvatarURL:   deref(resp.AvatarURL),
		Message:     msg,
	}, nil
}

// RemoveAccount ends a saved account's session on this device.
func (c *Client) RemoveAccount(ctx context.Context, username, deviceID string) error {
	_, err := c.post(ctx, pathRemoveAccount, accountRequest{Username: username, DeviceID: deviceID}, nil)
	return err
}

// Logout ends the active session on this device.
func (c *Client) Logout(ctx context.Context, deviceID string) error {
	_, err := c.post(ctx, pathLogout, logoutRequest{DeviceID: deviceID}, nil)
	return err
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, reg session.Registration) (string, error) {
	return c.post(ctx, pathRegister, registerRequest{
		Username:    reg.Username,
		Password:    reg.Password,
		DisplayName: reg.DisplayName,
	}, nil)
}

// post sends body as JSON and decodes the envelope's data into out.
// It returns the envelope message.
func (c *Client) post(ctx context.Context, path string, body, out any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding %s request: %w", path, err)
	}

	url := c.baseURL + c.prefix + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", output.ErrUsageHint("invalid base URL", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.tokens != nil {
		if token := c.tokens.AccessToken(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	info := observability.RequestInfo{Method: http.MethodPost, URL: url}
	ctx = c.hooks.OnRequestStart(ctx, info)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{Duration: time.Since(start), Error: err})
		return "", output.ErrNetwork(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{
		StatusCode: resp.StatusCode,
		Duration:   time.Since(start),
		Error:      err,
	})
	if err != nil {
		return "", output.ErrNetwork(err)
	}
	c.logger.Debug("auth request", "path", path, "status", resp.StatusCode)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := env.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", errorForStatus(resp.StatusCode, msg)
	}

	if decodeErr != nil {
		return "", output.ErrDecode(path+" response", decodeErr)
	}
	if out != nil {
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return "", output.ErrDecode(path+" response", errors.New("missing data"))
		}
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", output.ErrDecode(path+" response", err)
		}
	}
	return env.Message, nil
}

func errorForStatus(status int, msg string) error {
	if status == http.StatusUnauthorized {
		return output.ErrAuth(msg)
	}
	return output.ErrAPI(status, msg)
}
