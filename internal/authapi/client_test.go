package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linxtalk/linxtalk-cli/internal/device"
	"github.com/linxtalk/linxtalk-cli/internal/observability"
	"github.com/linxtalk/linxtalk-cli/internal/output"
	"github.com/linxtalk/linxtalk-cli/internal/session"
)

var testFP = device.Fingerprint{
	DeviceID:    "device-1",
	Platform:    "linux",
	DeviceName:  "host",
	DeviceModel: "amd64",
	OSVersion:   "6.1",
	AppVersion:  "1.0.0",
}

// fakeServer is an in-memory stand-in for the auth service.
type fakeServer struct {
	mu        sync.Mutex
	bodies    map[string]map[string]any
	headers   map[string]http.Header
	passwords map[string]string
	revoked   map[string]bool
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{
		bodies:    make(map[string]map[string]any),
		headers:   make(map[string]http.Header),
		passwords: map[string]string{"alice01": "Secret1!", "bob02": "Hunter2!"},
		revoked:   make(map[string]bool),
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/auth").Methods(http.MethodPost).Subrouter()
	api.HandleFunc("/login", fs.login)
	api.HandleFunc("/add-account", fs.addAccount)
	api.HandleFunc("/login-google", fs.loginGoogle)
	api.HandleFunc("/switch-account", fs.switchAccount)
	api.HandleFunc("/remove-account", fs.ack)
	api.HandleFunc("/logout", fs.logout)
	api.HandleFunc("/register", fs.register)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) capture(r *http.Request) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	name := r.URL.Path
	fs.mu.Lock()
	fs.bodies[name] = body
	fs.headers[name] = r.Header.Clone()
	fs.mu.Unlock()
	return body
}

func (fs *fakeServer) body(path string) map[string]any {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.bodies[path]
}

func (fs *fakeServer) header(path string) http.Header {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.headers[path]
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"status": status, "message": message, "data": data})
}

func authData(username string) map[string]any {
	return map[string]any{
		"accessToken":  "access-" + username,
		"refreshToken": "refresh-" + username,
		"displayName":  "Display " + username,
		"avatarUrl":    nil,
	}
}

func (fs *fakeServer) checkPassword(w http.ResponseWriter, body map[string]any) (string, bool) {
	username, _ := body["username"].(string)
	password, _ := body["password"].(string)
	if fs.passwords[username] != password {
		writeEnvelope(w, http.StatusUnauthorized, "Invalid username or password", nil)
		return "", false
	}
	return username, true
}

func (fs *fakeServer) login(w http.ResponseWriter, r *http.Request) {
	body := fs.capture(r)
	if username, ok := fs.checkPassword(w, body); ok {
		writeEnvelope(w, http.StatusOK, "Login successfully", authData(username))
	}
}

func (fs *fakeServer) addAccount(w http.ResponseWriter, r *http.Request) {
	body := fs.capture(r)
	if username, ok := fs.checkPassword(w, body); ok {
		writeEnvelope(w, http.StatusOK, "Add account successfully", map[string]any{
			"displayName": "Display " + username,
			"avatarUrl":   "https://cdn.example.com/" + username + ".png",
		})
	}
}

func (fs *fakeServer) loginGoogle(w http.ResponseWriter, r *http.Request) {
	body := fs.capture(r)
	if body["idTokenString"] == "" {
		writeEnvelope(w, http.StatusBadRequest, "idTokenString: must not be blank", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, "Login successfully", authData("google"))
}

func (fs *fakeServer) switchAccount(w http.ResponseWriter, r *http.Request) {
	body := fs.capture(r)
	username, _ := body["username"].(string)
	fs.mu.Lock()
	revoked := fs.revoked[username]
	fs.mu.Unlock()
	if revoked {
		writeEnvelope(w, http.StatusUnauthorized, "Session expired, please login again", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, "Switch account successfully", authData(username))
}

func (fs *fakeServer) logout(w http.ResponseWriter, r *http.Request) {
	fs.capture(r)
	if r.Header.Get("Authorization") == "" {
		writeEnvelope(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}
	writeEnvelope(w, http.StatusOK, "Logout successfully", nil)
}

func (fs *fakeServer) register(w http.ResponseWriter, r *http.Request) {
	body := fs.capture(r)
	if body["username"] == "alice01" {
		writeEnvelope(w, http.StatusConflict, "Username already exists", nil)
		return
	}
	writeEnvelope(w, http.StatusCreated, "Register successfully", nil)
}

func (fs *fakeServer) ack(w http.ResponseWriter, r *http.Request) {
	fs.capture(r)
	writeEnvelope(w, http.StatusOK, "OK", nil)
}

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func TestLogin(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := New(srv.URL)

	grant, err := c.Login(context.Background(), session.Credentials{Username: "alice01", Password: "Secret1!"}, testFP)
	require.NoError(t, err)
	assert.Equal(t, "access-alice01", grant.Tokens.AccessToken)
	assert.Equal(t, "refresh-alice01", grant.Tokens.RefreshToken)
	assert.Equal(t, "Display alice01", grant.DisplayName)
	assert.Empty(t, grant.AvatarURL)

	// Fingerprint fields are flattened into the request body.
	body := fs.body("/api/auth/login")
	assert.Equal(t, "alice01", body["username"])
	assert.Equal(t, "device-1", body["deviceId"])
	assert.Equal(t, "linux", body["platform"])
	assert.Equal(t, "1.0.0", body["appVersion"])

	h := fs.header("/api/auth/login")
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Contains(t, h.Get("User-Agent"), "linxtalk-cli/")
	assert.Empty(t, h.Get("Authorization"))
}

func TestLoginBadPassword(t *testing.T) {
	_, srv := newFakeServer(t)
	c := New(srv.URL)

	_, err := c.Login(context.Background(), session.Credentials{Username: "alice01", Password: "wrong"}, testFP)
	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, output.CodeAuth, e.Code)
	assert.Equal(t, "Invalid username or password", e.Message)
}

func TestSwitchAccount(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := New(srv.URL)

	grant, err := c.SwitchAccount(context.Background(), "bob02", "device-1")
	require.NoError(t, err)
	assert.Equal(t, "access-bob02", grant.Tokens.AccessToken)
	assert.Equal(t, map[string]any{"username": "bob02", "deviceId": "device-1"}, fs.body("/api/auth/switch-account"))
}

func TestSwitchAccountRevoked(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.revoked["bob02"] = true
	c := New(srv.URL)

	_, err := c.SwitchAccount(context.Background(), "bob02", "device-1")
	e := output.AsError(err)
	assert.Equal(t, output.CodeSessionRevoked, e.Code)
	assert.Equal(t, "Session expired, please login again", e.Message)
	assert.Contains(t, e.Hint, "bob02")
}

func TestAddAccount(t *testing.T) {
	_, srv := newFakeServer(t)
	c := New(srv.URL, WithTokenSource(staticToken("access-alice01")))

	res, err := c.AddAccount(context.Background(), session.Credentials{Username: "bob02", Password: "Hunter2!"}, testFP)
	require.NoError(t, err)
	assert.Equal(t, "Display bob02", res.DisplayName)
	assert.Equal(t, "https://cdn.example.com/bob02.png", res.AvatarURL)
	assert.Equal(t, "Add account successfully", res.Message)
}

func TestLoginWithIdentityToken(t *testing.T) {
	fs, srv := newFakeServer(t)
	c := New(srv.URL)

	grant, err := c.LoginWithIdentityToken(context.Background(), session.IdentityCredentials{IDToken: "google-id-token", Email: "dana@example.com"}, testFP)
	require.NoError(t, err)
	assert.Equal(t, "access-google", grant.Tokens.AccessToken)

	body := fs.body("/api/auth/login-google")
	assert.Equal(t, "google-id-token", body["idTokenString"])
	assert.Equal(t, "device-1", body["deviceId"])
	assert.NotContains(t, body, "email")
}

func TestLogoutSendsBearer(t *testing.T) {
	fs, srv := newFakeServer(t)

	err := New(srv.URL).Logout(context.Background(), "device-1")
	assert.True(t, output.HasCode(err, output.CodeAuth))

	require.NoError(t, New(srv.URL, WithTokenSource(staticToken("tok"))).Logout(context.Background(), "device-1"))
	assert.Equal(t, "Bearer tok", fs.header("/api/auth/logout").Get("Authorization"))
	assert.Equal(t, map[string]any{"deviceId": "device-1"}, fs.body("/api/auth/logout"))
}

func TestRemoveAccount(t *testing.T) {
	fs, srv := newFakeServer(t)
	require.NoError(t, New(srv.URL).RemoveAccount(context.Background(), "bob02", "device-1"))
	assert.Equal(t, "bob02", fs.body("/api/auth/remove-account")["username"])
}

func TestRegister(t *testing.T) {
	_, srv := newFakeServer(t)
	c := New(srv.URL)

	msg, err := c.Register(context.Background(), session.Registration{Username: "erin05", Password: "pw", DisplayName: "Erin"})
	require.NoError(t, err)
	assert.Equal(t, "Register successfully", msg)

	_, err = c.Register(context.Background(), session.Registration{Username: "alice01"})
	e := output.AsError(err)
	assert.Equal(t, output.CodeAPI, e.Code)
	assert.Equal(t, http.StatusConflict, e.HTTPStatus)
	assert.Equal(t, "Username already exists", e.Message)
}

func TestCustomPrefix(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/v2/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, "ok", nil)
	}).Methods(http.MethodPost)
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := New(srv.URL+"/", WithPrefix("v2/auth/"))
	assert.NoError(t, c.Logout(context.Background(), "d"))
}

func TestNonJSONErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Login(context.Background(), session.Credentials{}, testFP)
	e := output.AsError(err)
	assert.Equal(t, output.CodeAPI, e.Code)
	assert.Equal(t, "Bad Gateway", e.Message)
}

func TestMissingDataIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, "ok", nil)
	}))
	defer srv.Close()

	_, err := New(srv.URL).SwitchAccount(context.Background(), "bob02", "d")
	assert.True(t, output.HasCode(err, output.CodeDecode))
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Login(context.Background(), session.Credentials{}, testFP)
	e := output.AsError(err)
	assert.Equal(t, output.CodeNetwork, e.Code)
	assert.True(t, e.Retryable)
}

func TestRequestHooks(t *testing.T) {
	_, srv := newFakeServer(t)
	collector := observability.NewSessionCollector()
	c := New(srv.URL, WithHooks(observability.NewCLIHooks(0, collector, nil)))

	_, _ = c.Login(context.Background(), session.Credentials{Username: "alice01", Password: "Secret1!"}, testFP)
	_, _ = c.Login(context.Background(), session.Credentials{Username: "alice01", Password: "wrong"}, testFP)

	s := collector.Summary()
	assert.Equal(t, 2, s.TotalRequests)
	assert.Equal(t, 1, s.FailedRequests)
}
