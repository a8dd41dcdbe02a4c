package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every config location at a temp dir and clears env vars.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	for _, k := range []string{
		"LINXTALK_BASE_URL", "LINXTALK_AUTH_PREFIX", "LINXTALK_DATA_DIR", "LINXTALK_NO_KEYRING",
		"LINXTALK_BUSY_DELAY", "LINXTALK_TOAST_DURATION", "LINXTALK_DEBUG", "LINXTALK_PROFILE",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestDefault(t *testing.T) {
	isolate(t)
	cfg := Default()

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, "/api/auth", cfg.AuthPrefix)
	assert.Equal(t, 300*time.Millisecond, cfg.BusyDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.ToastDuration)
	assert.Equal(t, "auto", cfg.Format)
	assert.False(t, cfg.NoKeyring)
	assert.NotNil(t, cfg.Sources)
	assert.Equal(t, 0, cfg.VerboseLevel())
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeJSON(t, path, map[string]any{
		"base_url":       "http://chat.test",
		"auth_prefix":    "/v2/auth",
		"data_dir":       "/tmp/linxtalk",
		"no_keyring":     true,
		"busy_delay":     "500ms",
		"toast_duration": 2500,
		"format":         "json",
		"verbose":        1,
	})

	cfg := Default()
	loadFromFile(cfg, path, SourceGlobal)

	assert.Equal(t, "http://chat.test", cfg.BaseURL)
	assert.Equal(t, "/v2/auth", cfg.AuthPrefix)
	assert.Equal(t, "/tmp/linxtalk", cfg.DataDir)
	assert.True(t, cfg.NoKeyring)
	assert.Equal(t, 500*time.Millisecond, cfg.BusyDelay)
	assert.Equal(t, 2500*time.Millisecond, cfg.ToastDuration)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, 1, cfg.VerboseLevel())
	assert.Equal(t, "global", cfg.Sources["base_url"])
	assert.Equal(t, "global", cfg.Sources["toast_duration"])
}

func TestLoadFromFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
base_url: https://staging.linxtalk.app
busy_delay: 1s
verbose: 2
profiles:
  local:
    base_url: localhost:8080
    auth_prefix: /api/auth
`), 0644))

	cfg := Default()
	loadFromFile(cfg, path, SourceGlobal)

	assert.Equal(t, "https://staging.linxtalk.app", cfg.BaseURL)
	assert.Equal(t, time.Second, cfg.BusyDelay)
	assert.Equal(t, 2, cfg.VerboseLevel())
	require.Contains(t, cfg.Profiles, "local")
	assert.Equal(t, "localhost:8080", cfg.Profiles["local"].BaseURL)
}

func TestLoadFromFileSkipsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	cfg := Default()
	loadFromFile(cfg, path, SourceGlobal)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
}

func TestLoadFromFileIgnoresBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeJSON(t, path, map[string]any{
		"busy_delay": "soon",
		"verbose":    7,
		"profiles":   map[string]any{"broken": map[string]any{"auth_prefix": "/x"}},
	})

	cfg := Default()
	loadFromFile(cfg, path, SourceGlobal)
	assert.Equal(t, 300*time.Millisecond, cfg.BusyDelay)
	assert.Nil(t, cfg.Verbose)
	assert.NotContains(t, cfg.Profiles, "broken")
}

func TestLoadFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("LINXTALK_BASE_URL", "http://env.test")
	t.Setenv("LINXTALK_DATA_DIR", "/env/data")
	t.Setenv("LINXTALK_NO_KEYRING", "1")
	t.Setenv("LINXTALK_BUSY_DELAY", "50ms")
	t.Setenv("LINXTALK_TOAST_DURATION", "3s")
	t.Setenv("LINXTALK_DEBUG", "true")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, "http://env.test", cfg.BaseURL)
	assert.Equal(t, "/env/data", cfg.DataDir)
	assert.True(t, cfg.NoKeyring)
	assert.Equal(t, 50*time.Millisecond, cfg.BusyDelay)
	assert.Equal(t, 3*time.Second, cfg.ToastDuration)
	assert.Equal(t, 2, cfg.VerboseLevel())
	assert.Equal(t, "env", cfg.Sources["data_dir"])
}

func TestParseEnvBool(t *testing.T) {
	tests := []struct {
		in     string
		val    bool
		parsed bool
	}{
		{"true", true, true},
		{"1", true, true},
		{"YES", true, true},
		{"false", false, true},
		{"0", false, true},
		{"maybe", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			v, ok := parseEnvBool(tt.in)
			assert.Equal(t, tt.val, v)
			assert.Equal(t, tt.parsed, ok)
		})
	}
}

func TestFullLayeringPrecedence(t *testing.T) {
	dir := isolate(t)
	writeJSON(t, filepath.Join(dir, "linxtalk", "config.json"), map[string]any{
		"base_url": "https://global.test",
		"data_dir": "/global/data",
		"format":   "text",
	})
	t.Setenv("LINXTALK_DATA_DIR", "/env/data")

	cfg, err := Load(FlagOverrides{Format: "json"})
	require.NoError(t, err)

	assert.Equal(t, "https://global.test", cfg.BaseURL)
	assert.Equal(t, "global", cfg.Sources["base_url"])
	assert.Equal(t, "/env/data", cfg.DataDir)
	assert.Equal(t, "env", cfg.Sources["data_dir"])
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "flag", cfg.Sources["format"])
}

func TestLoadWithProfile(t *testing.T) {
	dir := isolate(t)
	writeJSON(t, filepath.Join(dir, "linxtalk", "config.json"), map[string]any{
		"default_profile": "staging",
		"profiles": map[string]any{
			"staging": map[string]any{"base_url": "https://staging.test/"},
			"local":   map[string]any{"base_url": "localhost:8080", "auth_prefix": "/auth"},
		},
	})

	cfg, err := Load(FlagOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.ActiveProfile)
	assert.Equal(t, "https://staging.test", cfg.BaseURL)

	cfg, err = Load(FlagOverrides{Profile: "local"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.BaseURL)
	assert.Equal(t, "/auth", cfg.AuthPrefix)
	assert.Equal(t, "profile", cfg.Sources["auth_prefix"])

	// Flags beat the profile.
	cfg, err = Load(FlagOverrides{Profile: "local", BaseURL: "https://flag.test"})
	require.NoError(t, err)
	assert.Equal(t, "https://flag.test", cfg.BaseURL)

	_, err = Load(FlagOverrides{Profile: "missing"})
	assert.Error(t, err)
}

func TestApplyOverridesSkipsEmpty(t *testing.T) {
	cfg := Default()
	ApplyOverrides(cfg, FlagOverrides{})
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Empty(t, cfg.Sources)
}

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", ""},
		{"https://api.linxtalk.app/", "https://api.linxtalk.app"},
		{"http://example.com", "http://example.com"},
		{"api.linxtalk.app", "https://api.linxtalk.app"},
		{"localhost:8080", "http://localhost:8080"},
		{"127.0.0.1", "http://127.0.0.1"},
		{"[::1]:8080", "http://[::1]:8080"},
		{"chat.localhost", "http://chat.localhost"},
		{"localhost.example.com", "https://localhost.example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeBaseURL(tt.input))
		})
	}
}

func TestGlobalConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, filepath.Join("/custom/config", "linxtalk"), GlobalConfigDir())
}
