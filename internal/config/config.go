// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linxtalk/linxtalk-cli/internal/storage"
)

// DefaultBaseURL is the production chat server.
const DefaultBaseURL = "https://api.linxtalk.app"

// Config holds the resolved configuration.
type Config struct {
	// Server settings
	BaseURL    string `json:"base_url" yaml:"base_url"`
	AuthPrefix string `json:"auth_prefix" yaml:"auth_prefix"`

	// Named servers (e.g. "staging", "local")
	Profiles       map[string]*ProfileConfig `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	DefaultProfile string                    `json:"default_profile,omitempty" yaml:"default_profile,omitempty"`
	ActiveProfile  string                    `json:"-" yaml:"-"` // Set at runtime, not persisted

	// Storage settings
	DataDir   string `json:"data_dir" yaml:"data_dir"`
	NoKeyring bool   `json:"no_keyring" yaml:"no_keyring"`

	// Timing of the busy indicator and toasts
	BusyDelay     time.Duration `json:"busy_delay" yaml:"busy_delay"`
	ToastDuration time.Duration `json:"toast_duration" yaml:"toast_duration"`

	// Output settings
	Format  string `json:"format" yaml:"format"`
	Verbose *int   `json:"verbose,omitempty" yaml:"verbose,omitempty"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `json:"-" yaml:"-"`
}

// ProfileConfig holds configuration for a named server.
type ProfileConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	AuthPrefix string `json:"auth_prefix,omitempty" yaml:"auth_prefix,omitempty"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
	SourceProfile Source = "profile"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	BaseURL string
	Profile string
	DataDir string
	Format  string
	Verbose int
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseURL:       DefaultBaseURL,
		AuthPrefix:    "/api/auth",
		DataDir:       storage.DefaultDataDir(),
		BusyDelay:     300 * time.Millisecond,
		ToastDuration: 1500 * time.Millisecond,
		Format:        "auto",
		Sources:       make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > profile > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	for _, path := range systemConfigPaths() {
		loadFromFile(cfg, path, SourceSystem)
	}
	for _, path := range globalConfigPaths() {
		loadFromFile(cfg, path, SourceGlobal)
	}

	LoadFromEnv(cfg)
	ApplyOverrides(cfg, overrides)

	profile := overrides.Profile
	if profile == "" {
		profile = os.Getenv("LINXTALK_PROFILE")
	}
	if profile == "" {
		profile = cfg.DefaultProfile
	}
	if profile != "" {
		if err := cfg.ApplyProfile(profile); err != nil {
			return nil, err
		}
		// Env and flags still win over the profile.
		LoadFromEnv(cfg)
		ApplyOverrides(cfg, overrides)
	}

	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	return cfg, nil
}

// loadFromFile merges a JSON or YAML config file into cfg. The format is
// chosen by extension; missing files are skipped.
func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return // File doesn't exist, skip
	}

	var fileCfg map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fileCfg)
	default:
		err = json.Unmarshal(data, &fileCfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	if v, ok := fileCfg["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
		cfg.Sources["base_url"] = string(source)
	}
	if v, ok := fileCfg["auth_prefix"].(string); ok && v != "" {
		cfg.AuthPrefix = v
		cfg.Sources["auth_prefix"] = string(source)
	}
	if v, ok := fileCfg["data_dir"].(string); ok && v != "" {
		cfg.DataDir = v
		cfg.Sources["data_dir"] = string(source)
	}
	if v, ok := fileCfg["no_keyring"].(bool); ok {
		cfg.NoKeyring = v
		cfg.Sources["no_keyring"] = string(source)
	}
	if d, ok := getDuration(fileCfg, "busy_delay"); ok {
		cfg.BusyDelay = d
		cfg.Sources["busy_delay"] = string(source)
	}
	if d, ok := getDuration(fileCfg, "toast_duration"); ok {
		cfg.ToastDuration = d
		cfg.Sources["toast_duration"] = string(source)
	}
	if v, ok := fileCfg["format"].(string); ok && v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(source)
	}
	if iv, ok := getInt(fileCfg, "verbose"); ok && iv >= 0 && iv <= 2 {
		cfg.Verbose = &iv
		cfg.Sources["verbose"] = string(source)
	}
	if v, ok := fileCfg["default_profile"].(string); ok && v != "" {
		cfg.DefaultProfile = v
		cfg.Sources["default_profile"] = string(source)
	}
	if v, ok := fileCfg["profiles"].(map[string]any); ok {
		if cfg.Profiles == nil {
			cfg.Profiles = make(map[string]*ProfileConfig)
		}
		for name, profileData := range v {
			profileMap, ok := profileData.(map[string]any)
			if !ok {
				continue
			}
			baseURL, ok := profileMap["base_url"].(string)
			if !ok || baseURL == "" {
				// Skip profiles with empty or missing base_url
				continue
			}
			profileCfg := &ProfileConfig{BaseURL: baseURL}
			if prefix, ok := profileMap["auth_prefix"].(string); ok {
				profileCfg.AuthPrefix = prefix
			}
			cfg.Profiles[name] = profileCfg
		}
		cfg.Sources["profiles"] = string(source)
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("LINXTALK_BASE_URL"); v != "" {
		cfg.BaseURL = v
		cfg.Sources["base_url"] = string(SourceEnv)
	}
	if v := os.Getenv("LINXTALK_AUTH_PREFIX"); v != "" {
		cfg.AuthPrefix = v
		cfg.Sources["auth_prefix"] = string(SourceEnv)
	}
	if v := os.Getenv("LINXTALK_DATA_DIR"); v != "" {
		cfg.DataDir = v
		cfg.Sources["data_dir"] = string(SourceEnv)
	}
	if v := os.Getenv("LINXTALK_NO_KEYRING"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.NoKeyring = b
			cfg.Sources["no_keyring"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("LINXTALK_BUSY_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.BusyDelay = d
			cfg.Sources["busy_delay"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("LINXTALK_TOAST_DURATION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ToastDuration = d
			cfg.Sources["toast_duration"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("LINXTALK_DEBUG"); v != "" {
		if b, ok := parseEnvBool(v); ok && b {
			level := 2
			cfg.Verbose = &level
			cfg.Sources["verbose"] = string(SourceEnv)
		}
	}
}

// parseEnvBool parses a boolean environment variable strictly.
// Returns (value, true) for recognized values, (false, false) for unrecognized.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

// getDuration reads a duration written either as a Go duration string
// ("300ms") or as a number of milliseconds.
func getDuration(m map[string]any, key string) (time.Duration, bool) {
	switch v := m[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return 0, false
		}
		return d, true
	default:
		ms, ok := getInt(m, key)
		if !ok || ms <= 0 {
			return 0, false
		}
		return time.Duration(ms) * time.Millisecond, true
	}
}

// getInt extracts a whole number. JSON decodes numbers as float64, YAML as int.
func getInt(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		iv := int(v)
		if float64(iv) != v {
			return 0, false
		}
		return iv, true
	default:
		return 0, false
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
		cfg.Sources["data_dir"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
	if o.Verbose > 0 {
		v := o.Verbose
		cfg.Verbose = &v
		cfg.Sources["verbose"] = string(SourceFlag)
	}
}

// ApplyProfile overlays a named server onto the config. Callers re-apply
// env and flags afterwards so they keep precedence over the profile.
func (cfg *Config) ApplyProfile(name string) error {
	if cfg.Profiles == nil {
		return fmt.Errorf("no profiles configured")
	}
	p, ok := cfg.Profiles[name]
	if !ok {
		return fmt.Errorf("profile %q not found", name)
	}

	cfg.ActiveProfile = name
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
		cfg.Sources["base_url"] = string(SourceProfile)
	}
	if p.AuthPrefix != "" {
		cfg.AuthPrefix = p.AuthPrefix
		cfg.Sources["auth_prefix"] = string(SourceProfile)
	}
	return nil
}

// VerboseLevel returns the configured verbosity, 0 when unset.
func (cfg *Config) VerboseLevel() int {
	if cfg.Verbose == nil {
		return 0
	}
	return *cfg.Verbose
}

// Path helpers

func systemConfigPaths() []string {
	return []string{"/etc/linxtalk/config.json", "/etc/linxtalk/config.yaml"}
}

func globalConfigPaths() []string {
	dir := GlobalConfigDir()
	return []string{filepath.Join(dir, "config.json"), filepath.Join(dir, "config.yaml")}
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "linxtalk")
}

// NormalizeBaseURL turns a bare host into a URL and drops the trailing slash.
// localhost and loopback addresses default to http://, everything else to https://.
func NormalizeBaseURL(host string) string {
	host = strings.TrimSuffix(host, "/")
	if host == "" {
		return ""
	}
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	if isLocalhost(host) {
		return "http://" + host
	}
	return "https://" + host
}

// isLocalhost reports whether host (with optional port) is localhost, a
// .localhost subdomain, 127.0.0.1, or [::1].
func isLocalhost(host string) bool {
	hostname := host
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end != -1 {
			hostname = host[1:end]
		}
	} else if idx := strings.LastIndex(host, ":"); idx != -1 {
		hostname = host[:idx]
	}
	return hostname == "localhost" ||
		strings.HasSuffix(hostname, ".localhost") ||
		hostname == "127.0.0.1" ||
		hostname == "::1"
}
