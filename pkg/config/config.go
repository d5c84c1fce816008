package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither file nor env provide a value.
const (
	DefaultProvisionWait = 3 * time.Second
	DefaultTypingIdle    = 3 * time.Second
	DefaultGroupGap      = 2 * time.Minute
	DefaultConversation  = "general"
	DefaultDiagAddress   = "127.0.0.1:9690"
)

// Load reads the YAML config file at path. A missing file is not fatal:
// it returns an empty config so env overrides and defaults still apply.
func Load(path string) (*Config, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, true, nil
}

// ApplyEnvOverrides layers PARLEY_* environment variables onto cfg and
// reports whether any env var was used. Env wins over the file; explicit
// flags (handled by the CLI) win over both.
func ApplyEnvOverrides(cfg *Config) bool {
	used := false
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
			used = true
		}
	}
	set(&cfg.Backend.BaseURL, "PARLEY_BACKEND_URL")
	set(&cfg.Backend.StreamURL, "PARLEY_STREAM_URL")
	set(&cfg.Backend.APIKey, "PARLEY_API_KEY")
	set(&cfg.Client.Conversation, "PARLEY_CONVERSATION")
	set(&cfg.Client.DisplayName, "PARLEY_DISPLAY_NAME")
	set(&cfg.Storage.DataDir, "PARLEY_DATA_DIR")
	set(&cfg.Logging.Level, "PARLEY_LOG_LEVEL")
	if v := strings.TrimSpace(os.Getenv("PARLEY_DIAG_ADDR")); v != "" {
		cfg.Diagnostics.Enabled = true
		cfg.Diagnostics.Address = v
		used = true
	}
	return used
}

// ApplyDefaults fills unset values so the rest of the program never has to
// re-check for zero values.
func ApplyDefaults(cfg *Config) {
	if cfg.Client.Conversation == "" {
		cfg.Client.Conversation = DefaultConversation
	}
	if cfg.Client.ProvisionWait.Duration() <= 0 {
		cfg.Client.ProvisionWait = Duration(DefaultProvisionWait)
	}
	if cfg.Client.TypingIdle.Duration() <= 0 {
		cfg.Client.TypingIdle = Duration(DefaultTypingIdle)
	}
	if cfg.Client.GroupGap.Duration() <= 0 {
		cfg.Client.GroupGap = Duration(DefaultGroupGap)
	}
	if cfg.Storage.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Storage.DataDir = filepath.Join(home, ".parley")
		} else {
			cfg.Storage.DataDir = "./.parley"
		}
	}
	if cfg.Diagnostics.Address == "" {
		cfg.Diagnostics.Address = DefaultDiagAddress
	}
	if cfg.Backend.RequestTimeout.Duration() <= 0 {
		cfg.Backend.RequestTimeout = Duration(5 * time.Second)
	}
	if cfg.Validation.MaxBodyLen <= 0 {
		cfg.Validation.MaxBodyLen = 4000
	}
}

// ResolveConfigPath picks the config file path: an explicitly set flag wins,
// then PARLEY_CONFIG, then the default location under the home directory.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet && flagVal != "" {
		return flagVal
	}
	if v := strings.TrimSpace(os.Getenv("PARLEY_CONFIG")); v != "" {
		return v
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".parley", "config.yaml")
	}
	return "./config.yaml"
}

// LoadEffective is the single entrypoint used by the CLI: file + env +
// defaults, returning the merged config and a human-readable source label.
func LoadEffective(path string) (*Config, string, error) {
	cfg, fromFile, err := Load(path)
	if err != nil {
		return nil, "", err
	}
	envUsed := ApplyEnvOverrides(cfg)
	ApplyDefaults(cfg)
	switch {
	case fromFile && envUsed:
		return cfg, "file+env", nil
	case fromFile:
		return cfg, "file", nil
	case envUsed:
		return cfg, "env", nil
	default:
		return cfg, "defaults", nil
	}
}
