package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Backend     BackendConfig     `yaml:"backend"`
	Client      ClientConfig      `yaml:"client"`
	Storage     StorageConfig     `yaml:"storage"`
	Logging     LoggingConfig     `yaml:"logging"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Retention   RetentionConfig   `yaml:"retention"`
	Validation  ValidationConfig  `yaml:"validation"`
}

// BackendConfig holds endpoints and credentials for the chat backend.
type BackendConfig struct {
	BaseURL        string   `yaml:"base_url"`
	StreamURL      string   `yaml:"stream_url"`
	APIKey         string   `yaml:"api_key"`
	RequestTimeout Duration `yaml:"request_timeout"`
}

// ClientConfig holds the local participant and conversation settings.
type ClientConfig struct {
	Conversation  string   `yaml:"conversation"`
	DisplayName   string   `yaml:"display_name"`
	AvatarRef     string   `yaml:"avatar_ref"`
	ProvisionWait Duration `yaml:"provision_wait"`
	TypingIdle    Duration `yaml:"typing_idle"`
	GroupGap      Duration `yaml:"group_gap"`
}

// StorageConfig holds the local pebble data directory.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DiagnosticsConfig controls the local metrics/health listener.
type DiagnosticsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// RetentionConfig holds configuration for the cache pruning runner.
type RetentionConfig struct {
	Enabled       bool      `yaml:"enabled"`
	Cron          string    `yaml:"cron"`
	Period        string    `yaml:"period"`
	MaxCacheBytes SizeBytes `yaml:"max_cache_bytes"`
	DryRun        bool      `yaml:"dry_run"`
}

// ValidationConfig holds local content validation rules.
type ValidationConfig struct {
	MaxBodyLen   int      `yaml:"max_body_len"`
	BlockedTerms []string `yaml:"blocked_terms"`
	RemoteURL    string   `yaml:"remote_url"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Or returns the wrapped duration, or fallback when unset.
func (d Duration) Or(fallback time.Duration) time.Duration {
	if time.Duration(d) <= 0 {
		return fallback
	}
	return time.Duration(d)
}
