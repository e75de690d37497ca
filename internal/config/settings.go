// internal/config/settings.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codex-usage/codex-usage/internal/apperr"
)

const (
	// DefaultUsageURL is the endpoint Codex itself polls for rate-limit state
	DefaultUsageURL = "https://chatgpt.com/backend-api/wham/usage"

	// DefaultUserAgent matches the Codex CLI so the endpoint treats us the same way
	DefaultUserAgent = "codex-cli"

	// DefaultProcessPattern is matched against process command lines
	DefaultProcessPattern = "codex "
)

// Settings holds optional tunables read from settings.yaml.
type Settings struct {
	UsageURL       string          `yaml:"usage_url"`
	UserAgent      string          `yaml:"user_agent"`
	CodexHome      string          `yaml:"codex_home"`
	ProcessPattern string          `yaml:"process_pattern"`
	Watch          WatchSettings   `yaml:"watch"`
	Logging        LoggingSettings `yaml:"logging"`
}

// WatchSettings configures live monitoring.
type WatchSettings struct {
	Interval time.Duration `yaml:"interval"`

	// MinFetchInterval bounds how often a single account is fetched
	MinFetchInterval time.Duration `yaml:"min_fetch_interval"`

	// MetricsAddr serves Prometheus metrics when non-empty (e.g. 127.0.0.1:9464)
	MetricsAddr string `yaml:"metrics_addr"`
}

// LoggingSettings selects log verbosity and encoding.
type LoggingSettings struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// DefaultSettings returns the settings used when no file exists.
func DefaultSettings() *Settings {
	return &Settings{
		UsageURL:       DefaultUsageURL,
		UserAgent:      DefaultUserAgent,
		ProcessPattern: DefaultProcessPattern,
		Watch: WatchSettings{
			Interval:         30 * time.Second,
			MinFetchInterval: 5 * time.Second,
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadSettings reads settings.yaml at path. A missing file yields defaults;
// a malformed one is a CONFIG_IO error.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return nil, apperr.ConfigIO("read", path, err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, apperr.ConfigIO("parse", path, err)
	}
	s.applyDefaults()

	if err := s.Validate(); err != nil {
		return nil, apperr.ConfigIO("validate", path, err)
	}
	return s, nil
}

func (s *Settings) applyDefaults() {
	d := DefaultSettings()
	if s.UsageURL == "" {
		s.UsageURL = d.UsageURL
	}
	if s.UserAgent == "" {
		s.UserAgent = d.UserAgent
	}
	if s.ProcessPattern == "" {
		s.ProcessPattern = d.ProcessPattern
	}
	if s.Watch.Interval == 0 {
		s.Watch.Interval = d.Watch.Interval
	}
	if s.Watch.MinFetchInterval == 0 {
		s.Watch.MinFetchInterval = d.Watch.MinFetchInterval
	}
	if s.Logging.Level == "" {
		s.Logging.Level = d.Logging.Level
	}
	if s.Logging.Format == "" {
		s.Logging.Format = d.Logging.Format
	}
}

// Validate checks settings that cannot be defaulted.
func (s *Settings) Validate() error {
	if s.Watch.Interval < time.Second {
		return fmt.Errorf("watch.interval must be at least 1s, got %s", s.Watch.Interval)
	}
	if s.Watch.MinFetchInterval < 0 {
		return fmt.Errorf("watch.min_fetch_interval must not be negative")
	}
	switch s.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", s.Logging.Format)
	}
	return nil
}
