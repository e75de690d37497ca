// internal/cycle/config.go
// Persistent rotation settings stored in cycle.json
package cycle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	"github.com/codex-usage/codex-usage/internal/apperr"
)

// Mode controls how the two window thresholds combine.
type Mode string

const (
	// ModeAll cycles only when every window has crossed its threshold
	ModeAll Mode = "and"
	// ModeAny cycles as soon as one window crosses its threshold
	ModeAny Mode = "or"
)

// ParseMode accepts "and"/"all" and "or"/"any", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "and", "all":
		return ModeAll, nil
	case "or", "any":
		return ModeAny, nil
	}
	return "", fmt.Errorf("invalid cycle mode %q (want \"and\" or \"or\")", s)
}

// Thresholds are remaining-percent levels at or below which a window counts
// as crossed.
type Thresholds struct {
	FiveHour float64 `json:"five_hour"`
	Weekly   float64 `json:"weekly"`
}

// Validate checks both thresholds are percentages.
func (t Thresholds) Validate() error {
	if t.FiveHour < 0 || t.FiveHour > 100 {
		return fmt.Errorf("5h threshold %.1f out of range 0-100", t.FiveHour)
	}
	if t.Weekly < 0 || t.Weekly > 100 {
		return fmt.Errorf("weekly threshold %.1f out of range 0-100", t.Weekly)
	}
	return nil
}

// Config represents the cycle settings stored in cycle.json
type Config struct {
	Enabled      bool       `json:"enabled"`
	Thresholds   Thresholds `json:"thresholds"`
	Mode         Mode       `json:"mode"`
	Accounts     []string   `json:"accounts"` // empty means every registered account, by name
	CurrentIndex int        `json:"current_index"`
	LastCycle    *time.Time `json:"last_cycle"`
}

// DefaultConfig returns disabled cycling with zero thresholds in ALL mode.
func DefaultConfig() *Config {
	return &Config{
		Mode:     ModeAll,
		Accounts: []string{},
	}
}

// Store reads and writes cycle.json.
type Store struct {
	path string
}

// NewStore returns a store backed by path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the cycle config. A missing file yields the defaults.
func (s *Store) Load() (*Config, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, apperr.ConfigIO("read", s.path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, apperr.ConfigIO("parse", s.path, err)
	}

	if cfg.Mode == "" {
		cfg.Mode = ModeAll
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, apperr.ConfigIO("parse", s.path, err)
	}
	cfg.Mode = mode
	if cfg.Accounts == nil {
		cfg.Accounts = []string{}
	}
	if cfg.CurrentIndex < 0 {
		cfg.CurrentIndex = 0
	}
	return cfg, nil
}

// Save writes the cycle config atomically.
func (s *Store) Save(cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return apperr.ConfigIO("create directory for", s.path, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cycle config: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return apperr.ConfigIO("write", s.path, err)
	}
	return nil
}
