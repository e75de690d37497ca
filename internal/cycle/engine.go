// internal/cycle/engine.go
package cycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/codex-usage/codex-usage/internal/apperr"
	"github.com/codex-usage/codex-usage/internal/history"
	"github.com/codex-usage/codex-usage/internal/quota"
	"github.com/codex-usage/codex-usage/internal/registry"
)

// State is where a run ended up.
type State int

const (
	StateDisabled State = iota
	StateIdle
	StateDue
	StateSwitching
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateIdle:
		return "idle"
	case StateDue:
		return "due"
	case StateSwitching:
		return "switching"
	case StateBlocked:
		return "blocked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Activator makes an account live.
type Activator interface {
	Activate(name string, allowIfRunning bool) error
}

// Measurer fetches the usage of one account.
type Measurer interface {
	Measure(ctx context.Context, account string) (*quota.Snapshot, error)
}

// MeasureFunc adapts a function to Measurer.
type MeasureFunc func(ctx context.Context, account string) (*quota.Snapshot, error)

func (f MeasureFunc) Measure(ctx context.Context, account string) (*quota.Snapshot, error) {
	return f(ctx, account)
}

// EngineConfig holds the engine's collaborators.
type EngineConfig struct {
	Store    *Store
	Registry *registry.Store
	Vault    Activator
	Measurer Measurer
	History  history.Sink
	Now      func() time.Time
	Logger   *zap.Logger
}

// Engine evaluates thresholds and advances the rotation.
type Engine struct {
	store    *Store
	registry *registry.Store
	vault    Activator
	measurer Measurer
	history  history.Sink
	now      func() time.Time
	logger   *zap.Logger
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		store:    cfg.Store,
		registry: cfg.Registry,
		vault:    cfg.Vault,
		measurer: cfg.Measurer,
		history:  cfg.History,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// Result describes one RunOnce pass.
type Result struct {
	State    State
	From     string
	To       string
	Index    int
	Reason   string
	Message  string
	Snapshot *quota.Snapshot
	Record   *history.Record
}

// Switched reports whether the live account changed.
func (r *Result) Switched() bool {
	return r.State == StateSwitching
}

// Rotation returns the configured rotation list, or every registered account
// sorted by name when none is configured.
func Rotation(cfg *Config, reg *registry.Registry) []string {
	if len(cfg.Accounts) > 0 {
		return slices.Clone(cfg.Accounts)
	}
	return reg.Names()
}

// currentIndex is the position of current in rotation, or the stored index
// reduced into range when current is not listed.
func currentIndex(rotation []string, current string, stored int) int {
	if i := slices.Index(rotation, current); i >= 0 {
		return i
	}
	if stored < 0 {
		stored = 0
	}
	return stored % len(rotation)
}

// RunOnce measures the current account and, if its thresholds are crossed,
// switches to the next account in the rotation. account overrides the
// registry's live account as the one being measured. force allows the switch
// while Codex is running.
func (e *Engine) RunOnce(ctx context.Context, account string, force bool) (*Result, error) {
	cfg, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return &Result{
			State:   StateDisabled,
			Message: "Cycling is disabled. Use 'codex-usage cycle enable' to enable.",
		}, nil
	}

	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}

	rotation := Rotation(cfg, reg)
	if len(rotation) == 0 {
		return &Result{
			State:   StateIdle,
			Message: "No accounts configured. Add accounts first.",
		}, nil
	}

	current := account
	if current == "" {
		current = reg.Active
	}
	if current == "" {
		return nil, apperr.New(apperr.KindNoActiveAccount, "cycle",
			"Use 'codex-usage accounts switch <name>' to set an active account.", nil)
	}

	idx := currentIndex(rotation, current, cfg.CurrentIndex)
	res := &Result{From: current, Index: idx}

	snap, err := e.measurer.Measure(ctx, current)
	if err != nil {
		return nil, err
	}
	res.Snapshot = snap

	d := Decide(snap, cfg)
	res.Reason = d.Reason
	if !d.ShouldCycle {
		res.State = StateIdle
		res.Message = fmt.Sprintf("No cycle needed (thresholds not met: %s)", d.Reason)
		return res, nil
	}

	next := (idx + 1) % len(rotation)
	target := rotation[next]
	if target == current {
		res.State = StateIdle
		res.Message = fmt.Sprintf("Thresholds crossed but '%s' is the only account in the rotation.", current)
		return res, nil
	}

	res.State = StateDue
	res.To = target
	e.logger.Info("cycle due",
		zap.String("from", current),
		zap.String("to", target),
		zap.String("reason", d.Reason))

	if err := e.vault.Activate(target, force); err != nil {
		if errors.Is(err, apperr.ErrRunningConflict) {
			res.State = StateBlocked
			res.Message = "Aborted. Use --force to switch anyway."
			return res, err
		}
		return nil, err
	}

	now := e.now()
	res.State = StateSwitching
	res.Index = next
	res.Message = fmt.Sprintf("Cycled from '%s' to '%s' (reason: %s)", current, target, d.Reason)

	cfg.CurrentIndex = next
	cfg.LastCycle = &now
	if err := e.store.Save(cfg); err != nil {
		return res, err
	}

	record := history.NewRecord(current, target, d.Reason, now)
	res.Record = &record
	if e.history != nil {
		if err := e.history.Append(ctx, record); err != nil {
			return res, fmt.Errorf("record cycle history: %w", err)
		}
	}

	return res, nil
}

// Overview is the rotation as the next RunOnce would see it.
type Overview struct {
	Config   *Config
	Rotation []string
	Active   string
	Next     string // empty when the rotation is empty
}

// Overview loads the configuration and resolves the rotation and next target.
func (e *Engine) Overview() (*Overview, error) {
	cfg, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}
	o := &Overview{Config: cfg, Rotation: Rotation(cfg, reg), Active: reg.Active}
	if n := len(o.Rotation); n > 0 {
		o.Next = o.Rotation[(currentIndex(o.Rotation, reg.Active, cfg.CurrentIndex)+1)%n]
	}
	return o, nil
}

// Load returns the stored configuration.
func (e *Engine) Load() (*Config, error) {
	return e.store.Load()
}

// Enable turns automatic cycling on.
func (e *Engine) Enable() (*Config, error) {
	return e.update(func(cfg *Config) error {
		cfg.Enabled = true
		return nil
	})
}

// Disable turns automatic cycling off.
func (e *Engine) Disable() (*Config, error) {
	return e.update(func(cfg *Config) error {
		cfg.Enabled = false
		return nil
	})
}

// ConfigUpdate carries the settings to change; nil fields are left alone.
type ConfigUpdate struct {
	FiveHour *float64
	Weekly   *float64
	Mode     *Mode
}

// Configure changes thresholds and mode.
func (e *Engine) Configure(u ConfigUpdate) (*Config, error) {
	return e.update(func(cfg *Config) error {
		t := cfg.Thresholds
		if u.FiveHour != nil {
			t.FiveHour = *u.FiveHour
		}
		if u.Weekly != nil {
			t.Weekly = *u.Weekly
		}
		if err := t.Validate(); err != nil {
			return err
		}
		cfg.Thresholds = t
		if u.Mode != nil {
			mode, err := ParseMode(string(*u.Mode))
			if err != nil {
				return err
			}
			cfg.Mode = mode
		}
		return nil
	})
}

// Reorder replaces the rotation list. Every name must be registered and
// appear once; the index is realigned to the live account when it is listed.
func (e *Engine) Reorder(names []string) (*Config, error) {
	reg, err := e.registry.Load()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if !reg.Has(name) {
			return nil, registry.NotFoundError(name)
		}
		if seen[name] {
			return nil, fmt.Errorf("account '%s' listed more than once", name)
		}
		seen[name] = true
	}

	return e.update(func(cfg *Config) error {
		cfg.Accounts = slices.Clone(names)
		if i := slices.Index(names, reg.Active); i >= 0 {
			cfg.CurrentIndex = i
		} else if len(names) > 0 {
			cfg.CurrentIndex %= len(names)
		} else {
			cfg.CurrentIndex = 0
		}
		return nil
	})
}

// Forget drops name from the rotation list, keeping the index in range. With
// no list configured the index is reduced against the remaining registry.
func (e *Engine) Forget(name string) (*Config, error) {
	return e.update(func(cfg *Config) error {
		if len(cfg.Accounts) == 0 {
			reg, err := e.registry.Load()
			if err != nil {
				return err
			}
			names := slices.DeleteFunc(reg.Names(), func(n string) bool { return n == name })
			if len(names) == 0 || cfg.CurrentIndex < 0 {
				cfg.CurrentIndex = 0
			} else {
				cfg.CurrentIndex %= len(names)
			}
			return nil
		}
		i := slices.Index(cfg.Accounts, name)
		if i < 0 {
			return nil
		}
		cfg.Accounts = slices.Delete(cfg.Accounts, i, i+1)
		switch {
		case len(cfg.Accounts) == 0:
			cfg.CurrentIndex = 0
		case i < cfg.CurrentIndex:
			cfg.CurrentIndex--
		default:
			cfg.CurrentIndex %= len(cfg.Accounts)
		}
		return nil
	})
}

func (e *Engine) update(fn func(cfg *Config) error) (*Config, error) {
	cfg, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	if err := fn(cfg); err != nil {
		return nil, err
	}
	if err := e.store.Save(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
