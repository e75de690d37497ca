package cycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/codex-usage/codex-usage/internal/apperr"
	"github.com/codex-usage/codex-usage/internal/history"
	"github.com/codex-usage/codex-usage/internal/quota"
	"github.com/codex-usage/codex-usage/internal/registry"
)

type fakeVault struct {
	regStore  *registry.Store
	running   bool
	activated []string
}

func (v *fakeVault) Activate(name string, allowIfRunning bool) error {
	if v.running && !allowIfRunning {
		return apperr.New(apperr.KindRunningConflict, "activate "+name, "Use --force", nil)
	}
	reg, err := v.regStore.Load()
	if err != nil {
		return err
	}
	if err := reg.SetActive(name, time.Now()); err != nil {
		return err
	}
	v.activated = append(v.activated, name)
	return v.regStore.Save(reg)
}

type memSink struct {
	records []history.Record
	err     error
}

func (s *memSink) Append(_ context.Context, r history.Record) error {
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, r)
	return nil
}

type fixture struct {
	engine   *Engine
	store    *Store
	regStore *registry.Store
	vault    *fakeVault
	sink     *memSink
	measured []string
	snap     *quota.Snapshot
}

func newFixture(t *testing.T, accounts []string, active string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		store:    NewStore(filepath.Join(dir, "cycle.json")),
		regStore: registry.NewStore(filepath.Join(dir, "config.json")),
		sink:     &memSink{},
		snap:     snapshot(5, 5),
	}
	f.vault = &fakeVault{regStore: f.regStore}

	reg := registry.New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range accounts {
		if _, err := reg.Upsert(name, string(rune('a'+i))+"-fp", now); err != nil {
			t.Fatal(err)
		}
	}
	if active != "" {
		if err := reg.SetActive(active, now); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.regStore.Save(reg); err != nil {
		t.Fatal(err)
	}

	f.engine = NewEngine(EngineConfig{
		Store:    f.store,
		Registry: f.regStore,
		Vault:    f.vault,
		Measurer: MeasureFunc(func(_ context.Context, account string) (*quota.Snapshot, error) {
			f.measured = append(f.measured, account)
			return f.snap.WithAccount(account), nil
		}),
		History: f.sink,
		Now:     func() time.Time { return now.Add(time.Hour) },
	})
	return f
}

func (f *fixture) saveConfig(t *testing.T, cfg *Config) {
	t.Helper()
	if err := f.store.Save(cfg); err != nil {
		t.Fatal(err)
	}
}

func TestRunOnceAdvancesRoundRobin(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"}, "B")
	f.saveConfig(t, &Config{
		Enabled:    true,
		Mode:       ModeAll,
		Thresholds: Thresholds{FiveHour: 10, Weekly: 10},
		Accounts:   []string{"A", "B", "C"},
	})

	res, err := f.engine.RunOnce(context.Background(), "", false)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !res.Switched() || res.From != "B" || res.To != "C" || res.Index != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(f.measured) != 1 || f.measured[0] != "B" {
		t.Errorf("expected only the current account to be measured, got %v", f.measured)
	}
	if len(f.sink.records) != 1 {
		t.Fatalf("expected exactly one history record, got %d", len(f.sink.records))
	}
	rec := f.sink.records[0]
	if rec.FromAccount != "B" || rec.ToAccount != "C" || rec.Reason != res.Reason {
		t.Errorf("unexpected record: %+v", rec)
	}

	cfg, err := f.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.CurrentIndex != 2 || cfg.LastCycle == nil {
		t.Errorf("config not advanced: index=%d last=%v", cfg.CurrentIndex, cfg.LastCycle)
	}
	reg, _ := f.regStore.Load()
	if reg.Active != "C" {
		t.Errorf("Active = %q, want C", reg.Active)
	}
}

func TestRunOnceWrapsAround(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"}, "C")
	f.saveConfig(t, &Config{Enabled: true, Mode: ModeAny, Thresholds: Thresholds{10, 10}})

	res, err := f.engine.RunOnce(context.Background(), "", false)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.To != "A" || res.Index != 0 {
		t.Errorf("expected wrap to A at index 0, got %+v", res)
	}
}

func TestRunOnceNoOps(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, []string{"A", "B"}, "A")
		res, err := f.engine.RunOnce(context.Background(), "", false)
		if err != nil || res.State != StateDisabled {
			t.Fatalf("expected disabled, got %+v, %v", res, err)
		}
		if len(f.measured) != 0 {
			t.Error("disabled engine should not measure")
		}
	})

	t.Run("no accounts", func(t *testing.T) {
		f := newFixture(t, nil, "")
		f.saveConfig(t, &Config{Enabled: true, Mode: ModeAll})
		res, err := f.engine.RunOnce(context.Background(), "", false)
		if err != nil || res.State != StateIdle || res.Message == "" {
			t.Fatalf("expected idle with message, got %+v, %v", res, err)
		}
	})

	t.Run("thresholds not met", func(t *testing.T) {
		f := newFixture(t, []string{"A", "B"}, "A")
		f.snap = snapshot(50, 50)
		f.saveConfig(t, &Config{Enabled: true, Mode: ModeAll, Thresholds: Thresholds{10, 10}})
		res, err := f.engine.RunOnce(context.Background(), "", false)
		if err != nil || res.State != StateIdle || res.Switched() {
			t.Fatalf("expected idle, got %+v, %v", res, err)
		}
		if len(f.vault.activated) != 0 || len(f.sink.records) != 0 {
			t.Error("idle run must not switch or record history")
		}
	})

	t.Run("single account already live", func(t *testing.T) {
		f := newFixture(t, []string{"A"}, "A")
		f.saveConfig(t, &Config{Enabled: true, Mode: ModeAll, Thresholds: Thresholds{10, 10}})
		res, err := f.engine.RunOnce(context.Background(), "", false)
		if err != nil || res.State != StateIdle {
			t.Fatalf("expected idle, got %+v, %v", res, err)
		}
		if len(f.vault.activated) != 0 {
			t.Error("should not re-activate the live account")
		}
	})
}

func TestRunOnceNoActiveAccount(t *testing.T) {
	f := newFixture(t, []string{"A", "B"}, "")
	f.saveConfig(t, &Config{Enabled: true, Mode: ModeAll})

	_, err := f.engine.RunOnce(context.Background(), "", false)
	if !errors.Is(err, apperr.ErrNoActiveAccount) {
		t.Fatalf("expected no active account error, got %v", err)
	}
}

func TestRunOnceBlockedByRunningProcess(t *testing.T) {
	f := newFixture(t, []string{"A", "B"}, "A")
	f.vault.running = true
	f.saveConfig(t, &Config{Enabled: true, Mode: ModeAll, Thresholds: Thresholds{10, 10}, CurrentIndex: 0})

	res, err := f.engine.RunOnce(context.Background(), "", false)
	if !errors.Is(err, apperr.ErrRunningConflict) {
		t.Fatalf("expected running conflict, got %v", err)
	}
	if res == nil || res.State != StateBlocked {
		t.Fatalf("expected blocked result, got %+v", res)
	}

	cfg, _ := f.store.Load()
	if cfg.CurrentIndex != 0 || cfg.LastCycle != nil {
		t.Error("blocked run must not advance the index")
	}
	if len(f.sink.records) != 0 {
		t.Error("blocked run must not write history")
	}

	res, err = f.engine.RunOnce(context.Background(), "", true)
	if err != nil || !res.Switched() || res.To != "B" {
		t.Fatalf("forced run should switch, got %+v, %v", res, err)
	}
}

func TestRunOnceHistoryFailureStillReportsSwitch(t *testing.T) {
	f := newFixture(t, []string{"A", "B"}, "A")
	f.sink.err = errors.New("disk full")
	f.saveConfig(t, &Config{Enabled: true, Mode: ModeAll, Thresholds: Thresholds{10, 10}})

	res, err := f.engine.RunOnce(context.Background(), "", false)
	if err == nil {
		t.Fatal("expected history error")
	}
	if res == nil || !res.Switched() {
		t.Fatalf("switch should still be reported, got %+v", res)
	}
}

func TestRunOnceAccountOverride(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"}, "A")
	f.saveConfig(t, &Config{Enabled: true, Mode: ModeAll, Thresholds: Thresholds{10, 10}})

	res, err := f.engine.RunOnce(context.Background(), "B", false)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if f.measured[0] != "B" || res.To != "C" {
		t.Errorf("expected B to be measured and C targeted, got measured=%v to=%q", f.measured, res.To)
	}
}

func TestCurrentIndexFallsBackToStoredIndex(t *testing.T) {
	rotation := []string{"A", "B", "C"}
	if got := currentIndex(rotation, "B", 0); got != 1 {
		t.Errorf("listed account: got %d, want 1", got)
	}
	if got := currentIndex(rotation, "Z", 4); got != 1 {
		t.Errorf("unlisted account: got %d, want 1", got)
	}
}

func TestEngineSettings(t *testing.T) {
	f := newFixture(t, []string{"A", "B", "C"}, "C")

	cfg, err := f.engine.Enable()
	if err != nil || !cfg.Enabled {
		t.Fatalf("Enable: %+v, %v", cfg, err)
	}

	five, weekly := 15.0, 5.0
	mode := Mode("any")
	cfg, err = f.engine.Configure(ConfigUpdate{FiveHour: &five, Weekly: &weekly, Mode: &mode})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if cfg.Thresholds.FiveHour != 15 || cfg.Thresholds.Weekly != 5 || cfg.Mode != ModeAny {
		t.Errorf("unexpected config: %+v", cfg)
	}

	bad := 150.0
	if _, err := f.engine.Configure(ConfigUpdate{FiveHour: &bad}); err == nil {
		t.Error("expected out-of-range threshold to be rejected")
	}

	cfg, err = f.engine.Reorder([]string{"C", "A", "B"})
	if err != nil {
		t.Fatalf("Reorder: %v", err)
	}
	if cfg.CurrentIndex != 0 {
		t.Errorf("index should follow the live account, got %d", cfg.CurrentIndex)
	}

	if _, err := f.engine.Reorder([]string{"A", "nobody"}); !errors.Is(err, apperr.ErrCredentialMissing) {
		t.Errorf("expected unknown account error, got %v", err)
	}
	if _, err := f.engine.Reorder([]string{"A", "A"}); err == nil {
		t.Error("expected duplicate names to be rejected")
	}

	cfg, err = f.engine.Disable()
	if err != nil || cfg.Enabled {
		t.Fatalf("Disable: %+v, %v", cfg, err)
	}
	if cfg.Mode != ModeAny || len(cfg.Accounts) != 3 {
		t.Error("Disable should keep other settings")
	}
}

func TestStoreLoadsLegacyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle.json")
	legacy := `{"enabled":true,"thresholds":{"five_hour":10.0,"weekly":5.0},"mode":"or","accounts":["a","b"],"current_index":1,"last_cycle":"2025-11-02T10:00:00.123456+00:00"}`
	if err := os.WriteFile(path, []byte(legacy), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Enabled || cfg.Mode != ModeAny || cfg.CurrentIndex != 1 || cfg.LastCycle == nil {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestStoreDefaultsAndErrors(t *testing.T) {
	dir := t.TempDir()

	cfg, err := NewStore(filepath.Join(dir, "missing.json")).Load()
	if err != nil || cfg.Enabled || cfg.Mode != ModeAll {
		t.Errorf("missing file should yield defaults, got %+v, %v", cfg, err)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"mode":`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(bad).Load(); !errors.Is(err, apperr.ErrConfigIO) {
		t.Errorf("expected config io error, got %v", err)
	}
}

func TestForgetKeepsIndexInRange(t *testing.T) {
	tests := []struct {
		name      string
		accounts  []string
		index     int
		forget    string
		wantList  []string
		wantIndex int
	}{
		{"before index", []string{"A", "B", "C"}, 2, "A", []string{"B", "C"}, 1},
		{"at last index", []string{"A", "B", "C"}, 2, "C", []string{"A", "B"}, 0},
		{"after index", []string{"A", "B", "C"}, 0, "B", []string{"A", "C"}, 0},
		{"only entry", []string{"A"}, 0, "A", []string{}, 0},
		{"not listed", []string{"A", "B"}, 1, "Z", []string{"A", "B"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, []string{"A", "B", "C"}, "")
			f.saveConfig(t, &Config{Mode: ModeAll, Accounts: tt.accounts, CurrentIndex: tt.index})

			cfg, err := f.engine.Forget(tt.forget)
			if err != nil {
				t.Fatalf("Forget: %v", err)
			}
			if len(cfg.Accounts) != len(tt.wantList) {
				t.Fatalf("Accounts = %v, want %v", cfg.Accounts, tt.wantList)
			}
			for i := range tt.wantList {
				if cfg.Accounts[i] != tt.wantList[i] {
					t.Errorf("Accounts = %v, want %v", cfg.Accounts, tt.wantList)
				}
			}
			if cfg.CurrentIndex != tt.wantIndex {
				t.Errorf("CurrentIndex = %d, want %d", cfg.CurrentIndex, tt.wantIndex)
			}
		})
	}
}

func TestForgetReducesDerivedRotationIndex(t *testing.T) {
	f := newFixture(t, []string{"a", "b", "c"}, "b")
	f.saveConfig(t, &Config{Enabled: true, Mode: ModeAny, Thresholds: Thresholds{100, 100}})

	res, err := f.engine.RunOnce(context.Background(), "", false)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if res.To != "c" || res.Index != 2 {
		t.Fatalf("expected switch to c at index 2, got %+v", res)
	}

	reg, err := f.regStore.Load()
	if err != nil {
		t.Fatal(err)
	}
	reg.Remove("c")
	if err := f.regStore.Save(reg); err != nil {
		t.Fatal(err)
	}

	cfg, err := f.engine.Forget("c")
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if len(cfg.Accounts) != 0 {
		t.Errorf("Accounts = %v, want none configured", cfg.Accounts)
	}
	if cfg.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d, want 0 for rotation [a b]", cfg.CurrentIndex)
	}
	stored, err := f.store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if stored.CurrentIndex != cfg.CurrentIndex {
		t.Errorf("persisted index = %d, want %d", stored.CurrentIndex, cfg.CurrentIndex)
	}

	for _, name := range []string{"a", "b"} {
		reg.Remove(name)
	}
	if err := f.regStore.Save(reg); err != nil {
		t.Fatal(err)
	}
	f.saveConfig(t, &Config{Mode: ModeAll, CurrentIndex: 1})
	if cfg, err = f.engine.Forget("b"); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if cfg.CurrentIndex != 0 {
		t.Errorf("CurrentIndex = %d with an empty registry, want 0", cfg.CurrentIndex)
	}
}

func TestOverview(t *testing.T) {
	tests := []struct {
		name     string
		accounts []string
		active   string
		rotation []string
		wantNext string
	}{
		{"sorted fallback", []string{"b", "a", "c"}, "a", nil, "b"},
		{"configured order", []string{"a", "b", "c"}, "c", []string{"c", "a"}, "a"},
		{"active outside rotation", []string{"a", "b", "c"}, "b", []string{"a", "c"}, "c"},
		{"empty", nil, "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.accounts, tt.active)
			if tt.rotation != nil {
				cfg := DefaultConfig()
				cfg.Accounts = tt.rotation
				f.saveConfig(t, cfg)
			}
			o, err := f.engine.Overview()
			if err != nil {
				t.Fatal(err)
			}
			if o.Active != tt.active {
				t.Errorf("Active = %q, want %q", o.Active, tt.active)
			}
			if o.Next != tt.wantNext {
				t.Errorf("Next = %q, want %q (rotation %v)", o.Next, tt.wantNext, o.Rotation)
			}
		})
	}
}
