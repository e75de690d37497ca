package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/codex-usage/codex-usage/internal/burnrate"
	"github.com/codex-usage/codex-usage/internal/cache"
	"github.com/codex-usage/codex-usage/internal/cycle"
	"github.com/codex-usage/codex-usage/internal/history"
	"github.com/codex-usage/codex-usage/internal/metrics"
	"github.com/codex-usage/codex-usage/internal/quota"
)

type fakeSource struct {
	mu       sync.Mutex
	accounts []string
	used     map[string]float64
	fail     map[string]error
	fetches  int
	now      func() time.Time
}

func (s *fakeSource) Accounts(context.Context) ([]string, error) {
	return s.accounts, nil
}

func (s *fakeSource) Fetch(ctx context.Context, account string) (*quota.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if err := s.fail[account]; err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	used := s.used[account]
	s.used[account] = used + 1
	return &quota.Snapshot{
		Account:    account,
		CapturedAt: s.now(),
		Primary:    &quota.Window{UsedPercent: used, RemainingPercent: 100 - used},
	}, nil
}

type memRecorder struct {
	snaps []*quota.Snapshot
}

func (r *memRecorder) InsertSnapshot(_ context.Context, s *quota.Snapshot) error {
	r.snaps = append(r.snaps, s)
	return nil
}

type fakeCycler struct {
	calls int
}

func (c *fakeCycler) RunOnce(context.Context, string, bool) (*cycle.Result, error) {
	c.calls++
	return &cycle.Result{State: cycle.StateIdle}, nil
}

func TestTickFetchesRecordsAndCaches(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	src := &fakeSource{accounts: []string{"a", "b"}, used: map[string]float64{"a": 10, "b": 50}, now: clock}
	c := cache.New(cache.Config{Dir: t.TempDir(), Now: clock})
	rec := &memRecorder{}
	met := metrics.New()
	cyc := &fakeCycler{}

	m := New(Config{Source: src, Cache: c, Metrics: met, Recorder: rec, Cycler: cyc, Now: clock})

	frame := m.Tick(context.Background())
	if len(frame.Entries) != 2 || frame.Tick != 1 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	for _, e := range frame.Entries {
		if e.Source != SourceLive || e.Snapshot == nil || e.HasRate {
			t.Errorf("unexpected first-tick entry: %+v", e)
		}
	}
	if len(rec.snaps) != 2 {
		t.Errorf("expected 2 recorded snapshots, got %d", len(rec.snaps))
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("fresh snapshot should be cached")
	}
	if cyc.calls != 1 || frame.Cycle == nil {
		t.Error("cycler should run once per tick")
	}
	if got := testutil.ToFloat64(met.CyclesTotal.WithLabelValues("idle")); got != 1 {
		t.Errorf("cycles_total{idle} = %v", got)
	}

	now = now.Add(time.Minute)
	frame = m.Tick(context.Background())
	if !frame.Entries[0].HasRate || frame.Entries[0].Rate.Primary.Velocity != 1 {
		t.Errorf("expected 1%%/min burn rate on second tick, got %+v", frame.Entries[0].Rate)
	}
	if got := testutil.ToFloat64(met.BurnRate.WithLabelValues("a", "5h")); got != 1 {
		t.Errorf("burn rate gauge = %v", got)
	}
}

func TestTickLimiterSubstitutesCache(t *testing.T) {
	now := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	src := &fakeSource{accounts: []string{"a"}, used: map[string]float64{"a": 10}, now: clock}
	c := cache.New(cache.Config{Dir: t.TempDir(), Now: clock})
	met := metrics.New()

	m := New(Config{Source: src, Cache: c, Metrics: met, Limiter: quota.NewLimiter(time.Hour), Now: clock})

	m.Tick(context.Background())
	now = now.Add(30 * time.Second)
	frame := m.Tick(context.Background())

	if src.fetches != 1 {
		t.Errorf("expected the limiter to block the second fetch, got %d fetches", src.fetches)
	}
	e := frame.Entries[0]
	if e.Source != SourceCached || e.Snapshot == nil || e.Snapshot.PrimaryUsed() != 10 {
		t.Errorf("expected cached substitute, got %+v", e)
	}
	if got := testutil.ToFloat64(met.FetchTotal.WithLabelValues("a", metrics.ResultLimited)); got != 1 {
		t.Errorf("fetch_total{limited} = %v", got)
	}
}

func TestTickFetchErrorIsPerAccount(t *testing.T) {
	src := &fakeSource{
		accounts: []string{"a", "b"},
		used:     map[string]float64{},
		fail:     map[string]error{"a": errors.New("boom")},
		now:      time.Now,
	}
	m := New(Config{Source: src})

	frame := m.Tick(context.Background())
	if frame.Entries[0].Err == nil {
		t.Error("expected error entry for a")
	}
	if frame.Entries[1].Err != nil || frame.Entries[1].Snapshot == nil {
		t.Error("b should still be measured")
	}
}

func TestTickIgnoresCancellationForInFlightFetch(t *testing.T) {
	src := &fakeSource{accounts: []string{"a"}, used: map[string]float64{}, now: time.Now}
	m := New(Config{Source: src})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	frame := m.Tick(ctx)
	if frame.Entries[0].Err != nil {
		t.Errorf("fetch should not see the cancellation, got %v", frame.Entries[0].Err)
	}
}

func TestWaitSlicesSleep(t *testing.T) {
	m := New(Config{Source: &fakeSource{}})
	var slept []time.Duration
	m.sleep = func(d time.Duration) { slept = append(slept, d) }

	if !m.wait(context.Background(), 900*time.Millisecond) {
		t.Fatal("wait should complete without cancellation")
	}
	want := []time.Duration{250, 250, 250, 150}
	if len(slept) != len(want) {
		t.Fatalf("slices = %v", slept)
	}
	for i, d := range want {
		if slept[i] != d*time.Millisecond {
			t.Errorf("slice %d = %v, want %v", i, slept[i], d*time.Millisecond)
		}
	}
}

func TestWaitStopsAfterCancellation(t *testing.T) {
	m := New(Config{Source: &fakeSource{}})
	ctx, cancel := context.WithCancel(context.Background())
	slices := 0
	m.sleep = func(time.Duration) {
		slices++
		if slices == 2 {
			cancel()
		}
	}

	if m.wait(ctx, time.Hour) {
		t.Fatal("wait should report cancellation")
	}
	if slices != 2 {
		t.Errorf("expected to stop right after the cancelling slice, slept %d slices", slices)
	}
}

func TestRunReturnsPromptlyOnCancel(t *testing.T) {
	src := &fakeSource{accounts: []string{"a"}, used: map[string]float64{}, now: time.Now}
	frames := make(chan Frame, 10)
	m := New(Config{
		Source:   src,
		Interval: time.Hour,
		Render:   func(f Frame) { frames <- f },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	<-frames
	start := time.Now()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Run took %v to observe cancellation", elapsed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestSeed(t *testing.T) {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	ten, sixteen := 10.0, 16.0
	tr := burnrate.NewTracker()
	Seed(tr, []history.SnapshotRecord{
		{Account: "a", CapturedAt: base, FiveHourUsed: &ten},
		{Account: "a", CapturedAt: base.Add(time.Minute), FiveHourUsed: &sixteen},
	})

	r, ok := tr.Rate("a")
	if !ok || r.Primary.Velocity != 6 {
		t.Errorf("seeded rate = %+v, %v", r, ok)
	}
}
