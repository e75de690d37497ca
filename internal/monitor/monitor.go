// internal/monitor/monitor.go
// Live usage monitoring loop
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/codex-usage/codex-usage/internal/burnrate"
	"github.com/codex-usage/codex-usage/internal/cache"
	"github.com/codex-usage/codex-usage/internal/cycle"
	"github.com/codex-usage/codex-usage/internal/metrics"
	"github.com/codex-usage/codex-usage/internal/quota"
)

// SleepSlice bounds how long the loop sleeps before rechecking cancellation.
const SleepSlice = 250 * time.Millisecond

// Source supplies the accounts to watch and fetches their usage.
type Source interface {
	Accounts(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, account string) (*quota.Snapshot, error)
}

// SnapshotRecorder persists measurements.
type SnapshotRecorder interface {
	InsertSnapshot(ctx context.Context, snap *quota.Snapshot) error
}

// Cycler runs one rotation pass.
type Cycler interface {
	RunOnce(ctx context.Context, account string, force bool) (*cycle.Result, error)
}

// Entry source values.
const (
	SourceLive   = "live"
	SourceCached = "cached"
)

// Entry is one account's row in a frame.
type Entry struct {
	Account  string
	Snapshot *quota.Snapshot
	Source   string
	Age      time.Duration // age of a cached snapshot
	Rate     burnrate.Rate
	HasRate  bool
	Err      error
}

// Frame is everything rendered for one tick.
type Frame struct {
	Tick     int
	At       time.Time
	Interval time.Duration
	Entries  []Entry
	Cycle    *cycle.Result
	CycleErr error
	Err      error // listing accounts failed
}

// Config holds configuration for the monitor.
type Config struct {
	// Source lists accounts and fetches usage
	Source Source

	// Cache stores fresh snapshots and substitutes when the limiter denies a fetch
	Cache *cache.Cache

	// Limiter gates fetches per account (optional)
	Limiter *quota.Limiter

	// Tracker accumulates burn-rate samples (default: new tracker)
	Tracker *burnrate.Tracker

	// Metrics is updated every tick (optional)
	Metrics *metrics.Metrics

	// Recorder persists snapshots (optional)
	Recorder SnapshotRecorder

	// Cycler runs a rotation pass after each fetch round (optional)
	Cycler Cycler

	// Render draws a frame
	Render func(Frame)

	// Interval between ticks (default: 30s)
	Interval time.Duration

	Now    func() time.Time
	Logger *zap.Logger
}

// Monitor runs a single cooperative fetch-and-render loop.
type Monitor struct {
	source   Source
	cache    *cache.Cache
	limiter  *quota.Limiter
	tracker  *burnrate.Tracker
	metrics  *metrics.Metrics
	recorder SnapshotRecorder
	cycler   Cycler
	render   func(Frame)
	interval time.Duration
	now      func() time.Time
	sleep    func(time.Duration)
	logger   *zap.Logger
	tick     int
}

// New creates a monitor.
func New(cfg Config) *Monitor {
	m := &Monitor{
		source:   cfg.Source,
		cache:    cfg.Cache,
		limiter:  cfg.Limiter,
		tracker:  cfg.Tracker,
		metrics:  cfg.Metrics,
		recorder: cfg.Recorder,
		cycler:   cfg.Cycler,
		render:   cfg.Render,
		interval: cfg.Interval,
		now:      cfg.Now,
		sleep:    time.Sleep,
		logger:   cfg.Logger,
	}
	if m.interval <= 0 {
		m.interval = 30 * time.Second
	}
	if m.tracker == nil {
		m.tracker = burnrate.NewTracker()
	}
	if m.render == nil {
		m.render = func(Frame) {}
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Run ticks until ctx is cancelled. Cancellation is observed between sleep
// slices; a tick already in progress finishes first.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.render(m.Tick(ctx))
		if !m.wait(ctx, m.interval) {
			return ctx.Err()
		}
	}
}

// Tick performs one fetch pass and returns the frame. Exported for testing.
func (m *Monitor) Tick(ctx context.Context) Frame {
	m.tick++
	work := context.WithoutCancel(ctx)

	frame := Frame{Tick: m.tick, At: m.now(), Interval: m.interval}

	accounts, err := m.source.Accounts(work)
	if err != nil {
		m.logger.Warn("listing accounts failed", zap.Error(err))
		frame.Err = err
		return frame
	}

	for _, account := range accounts {
		frame.Entries = append(frame.Entries, m.measure(work, account))
	}

	if m.cycler != nil {
		res, err := m.cycler.RunOnce(work, "", false)
		frame.Cycle, frame.CycleErr = res, err
		switch {
		case res != nil:
			m.metrics.CycleOutcome(res.State.String())
		case err != nil:
			m.metrics.CycleOutcome("error")
		}
		if err != nil {
			m.logger.Warn("cycle failed", zap.Error(err))
		}
	}

	return frame
}

func (m *Monitor) measure(ctx context.Context, account string) Entry {
	entry := Entry{Account: account}

	if !m.limiter.Allow(account) {
		m.metrics.FetchResult(account, metrics.ResultLimited)
		if m.cache != nil {
			if snap, age, ok := m.cache.Peek(account); ok {
				entry.Snapshot, entry.Source, entry.Age = snap, SourceCached, age
				m.metrics.FetchResult(account, metrics.ResultCached)
			}
		}
		m.attachRate(&entry)
		return entry
	}

	snap, err := m.source.Fetch(ctx, account)
	if err != nil {
		m.logger.Warn("usage fetch failed", zap.String("account", account), zap.Error(err))
		m.metrics.FetchResult(account, metrics.ResultError)
		entry.Err = err
		m.attachRate(&entry)
		return entry
	}

	m.metrics.FetchResult(account, metrics.ResultOK)
	m.metrics.ObserveSnapshot(snap)
	entry.Snapshot, entry.Source = snap, SourceLive

	sample := burnrate.SampleFromSnapshot(snap)
	m.tracker.Record(account, sample)
	m.attachRate(&entry)
	if entry.HasRate {
		m.metrics.ObserveRate(account, entry.Rate, sample)
	}

	if m.cache != nil {
		if err := m.cache.Put(snap); err != nil {
			m.logger.Warn("cache write failed", zap.String("account", account), zap.Error(err))
		}
	}
	if m.recorder != nil {
		if err := m.recorder.InsertSnapshot(ctx, snap); err != nil {
			m.logger.Warn("recording snapshot failed", zap.String("account", account), zap.Error(err))
		}
	}
	return entry
}

func (m *Monitor) attachRate(e *Entry) {
	e.Rate, e.HasRate = m.tracker.Rate(e.Account)
}

// wait sleeps for d in slices of at most SleepSlice and reports false as soon
// as ctx is cancelled.
func (m *Monitor) wait(ctx context.Context, d time.Duration) bool {
	for d > 0 {
		if ctx.Err() != nil {
			return false
		}
		step := min(d, SleepSlice)
		m.sleep(step)
		d -= step
	}
	return ctx.Err() == nil
}
