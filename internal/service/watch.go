package service

import (
	"context"

	"github.com/codex-usage/codex-usage/internal/cycle"
	"github.com/codex-usage/codex-usage/internal/monitor"
	"github.com/codex-usage/codex-usage/internal/quota"
)

// watchSource feeds the monitor. The monitor handles caching itself, so
// fetches here skip the cache but still land in the snapshot history.
type watchSource struct {
	s   *Service
	all bool
}

func (w *watchSource) Accounts(context.Context) ([]string, error) {
	reg, err := w.s.registry.Load()
	if err != nil {
		return nil, err
	}
	if w.all && reg.Len() > 0 {
		return reg.Names(), nil
	}
	if reg.Active != "" {
		return []string{reg.Active}, nil
	}
	return []string{DefaultAccount}, nil
}

func (w *watchSource) Fetch(ctx context.Context, account string) (*quota.Snapshot, error) {
	blob, err := w.s.credential(account)
	if err != nil {
		return nil, err
	}
	cred, err := quota.ParseCredential(blob)
	if err != nil {
		return nil, err
	}
	snap, err := w.s.fetcher.Fetch(ctx, account, cred)
	if err != nil {
		return nil, err
	}
	return snap.WithAccount(account), nil
}

// WatchSource returns the monitor's account source.
func (s *Service) WatchSource(all bool) monitor.Source {
	return &watchSource{s: s, all: all}
}

// WatchRecorder returns the snapshot history sink, or nil when unavailable.
func (s *Service) WatchRecorder() monitor.SnapshotRecorder {
	if s.db == nil {
		return nil
	}
	return s.db
}

// WatchCycler returns an engine that measures from the cache when it is
// fresh, which it is right after a monitor tick.
func (s *Service) WatchCycler() monitor.Cycler {
	return s.newEngine(cycle.MeasureFunc(func(ctx context.Context, account string) (*quota.Snapshot, error) {
		snap, _, err := s.cachedOrFetch(ctx, account)
		return snap, err
	}))
}
