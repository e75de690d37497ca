package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/codex-usage/codex-usage/internal/apperr"
	"github.com/codex-usage/codex-usage/internal/quota"
)

// credential returns the blob to measure account with. DefaultAccount, when
// not registered, is the live slot.
func (s *Service) credential(account string) ([]byte, error) {
	reg, err := s.registry.Load()
	if err != nil {
		return nil, err
	}
	if account == DefaultAccount && !reg.Has(DefaultAccount) {
		blob, err := s.vault.LiveCredential()
		if err != nil {
			return nil, apperr.New(apperr.KindNoActiveAccount, "status",
				"Run 'codex login' or use 'codex-usage accounts add' first.", err)
		}
		return blob, nil
	}
	return s.vault.Credential(account)
}

// Fetch measures account from the remote endpoint and stores the result in
// the cache and the snapshot history.
func (s *Service) Fetch(ctx context.Context, account string) (*quota.Snapshot, error) {
	blob, err := s.credential(account)
	if err != nil {
		return nil, err
	}
	cred, err := quota.ParseCredential(blob)
	if err != nil {
		return nil, err
	}

	snap, err := s.fetcher.Fetch(ctx, account, cred)
	if err != nil {
		return nil, err
	}
	snap = snap.WithAccount(account)

	if err := s.cache.Put(snap); err != nil {
		s.logger.Warn("cache write failed", zap.String("account", account), zap.Error(err))
	}
	if s.db != nil {
		if err := s.db.InsertSnapshot(ctx, snap); err != nil {
			s.logger.Warn("recording snapshot failed", zap.String("account", account), zap.Error(err))
		}
	}
	return snap, nil
}

// cachedOrFetch returns a fresh cache entry when one exists, else fetches.
func (s *Service) cachedOrFetch(ctx context.Context, account string) (*quota.Snapshot, bool, error) {
	if snap, ok := s.cache.Get(account); ok {
		return snap, true, nil
	}
	snap, err := s.Fetch(ctx, account)
	return snap, false, err
}

// StatusRequest selects what Status measures.
type StatusRequest struct {
	// Accounts to measure; empty means the live account
	Accounts []string

	// All measures every registered account
	All bool

	// Refresh bypasses the cache
	Refresh bool
}

// StatusEntry is the outcome for one account.
type StatusEntry struct {
	Account  string
	Snapshot *quota.Snapshot
	Cached   bool
	Active   bool
	Err      error
}

// Status measures the requested accounts. With a single account any failure
// is returned directly; with several, failures are reported per entry.
func (s *Service) Status(ctx context.Context, req StatusRequest) ([]StatusEntry, error) {
	reg, err := s.registry.Load()
	if err != nil {
		return nil, err
	}

	accounts := req.Accounts
	switch {
	case req.All:
		accounts = reg.Names()
	case len(accounts) == 0 && reg.Active != "":
		accounts = []string{reg.Active}
	}
	if len(accounts) == 0 {
		accounts = []string{DefaultAccount}
	}

	entries := make([]StatusEntry, 0, len(accounts))
	for _, account := range accounts {
		entry := StatusEntry{Account: account, Active: account == reg.Active}
		if req.Refresh {
			entry.Snapshot, entry.Err = s.Fetch(ctx, account)
		} else {
			entry.Snapshot, entry.Cached, entry.Err = s.cachedOrFetch(ctx, account)
		}
		if entry.Err != nil {
			if len(accounts) == 1 {
				return nil, entry.Err
			}
			s.logger.Warn("usage fetch failed", zap.String("account", account), zap.Error(entry.Err))
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
