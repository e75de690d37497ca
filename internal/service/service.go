// internal/service/service.go
// Wires the vault, quota client, cache, cycle engine and history sinks together
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/codex-usage/codex-usage/internal/apperr"
	"github.com/codex-usage/codex-usage/internal/cache"
	"github.com/codex-usage/codex-usage/internal/config"
	"github.com/codex-usage/codex-usage/internal/cycle"
	"github.com/codex-usage/codex-usage/internal/history"
	"github.com/codex-usage/codex-usage/internal/logger"
	"github.com/codex-usage/codex-usage/internal/quota"
	"github.com/codex-usage/codex-usage/internal/registry"
	"github.com/codex-usage/codex-usage/internal/vault"
)

// DefaultAccount labels the live slot when no registered account is live.
const DefaultAccount = "default"

// Config holds the service's inputs. Only Paths is required.
type Config struct {
	Paths    config.Paths
	Settings *config.Settings

	// Overrides for tests
	Fetcher quota.Fetcher
	Store   vault.BlobStore
	Probe   vault.ProcessProbe

	// DisableHistoryDB skips opening history.db
	DisableHistoryDB bool

	Now    func() time.Time
	Logger *zap.Logger
}

// Service is the entry point for every CLI operation.
type Service struct {
	paths    config.Paths
	settings *config.Settings
	registry *registry.Store
	vault    *vault.Vault
	fetcher  quota.Fetcher
	cache    *cache.Cache
	journal  *history.JSONLSink
	db       *history.Store
	engine   *cycle.Engine
	now      func() time.Time
	logger   *zap.Logger
}

// New builds a service rooted at cfg.Paths. A history database that cannot
// be opened is logged and skipped.
func New(cfg Config) (*Service, error) {
	log := logger.OrNop(cfg.Logger)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	settings := cfg.Settings
	if settings == nil {
		settings = config.DefaultSettings()
	}

	if err := cfg.Paths.EnsureConfigDir(); err != nil {
		return nil, apperr.ConfigIO("create", cfg.Paths.ConfigDir, err)
	}

	store := cfg.Store
	if store == nil {
		store = vault.NewFSStore(cfg.Paths)
	}
	probe := cfg.Probe
	if probe == nil {
		probe = vault.NewProcessDetector(settings.ProcessPattern, cfg.Paths.CodexLockPath())
	}
	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = quota.NewClient(quota.ClientConfig{
			URL:       settings.UsageURL,
			UserAgent: settings.UserAgent,
			Now:       now,
			Logger:    log,
		})
	}

	s := &Service{
		paths:    cfg.Paths,
		settings: settings,
		registry: registry.NewStore(cfg.Paths.RegistryPath()),
		fetcher:  fetcher,
		cache:    cache.New(cache.Config{Dir: cfg.Paths.CacheDir(), Now: now, Logger: log}),
		journal:  history.NewJSONLSink(cfg.Paths.CycleHistoryPath()),
		now:      now,
		logger:   log,
	}
	s.vault = vault.New(vault.Config{
		Store:    store,
		Registry: s.registry,
		Probe:    probe,
		Now:      now,
		Logger:   log,
	})

	if !cfg.DisableHistoryDB {
		db, err := history.OpenStore(cfg.Paths.HistoryDBPath())
		if err != nil {
			log.Warn("history database unavailable", zap.String("path", cfg.Paths.HistoryDBPath()), zap.Error(err))
		} else {
			s.db = db
		}
	}

	s.engine = s.newEngine(cycle.MeasureFunc(s.Fetch))
	return s, nil
}

func (s *Service) newEngine(m cycle.Measurer) *cycle.Engine {
	sinks := history.Tee{s.journal}
	if s.db != nil {
		sinks = append(sinks, s.db)
	}
	return cycle.NewEngine(cycle.EngineConfig{
		Store:    cycle.NewStore(s.paths.CyclePath()),
		Registry: s.registry,
		Vault:    s.vault,
		Measurer: m,
		History:  sinks,
		Now:      s.now,
		Logger:   s.logger,
	})
}

// Close releases the history database.
func (s *Service) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Paths returns the resolved file locations.
func (s *Service) Paths() config.Paths {
	return s.paths
}

// Engine exposes cycle configuration operations.
func (s *Service) Engine() *cycle.Engine {
	return s.engine
}

// Cache returns the usage cache.
func (s *Service) Cache() *cache.Cache {
	return s.cache
}

// AccountInfo is one row of the account list.
type AccountInfo struct {
	Name        string
	AddedAt     time.Time
	LastUsed    *time.Time
	Fingerprint string
	Active      bool
}

// Accounts lists registered accounts sorted by name.
func (s *Service) Accounts() ([]AccountInfo, error) {
	reg, err := s.registry.Load()
	if err != nil {
		return nil, err
	}
	out := make([]AccountInfo, 0, reg.Len())
	for _, name := range reg.Names() {
		a, _ := reg.Get(name)
		out = append(out, AccountInfo{
			Name:        name,
			AddedAt:     a.AddedAt,
			LastUsed:    a.LastUsed,
			Fingerprint: a.Fingerprint,
			Active:      reg.Active == name,
		})
	}
	return out, nil
}

// ActiveAccount returns the live account name, or "" when none is set.
func (s *Service) ActiveAccount() (string, error) {
	reg, err := s.registry.Load()
	if err != nil {
		return "", err
	}
	return reg.Active, nil
}

// Add registers the credential currently in the live slot under name.
func (s *Service) Add(name string) (*registry.Account, error) {
	acct, err := s.vault.AddFromLive(name)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Invalidate(name); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("account", name), zap.Error(err))
	}
	return acct, nil
}

// AccountAuthPath returns where name's credential is stored.
func (s *Service) AccountAuthPath(name string) (string, error) {
	return s.paths.AccountAuthPath(name)
}

// Switch makes name the live account.
func (s *Service) Switch(name string, force bool) error {
	return s.vault.Activate(name, force)
}

// Remove deletes name's credential, cached usage and rotation entry.
func (s *Service) Remove(name string) error {
	if err := s.vault.Remove(name); err != nil {
		return err
	}
	if err := s.cache.Invalidate(name); err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("account", name), zap.Error(err))
	}
	if _, err := s.engine.Forget(name); err != nil {
		return fmt.Errorf("remove '%s' from rotation: %w", name, err)
	}
	return nil
}

// RunOnce performs one cycle pass with a fresh measurement.
func (s *Service) RunOnce(ctx context.Context, account string, force bool) (*cycle.Result, error) {
	return s.engine.RunOnce(ctx, account, force)
}

// CycleHistory returns up to n switch records, newest first.
func (s *Service) CycleHistory(n int) ([]history.Record, error) {
	return s.journal.Recent(n)
}

// SnapshotHistory returns up to limit persisted measurements, oldest first.
func (s *Service) SnapshotHistory(ctx context.Context, account string, limit int) ([]history.SnapshotRecord, error) {
	if s.db == nil {
		return nil, apperr.New(apperr.KindConfigIO, "open "+s.paths.HistoryDBPath(),
			"Run with --debug to see why the history database could not be opened.",
			fmt.Errorf("history database unavailable"))
	}
	return s.db.Snapshots(ctx, account, limit)
}

// HistoryAccounts lists accounts with persisted measurements.
func (s *Service) HistoryAccounts(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, nil
	}
	return s.db.Accounts(ctx)
}

// PruneHistory drops persisted measurements older than cutoff.
func (s *Service) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, nil
	}
	return s.db.PruneSnapshots(ctx, cutoff)
}
