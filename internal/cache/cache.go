// internal/cache/cache.go
// File-backed per-account cache of usage snapshots
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"

	"github.com/codex-usage/codex-usage/internal/apperr"
	"github.com/codex-usage/codex-usage/internal/config"
	"github.com/codex-usage/codex-usage/internal/quota"
)

// DefaultTTL is how long a cached snapshot stays fresh.
const DefaultTTL = 300 * time.Second

// entry is the on-disk layout: a unix timestamp in fractional seconds plus
// the snapshot itself.
type entry struct {
	Timestamp float64         `json:"timestamp"`
	Data      *quota.Snapshot `json:"data"`
}

// Config configures a Cache.
type Config struct {
	Dir    string
	TTL    time.Duration
	Now    func() time.Time
	Logger *zap.Logger
}

// Cache stores one snapshot file per account under Dir.
type Cache struct {
	dir    string
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger
}

// New creates a cache.
func New(cfg Config) *Cache {
	c := &Cache{dir: cfg.Dir, ttl: cfg.TTL, now: cfg.Now, logger: cfg.Logger}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Path returns the cache file for account.
func (c *Cache) Path(account string) string {
	return filepath.Join(c.dir, fmt.Sprintf("usage_cache_%s.json", config.SanitizeName(account)))
}

// Get returns the cached snapshot for account if one exists and its age does
// not exceed the TTL. Unreadable or corrupt entries are misses.
func (c *Cache) Get(account string) (*quota.Snapshot, bool) {
	snap, age, ok := c.Peek(account)
	if !ok || age > c.ttl {
		return nil, false
	}
	return snap, true
}

// Peek returns the cached snapshot for account and its age, ignoring the TTL.
func (c *Cache) Peek(account string) (*quota.Snapshot, time.Duration, bool) {
	data, err := os.ReadFile(c.Path(account))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("cache read failed", zap.String("account", account), zap.Error(err))
		}
		return nil, 0, false
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil || e.Data == nil {
		c.logger.Debug("ignoring corrupt cache entry", zap.String("account", account), zap.Error(err))
		return nil, 0, false
	}

	stored := time.Unix(0, int64(e.Timestamp*float64(time.Second)))
	age := c.now().Sub(stored)
	if age < 0 {
		age = 0
	}
	return e.Data.WithAccount(account), age, true
}

// Put stores snap under its account name, stamped with the current time.
func (c *Cache) Put(snap *quota.Snapshot) error {
	now := c.now()
	e := entry{
		Timestamp: float64(now.UnixNano()) / float64(time.Second),
		Data:      snap,
	}
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	path := c.Path(snap.Account)
	if err := os.MkdirAll(c.dir, 0700); err != nil {
		return apperr.ConfigIO("create", c.dir, err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return apperr.ConfigIO("write", path, err)
	}
	return nil
}

// Invalidate removes the entry for account. A missing entry is not an error.
func (c *Cache) Invalidate(account string) error {
	path := c.Path(account)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperr.ConfigIO("remove", path, err)
	}
	return nil
}
