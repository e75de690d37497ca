// internal/vault/vault.go
// Credential vault: per-account blobs, the live slot and the registry's live pointer
package vault

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/codex-usage/codex-usage/internal/apperr"
	"github.com/codex-usage/codex-usage/internal/logger"
	"github.com/codex-usage/codex-usage/internal/registry"
)

// RegistryStore persists the account registry. *registry.Store satisfies it.
type RegistryStore interface {
	Load() (*registry.Registry, error)
	Save(reg *registry.Registry) error
}

// Config wires a Vault to its collaborators.
type Config struct {
	Store    BlobStore
	Registry RegistryStore
	Probe    ProcessProbe

	// Now defaults to time.Now
	Now func() time.Time

	// Logger defaults to a no-op logger
	Logger *zap.Logger
}

// Vault owns stored credentials and performs the swap into the live slot.
type Vault struct {
	store    BlobStore
	registry RegistryStore
	probe    ProcessProbe
	now      func() time.Time
	log      *zap.Logger
}

// New creates a vault.
func New(cfg Config) *Vault {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	probe := cfg.Probe
	if probe == nil {
		probe = ProbeFunc(func() bool { return false })
	}
	return &Vault{
		store:    cfg.Store,
		registry: cfg.Registry,
		probe:    probe,
		now:      now,
		log:      logger.OrNop(cfg.Logger),
	}
}

// RunningConflictError is returned when Codex is running and the caller did not force.
func RunningConflictError() error {
	return apperr.New(apperr.KindRunningConflict,
		"",
		"Use --force to switch anyway (this may disrupt active sessions).",
		errors.New("codex appears to be running"))
}

// Add registers name with blob. It fails if blob is empty, or if the blob's
// fingerprint already belongs to a different account.
func (v *Vault) Add(name string, blob []byte) (*registry.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("account name must not be empty")
	}
	if len(blob) == 0 {
		return nil, apperr.New(apperr.KindCredentialMissing,
			"",
			"Please run 'codex login' first to authenticate with Codex.",
			errors.New("source credential is empty"))
	}

	reg, err := v.registry.Load()
	if err != nil {
		return nil, err
	}

	fp := Fingerprint(blob)
	if owner, ok := reg.FindByFingerprint(fp); ok && owner != name {
		return nil, registry.DuplicateError(owner)
	}

	previous, prevErr := v.store.Load(name)
	if err := v.store.Save(name, blob); err != nil {
		return nil, err
	}

	account, err := reg.Upsert(name, fp, v.now())
	if err == nil {
		err = v.registry.Save(reg)
	}
	if err != nil {
		v.restore(name, previous, prevErr)
		return nil, err
	}

	v.log.Info("account added", zap.String("account", name), zap.String("fingerprint", fp[:12]))
	return account, nil
}

// AddFromLive registers the credential currently in the live slot as name.
func (v *Vault) AddFromLive(name string) (*registry.Account, error) {
	blob, err := v.store.LoadLive()
	if err != nil {
		return nil, err
	}
	return v.Add(name, blob)
}

// restore undoes a blob write after a failed registry update.
func (v *Vault) restore(name string, previous []byte, prevErr error) {
	var err error
	if prevErr == nil {
		err = v.store.Save(name, previous)
	} else {
		err = v.store.Delete(name)
	}
	if err != nil {
		v.log.Warn("could not roll back credential write", zap.String("account", name), zap.Error(err))
	}
}

// Activate makes name the live account. If Codex appears to be running and
// allowIfRunning is false, nothing is touched and a RUNNING_CONFLICT error is
// returned. The registry is only updated once the new live content is
// confirmed on disk; if that update fails the previous live content is put back.
func (v *Vault) Activate(name string, allowIfRunning bool) error {
	if v.probe.IsRunning() {
		v.log.Warn("Codex appears to be running", zap.Bool("force", allowIfRunning))
		if !allowIfRunning {
			return RunningConflictError()
		}
	}

	reg, err := v.registry.Load()
	if err != nil {
		return err
	}
	account, ok := reg.Get(name)
	if !ok {
		return registry.NotFoundError(name)
	}

	previous, prevErr := v.store.LoadLive()

	fp, err := v.SwapCredential(name)
	if err != nil {
		return err
	}

	account.Fingerprint = fp
	err = reg.SetActive(name, v.now())
	if err == nil {
		err = v.registry.Save(reg)
	}
	if err != nil {
		v.restoreLive(previous, prevErr)
		return err
	}

	v.log.Info("switched live credential", zap.String("account", name))
	return nil
}

// restoreLive puts back the live content seen before a swap whose registry
// update failed.
func (v *Vault) restoreLive(previous []byte, prevErr error) {
	if prevErr != nil {
		v.log.Warn("no previous live credential to restore", zap.Error(prevErr))
		return
	}
	if err := v.store.SwapCredential(previous); err != nil {
		v.log.Warn("could not restore live credential", zap.Error(err))
	}
}

// SwapCredential copies name's blob into the live slot without touching the
// registry and returns the verified fingerprint of the new live content. The
// previous live content is backed up on a best-effort basis.
func (v *Vault) SwapCredential(name string) (string, error) {
	blob, err := v.store.Load(name)
	if err != nil {
		return "", err
	}

	if err := v.store.BackupLive(); err != nil {
		v.log.Warn("backup of live credential failed", zap.Error(err))
	}

	if err := v.store.SwapCredential(blob); err != nil {
		return "", err
	}

	want := Fingerprint(blob)
	live, err := v.store.LoadLive()
	if err != nil {
		return "", err
	}
	if got := Fingerprint(live); got != want {
		return "", apperr.New(apperr.KindConfigIO,
			"verify live credential",
			"Retry the switch; the live credential did not match the stored one.",
			fmt.Errorf("fingerprint mismatch after swap: got %s, want %s", got[:12], want[:12]))
	}
	return want, nil
}

// Remove deletes name's stored credential. If it was live the live pointer is
// cleared, but the live slot content is left alone.
func (v *Vault) Remove(name string) error {
	reg, err := v.registry.Load()
	if err != nil {
		return err
	}
	if !reg.Has(name) {
		if _, err := v.store.Load(name); err != nil {
			return registry.NotFoundError(name)
		}
	}

	if err := v.store.Delete(name); err != nil {
		return err
	}
	reg.Remove(name)
	if err := v.registry.Save(reg); err != nil {
		return err
	}

	v.log.Info("account removed", zap.String("account", name))
	return nil
}

// Credential returns name's stored blob.
func (v *Vault) Credential(name string) ([]byte, error) {
	return v.store.Load(name)
}

// LiveCredential returns the live slot's blob.
func (v *Vault) LiveCredential() ([]byte, error) {
	return v.store.LoadLive()
}

// LiveFingerprint returns the fingerprint of the live slot.
func (v *Vault) LiveFingerprint() (string, error) {
	blob, err := v.store.LoadLive()
	if err != nil {
		return "", err
	}
	return Fingerprint(blob), nil
}
