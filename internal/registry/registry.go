// internal/registry/registry.go
// Persisted directory of known accounts and the live pointer
package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/codex-usage/codex-usage/internal/apperr"
)

// Account is one registered credential set.
type Account struct {
	Name        string     `json:"-"`
	AddedAt     time.Time  `json:"added_at"`
	LastUsed    *time.Time `json:"last_used,omitempty"`
	Fingerprint string     `json:"auth_hash,omitempty"`
}

// Registry maps account names to accounts and records which one is live.
type Registry struct {
	Active   string              `json:"active_account,omitempty"`
	Accounts map[string]*Account `json:"accounts"`
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{Accounts: map[string]*Account{}}
}

// Get returns the named account.
func (r *Registry) Get(name string) (*Account, bool) {
	a, ok := r.Accounts[name]
	return a, ok
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Accounts[name]
	return ok
}

// Names returns all account names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Accounts))
	for name := range r.Accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered accounts.
func (r *Registry) Len() int {
	return len(r.Accounts)
}

// FindByFingerprint returns the account owning fingerprint.
func (r *Registry) FindByFingerprint(fingerprint string) (string, bool) {
	if fingerprint == "" {
		return "", false
	}
	for _, name := range r.Names() {
		if r.Accounts[name].Fingerprint == fingerprint {
			return name, true
		}
	}
	return "", false
}

// Upsert registers name with fingerprint, or refreshes the fingerprint of an
// existing account. A fingerprint owned by a different account is rejected.
func (r *Registry) Upsert(name, fingerprint string, now time.Time) (*Account, error) {
	if owner, ok := r.FindByFingerprint(fingerprint); ok && owner != name {
		return nil, DuplicateError(owner)
	}

	if a, ok := r.Accounts[name]; ok {
		a.Fingerprint = fingerprint
		return a, nil
	}

	a := &Account{Name: name, AddedAt: now.UTC(), Fingerprint: fingerprint}
	r.Accounts[name] = a
	return a, nil
}

// Remove deletes name, clearing the live pointer if it pointed there.
// Returns true if the account existed.
func (r *Registry) Remove(name string) bool {
	if _, ok := r.Accounts[name]; !ok {
		return false
	}
	delete(r.Accounts, name)
	if r.Active == name {
		r.Active = ""
	}
	return true
}

// SetActive moves the live pointer to name and stamps its last use.
func (r *Registry) SetActive(name string, now time.Time) error {
	a, ok := r.Accounts[name]
	if !ok {
		return NotFoundError(name)
	}
	t := now.UTC()
	a.LastUsed = &t
	r.Active = name
	return nil
}

// ActiveAccount returns the live account, if any.
func (r *Registry) ActiveAccount() (*Account, bool) {
	if r.Active == "" {
		return nil, false
	}
	return r.Get(r.Active)
}

// DuplicateError reports that a credential already belongs to owner.
func DuplicateError(owner string) error {
	return apperr.New(apperr.KindDuplicateCredential,
		"",
		fmt.Sprintf("Use 'codex-usage accounts switch %s' to switch to it.", owner),
		fmt.Errorf("this account has already been added as '%s'", owner))
}

// NotFoundError reports an unknown account.
func NotFoundError(name string) error {
	return apperr.New(apperr.KindCredentialMissing,
		"",
		"Run 'codex-usage accounts list' to see available accounts.",
		fmt.Errorf("account '%s' not found", name))
}
