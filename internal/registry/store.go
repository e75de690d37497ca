// internal/registry/store.go
package registry

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/codex-usage/codex-usage/internal/apperr"
)

// Store persists a Registry as a single JSON document. Writes replace the whole
// file atomically; concurrent writers are not merged and the last one wins.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string {
	return s.path
}

// Load reads the registry. A missing file is an empty registry.
func (s *Store) Load() (*Registry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, apperr.ConfigIO("read", s.path, err)
	}

	r := New()
	if err := json.Unmarshal(data, r); err != nil {
		return nil, apperr.ConfigIO("parse", s.path, err)
	}
	if r.Accounts == nil {
		r.Accounts = map[string]*Account{}
	}
	for name, a := range r.Accounts {
		if a == nil {
			delete(r.Accounts, name)
			continue
		}
		a.Name = name
	}
	if r.Active != "" && !r.Has(r.Active) {
		r.Active = ""
	}
	return r, nil
}

// Save writes the registry.
func (s *Store) Save(r *Registry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return apperr.ConfigIO("write", s.path, err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return apperr.ConfigIO("encode", s.path, err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return apperr.ConfigIO("write", s.path, err)
	}
	return nil
}
