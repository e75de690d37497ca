// internal/vault/fsstore.go
// Filesystem blob store with backup and atomic replacement of the live slot
package vault

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/codex-usage/codex-usage/internal/apperr"
	"github.com/codex-usage/codex-usage/internal/config"
)

// FSStore keeps account blobs under the config directory and swaps the Codex
// auth.json in place.
type FSStore struct {
	paths config.Paths

	// writeFile writes r to path via temp file, fsync and rename
	writeFile func(path string, r io.Reader) error
}

// NewFSStore creates a store for the given layout.
func NewFSStore(paths config.Paths) *FSStore {
	return &FSStore{
		paths:     paths,
		writeFile: atomic.WriteFile,
	}
}

// Load returns the stored blob for account.
func (s *FSStore) Load(account string) ([]byte, error) {
	path, err := s.paths.AccountAuthPath(account)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.KindCredentialMissing,
				"",
				"Run 'codex-usage accounts list' to see available accounts.",
				fmt.Errorf("no stored credential for account '%s'", account))
		}
		return nil, apperr.ConfigIO("read", path, err)
	}
	return data, nil
}

// Save stores blob with owner-only permissions.
func (s *FSStore) Save(account string, blob []byte) error {
	path, err := s.paths.AccountAuthPath(account)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return apperr.ConfigIO("create", filepath.Dir(path), err)
	}
	if err := s.writeFile(path, bytes.NewReader(blob)); err != nil {
		return apperr.ConfigIO("write", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return apperr.ConfigIO("chmod", path, err)
	}
	return nil
}

// Delete removes the account's private directory.
func (s *FSStore) Delete(account string) error {
	path, err := s.paths.AccountAuthPath(account)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return apperr.ConfigIO("remove", dir, err)
	}
	return nil
}

// LoadLive returns the content of the Codex auth.json.
func (s *FSStore) LoadLive() ([]byte, error) {
	path := s.paths.LiveAuthPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.KindCredentialMissing,
				"",
				"Please run 'codex login' first to authenticate with Codex.",
				fmt.Errorf("no Codex auth found at %s", path))
		}
		return nil, apperr.ConfigIO("read", path, err)
	}
	return data, nil
}

// SwapCredential atomically replaces the live slot.
func (s *FSStore) SwapCredential(blob []byte) error {
	path := s.paths.LiveAuthPath()

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return apperr.ConfigIO("create", filepath.Dir(path), err)
	}
	if err := s.writeFile(path, bytes.NewReader(blob)); err != nil {
		return apperr.ConfigIO("replace", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		return apperr.ConfigIO("chmod", path, err)
	}
	return nil
}

// BackupLive copies auth.json to auth.json.backup.
func (s *FSStore) BackupLive() error {
	src := s.paths.LiveAuthPath()
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}
	return copyFile(src, s.paths.LiveBackupPath())
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}

	return dstFile.Sync()
}
