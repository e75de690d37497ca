// internal/vault/store.go
package vault

import (
	"crypto/sha256"
	"encoding/hex"
)

// BlobStore holds per-account credential blobs and the single live slot the
// monitored service reads.
type BlobStore interface {
	// Load returns the stored blob for account
	Load(account string) ([]byte, error)

	// Save stores blob privately for account
	Save(account string, blob []byte) error

	// Delete removes all private storage for account
	Delete(account string) error

	// LoadLive returns the current content of the live slot
	LoadLive() ([]byte, error)

	// SwapCredential replaces the live slot with blob. Readers observe either the
	// previous content or blob, never a partial write.
	SwapCredential(blob []byte) error

	// BackupLive copies the live slot aside. A missing live slot is not an error.
	BackupLive() error
}

// Fingerprint returns the hex SHA-256 of a credential blob.
func Fingerprint(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}
