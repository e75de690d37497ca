// internal/config/paths.go
// Filesystem layout for accounts, cache, cycle state and the Codex live slot
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"unicode"
)

// Paths locates every file this tool reads or writes.
type Paths struct {
	// ConfigDir holds the registry, cycle state, caches and account blobs (~/.codex-usage)
	ConfigDir string

	// CodexDir is the monitored service's home (~/.codex or $CODEX_HOME)
	CodexDir string
}

// DefaultConfigDir returns ~/.codex-usage
func DefaultConfigDir() string {
	return filepath.Join(getUserHomeDir(), ".codex-usage")
}

// DefaultCodexDir returns $CODEX_HOME, falling back to ~/.codex
func DefaultCodexDir() string {
	if dir := os.Getenv("CODEX_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(getUserHomeDir(), ".codex")
}

// NewPaths returns the layout rooted at configDir. Empty arguments select the defaults.
func NewPaths(configDir, codexDir string) Paths {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if codexDir == "" {
		codexDir = DefaultCodexDir()
	}
	return Paths{ConfigDir: configDir, CodexDir: codexDir}
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func (p Paths) EnsureConfigDir() error {
	return os.MkdirAll(p.ConfigDir, 0700)
}

// LiveAuthPath is the single credential file Codex reads.
func (p Paths) LiveAuthPath() string {
	return filepath.Join(p.CodexDir, "auth.json")
}

// LiveBackupPath holds the previous live credential after a swap.
func (p Paths) LiveBackupPath() string {
	return p.LiveAuthPath() + ".backup"
}

// CodexLockPath is the lock file Codex holds while running.
func (p Paths) CodexLockPath() string {
	return filepath.Join(p.CodexDir, ".codex.lock")
}

// AccountsDir holds one private directory per account.
func (p Paths) AccountsDir() string {
	return filepath.Join(p.ConfigDir, "accounts")
}

// AccountAuthPath returns the private credential path for an account.
// The sanitized name must not escape AccountsDir.
func (p Paths) AccountAuthPath(name string) (string, error) {
	sanitized := SanitizeName(name)
	if sanitized == "" {
		return "", fmt.Errorf("invalid account name %q", name)
	}
	dir, err := ValidatePathWithinDir(p.AccountsDir(), sanitized)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "auth.json"), nil
}

// RegistryPath is the account registry (config.json).
func (p Paths) RegistryPath() string {
	return filepath.Join(p.ConfigDir, "config.json")
}

// CyclePath is the cycle configuration.
func (p Paths) CyclePath() string {
	return filepath.Join(p.ConfigDir, "cycle.json")
}

// CycleHistoryPath is the append-only cycle log.
func (p Paths) CycleHistoryPath() string {
	return filepath.Join(p.ConfigDir, "cycle_history.jsonl")
}

// HistoryDBPath is the SQLite usage history database.
func (p Paths) HistoryDBPath() string {
	return filepath.Join(p.ConfigDir, "history.db")
}

// CacheDir holds the per-account usage cache entries.
func (p Paths) CacheDir() string {
	return p.ConfigDir
}

// SettingsPath is the optional YAML settings file.
func (p Paths) SettingsPath() string {
	return filepath.Join(p.ConfigDir, "settings.yaml")
}

// LogDir holds debug session logs.
func (p Paths) LogDir() string {
	return filepath.Join(p.ConfigDir, "logs")
}

// SanitizeName maps an account name to a filesystem-safe token.
func SanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
}

// ValidatePathWithinDir joins relativePath onto baseDir and rejects results that
// escape baseDir.
func ValidatePathWithinDir(baseDir, relativePath string) (string, error) {
	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}

	absTargetPath, err := filepath.Abs(filepath.Join(absBaseDir, relativePath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve target path: %w", err)
	}

	// Trailing separator so /home/user does not match /home/username
	baseDirWithSep := absBaseDir + string(filepath.Separator)
	if !strings.HasPrefix(absTargetPath+string(filepath.Separator), baseDirWithSep) && absTargetPath != absBaseDir {
		return "", fmt.Errorf("path traversal detected: %q escapes base directory %q", relativePath, baseDir)
	}

	return absTargetPath, nil
}

// getUserHomeDir returns the user's home directory
func getUserHomeDir() string {
	if runtime.GOOS == "windows" {
		baseDir := os.Getenv("USERPROFILE")
		if baseDir == "" {
			baseDir = os.Getenv("HOME")
		}
		return baseDir
	}

	baseDir, err := os.UserHomeDir()
	if err != nil {
		baseDir = os.Getenv("HOME")
	}
	return baseDir
}
