// internal/apperr/errors.go
// Error taxonomy shared by the vault, registry, quota client and cycle engine
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide how to react to it.
type Kind string

const (
	KindConfigIO            Kind = "CONFIG_IO"
	KindCredentialMissing   Kind = "CREDENTIAL_MISSING"
	KindDuplicateCredential Kind = "DUPLICATE_CREDENTIAL"
	KindRunningConflict     Kind = "RUNNING_CONFLICT"
	KindNetwork             Kind = "NETWORK"
	KindNoActiveAccount     Kind = "NO_ACTIVE_ACCOUNT"
)

// Persisted state errors
var (
	// ErrConfigIO indicates persisted state could not be read, parsed or written
	ErrConfigIO = errors.New("persisted state read/write failed")
)

// Credential errors
var (
	// ErrCredentialMissing indicates a source or target credential blob is absent
	ErrCredentialMissing = errors.New("credential not found")

	// ErrDuplicateCredential indicates the credential already belongs to another account
	ErrDuplicateCredential = errors.New("credential already registered")
)

// Switching errors
var (
	// ErrRunningConflict indicates Codex appears to be running and no force flag was given
	ErrRunningConflict = errors.New("codex appears to be running")

	// ErrNoActiveAccount indicates there is no live account to measure
	ErrNoActiveAccount = errors.New("no active account")
)

// Transport errors
var (
	// ErrNetwork indicates the usage request failed, timed out or returned non-success
	ErrNetwork = errors.New("usage request failed")
)

var sentinels = map[Kind]error{
	KindConfigIO:            ErrConfigIO,
	KindCredentialMissing:   ErrCredentialMissing,
	KindDuplicateCredential: ErrDuplicateCredential,
	KindRunningConflict:     ErrRunningConflict,
	KindNetwork:             ErrNetwork,
	KindNoActiveAccount:     ErrNoActiveAccount,
}

// Error is a fatal failure with a remediation hint for the user.
type Error struct {
	Kind Kind
	Op   string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	cause := e.Err
	if cause == nil {
		cause = sentinels[e.Kind]
	}
	switch {
	case cause == nil:
		return e.Op
	case e.Op == "":
		return cause.Error()
	}
	return e.Op + ": " + cause.Error()
}

// Unwrap exposes both the kind's sentinel and the underlying cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	errs := []error{}
	if s, ok := sentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// New builds an Error of the given kind.
func New(kind Kind, op, hint string, err error) *Error {
	return &Error{Kind: kind, Op: op, Hint: hint, Err: err}
}

// ConfigIO wraps a persisted-state failure for the file at path.
func ConfigIO(op, path string, err error) *Error {
	return &Error{
		Kind: KindConfigIO,
		Op:   fmt.Sprintf("%s %s", op, path),
		Hint: fmt.Sprintf("Check permissions on %s, or move it aside if it is corrupt.", path),
		Err:  err,
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// HintOf returns the remediation hint attached to err, if any.
func HintOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Hint
	}
	return ""
}
