package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Record is one completed switch between accounts.
type Record struct {
	// Unique event id; lines written by older versions have none
	ID string `json:"id,omitempty"`

	Timestamp   time.Time `json:"timestamp"`
	FromAccount string    `json:"from_account"`
	ToAccount   string    `json:"to_account"`
	Reason      string    `json:"reason"`
}

// NewRecord creates a record with a fresh id.
func NewRecord(from, to, reason string, now time.Time) Record {
	return Record{
		ID:          uuid.NewString(),
		Timestamp:   now.UTC(),
		FromAccount: from,
		ToAccount:   to,
		Reason:      reason,
	}
}

// Sink is an append-only destination for switch records.
type Sink interface {
	Append(ctx context.Context, r Record) error
}

// Tee appends every record to each sink in order. All sinks are attempted;
// their failures are joined.
type Tee []Sink

// Append implements Sink.
func (t Tee) Append(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
