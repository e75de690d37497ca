package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/codex-usage/codex-usage/internal/quota"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS cycle_events (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id     TEXT NOT NULL UNIQUE,
    occurred_at  TEXT NOT NULL,
    from_account TEXT NOT NULL,
    to_account   TEXT NOT NULL,
    reason       TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS usage_snapshots (
    id                        INTEGER PRIMARY KEY,
    account_name              TEXT NOT NULL,
    timestamp                 INTEGER NOT NULL,
    five_hour_percent         REAL,
    weekly_percent            REAL,
    weekly_reset_timestamp    INTEGER,
    five_hour_reset_timestamp INTEGER,
    plan                      TEXT,
    status                    TEXT
);
CREATE INDEX IF NOT EXISTS idx_account_time ON usage_snapshots(account_name, timestamp);
`

// SnapshotRecord is one persisted usage measurement. Percentages are used
// percent; nil means the window was absent.
type SnapshotRecord struct {
	// Database ID (set after insert)
	ID int64 `json:"id"`

	Account    string    `json:"account_name"`
	CapturedAt time.Time `json:"timestamp"` // second precision

	FiveHourUsed   *float64   `json:"five_hour_percent,omitempty"`
	WeeklyUsed     *float64   `json:"weekly_percent,omitempty"`
	FiveHourResets *time.Time `json:"five_hour_reset,omitempty"`
	WeeklyResets   *time.Time `json:"weekly_reset,omitempty"`

	Plan   string `json:"plan,omitempty"`
	Status string `json:"status,omitempty"`
}

// Store provides SQLite-backed storage for switch events and usage snapshots.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the history database at dbPath and runs migrations.
func OpenStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	// WAL lets status readers run while watch is writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Append stores a switch record. Duplicate event ids are silently ignored.
func (s *Store) Append(ctx context.Context, r Record) error {
	if r.ID == "" {
		return fmt.Errorf("insert cycle event: record has no id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO cycle_events (event_id, occurred_at, from_account, to_account, reason)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Timestamp.UTC().Format(timeLayout), r.FromAccount, r.ToAccount, r.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert cycle event: %w", err)
	}
	return nil
}

// RecentCycles returns up to limit switch records, newest first.
func (s *Store) RecentCycles(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, occurred_at, from_account, to_account, reason
		FROM cycle_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycle events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var occurredAt string
		if err := rows.Scan(&r.ID, &occurredAt, &r.FromAccount, &r.ToAccount, &r.Reason); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if t, err := time.Parse(timeLayout, occurredAt); err == nil {
			r.Timestamp = t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// InsertSnapshot records one usage measurement.
func (s *Store) InsertSnapshot(ctx context.Context, snap *quota.Snapshot) error {
	var fiveHour, weekly sql.NullFloat64
	var fiveHourReset, weeklyReset sql.NullInt64
	if w := snap.Primary; w != nil {
		fiveHour = sql.NullFloat64{Float64: w.UsedPercent, Valid: true}
		if w.ResetsAt != nil {
			fiveHourReset = sql.NullInt64{Int64: w.ResetsAt.Unix(), Valid: true}
		}
	}
	if w := snap.Secondary; w != nil {
		weekly = sql.NullFloat64{Float64: w.UsedPercent, Valid: true}
		if w.ResetsAt != nil {
			weeklyReset = sql.NullInt64{Int64: w.ResetsAt.Unix(), Valid: true}
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_snapshots (
			account_name, timestamp,
			five_hour_percent, weekly_percent,
			weekly_reset_timestamp, five_hour_reset_timestamp,
			plan, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Account, snap.CapturedAt.Unix(),
		fiveHour, weekly,
		weeklyReset, fiveHourReset,
		nullString(snap.Plan), nullString(snap.Status),
	)
	if err != nil {
		return fmt.Errorf("insert usage snapshot: %w", err)
	}
	return nil
}

// Snapshots returns up to limit measurements for account in capture order,
// keeping the most recent ones. An empty account matches every account.
func (s *Store) Snapshots(ctx context.Context, account string, limit int) ([]SnapshotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, account_name, timestamp,
		       five_hour_percent, weekly_percent,
		       weekly_reset_timestamp, five_hour_reset_timestamp,
		       plan, status
		FROM (
			SELECT * FROM usage_snapshots
			WHERE ? = '' OR account_name = ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		)
		ORDER BY timestamp ASC, id ASC`, account, account, limit)
	if err != nil {
		return nil, fmt.Errorf("query usage snapshots: %w", err)
	}
	defer rows.Close()

	var records []SnapshotRecord
	for rows.Next() {
		var r SnapshotRecord
		var ts int64
		var fiveHour, weekly sql.NullFloat64
		var weeklyReset, fiveHourReset sql.NullInt64
		var plan, status sql.NullString
		if err := rows.Scan(
			&r.ID, &r.Account, &ts,
			&fiveHour, &weekly,
			&weeklyReset, &fiveHourReset,
			&plan, &status,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.CapturedAt = time.Unix(ts, 0).UTC()
		r.FiveHourUsed = nullableFloat(fiveHour)
		r.WeeklyUsed = nullableFloat(weekly)
		r.FiveHourResets = nullableTime(fiveHourReset)
		r.WeeklyResets = nullableTime(weeklyReset)
		r.Plan = plan.String
		r.Status = status.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// Accounts returns every account with recorded snapshots, sorted.
func (s *Store) Accounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT account_name FROM usage_snapshots ORDER BY account_name")
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// PruneSnapshots deletes measurements captured before cutoff and returns how
// many were removed.
func (s *Store) PruneSnapshots(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM usage_snapshots WHERE timestamp < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune usage snapshots: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
