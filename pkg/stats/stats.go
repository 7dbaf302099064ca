// Package stats keeps run history in a local SQLite database: one row per
// run plus one row per account processed in that run. The CLI reads it back
// for the stats subcommand.
package stats

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"igmonitor/pkg/errors"
	"igmonitor/pkg/models"
)

// Store is a SQLite-backed run history store
type Store struct {
	db *sql.DB
}

// RunRecord is one recorded run
type RunRecord struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	DryRun     bool
	Accounts   int
	Processed  int
	Flagged    int
	Failed     int
}

// AccountRecord is one account's outcome within a run
type AccountRecord struct {
	RunID     int64
	Username  string
	Status    string
	Fetched   int
	New       int
	Processed int
	Flagged   int
	ItemErrs  int
}

// Open opens or creates the stats database at dbPath
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrorTypePersistence, err, "failed to create stats directory")
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypePersistence, err, "failed to open stats database")
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		dry_run     INTEGER NOT NULL DEFAULT 0,
		accounts    INTEGER NOT NULL,
		processed   INTEGER NOT NULL,
		flagged     INTEGER NOT NULL,
		failed      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);

	CREATE TABLE IF NOT EXISTS account_runs (
		run_id    INTEGER NOT NULL REFERENCES runs(id),
		username  TEXT NOT NULL,
		status    TEXT NOT NULL,
		fetched   INTEGER NOT NULL,
		new_items INTEGER NOT NULL,
		processed INTEGER NOT NULL,
		flagged   INTEGER NOT NULL,
		item_errs INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_account_runs_run ON account_runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_account_runs_user ON account_runs(username);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return errors.Wrap(errors.ErrorTypePersistence, err, "failed to migrate stats schema")
	}
	return nil
}

// Record persists one run summary
func (s *Store) Record(ctx context.Context, summary *models.RunSummary) error {
	failed := 0
	for _, acct := range summary.Accounts {
		if acct.Status == models.StatusFailed {
			failed++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrorTypePersistence, err, "failed to begin stats transaction")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (started_at, finished_at, dry_run, accounts, processed, flagged, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		summary.StartedAt.UTC().Format(time.RFC3339),
		summary.FinishedAt.UTC().Format(time.RFC3339),
		boolToInt(summary.DryRun),
		len(summary.Accounts),
		summary.TotalProcessed(),
		summary.TotalFlagged(),
		failed,
	)
	if err != nil {
		return errors.Wrap(errors.ErrorTypePersistence, err, "failed to insert run")
	}

	runID, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(errors.ErrorTypePersistence, err, "failed to read run id")
	}

	for _, acct := range summary.Accounts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO account_runs (run_id, username, status, fetched, new_items, processed, flagged, item_errs)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			acct.Account.Username,
			string(acct.Status),
			acct.Fetched,
			acct.New,
			acct.Processed,
			acct.Flagged,
			len(acct.ItemErrs),
		)
		if err != nil {
			return errors.Wrap(errors.ErrorTypePersistence, err, "failed to insert account run")
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrorTypePersistence, err, "failed to commit stats")
	}
	return nil
}

// Recent returns the latest n runs, newest first
func (s *Store) Recent(ctx context.Context, n int) ([]RunRecord, error) {
	if n <= 0 {
		n = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, dry_run, accounts, processed, flagged, failed
		 FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypePersistence, err, "failed to query runs")
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished string
		var dryRun int
		if err := rows.Scan(&rec.ID, &started, &finished, &dryRun,
			&rec.Accounts, &rec.Processed, &rec.Flagged, &rec.Failed); err != nil {
			return nil, errors.Wrap(errors.ErrorTypePersistence, err, "failed to scan run")
		}
		rec.StartedAt, _ = time.Parse(time.RFC3339, started)
		rec.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		rec.DryRun = dryRun != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AccountHistory returns an account's rows across the latest n runs, newest
// first
func (s *Store) AccountHistory(ctx context.Context, username string, n int) ([]AccountRecord, error) {
	if n <= 0 {
		n = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, username, status, fetched, new_items, processed, flagged, item_errs
		 FROM account_runs WHERE username = ? ORDER BY run_id DESC LIMIT ?`, username, n)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypePersistence, err, "failed to query account runs")
	}
	defer rows.Close()

	var out []AccountRecord
	for rows.Next() {
		var rec AccountRecord
		if err := rows.Scan(&rec.RunID, &rec.Username, &rec.Status, &rec.Fetched,
			&rec.New, &rec.Processed, &rec.Flagged, &rec.ItemErrs); err != nil {
			return nil, errors.Wrap(errors.ErrorTypePersistence, err, "failed to scan account run")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
