// Package store provides the SQLite-backed audit ledger for the cleaner.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fentz26/artifactory-cleaner/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the ledger database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		dry_run INTEGER NOT NULL DEFAULT 0,
		range_from DATETIME NOT NULL,
		range_to DATETIME NOT NULL,
		summary TEXT,
		started_at DATETIME NOT NULL,
		ended_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		disposition TEXT NOT NULL,
		uri TEXT NOT NULL,
		repo TEXT,
		size INTEGER NOT NULL DEFAULT 0,
		inputs_hash TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_run_id ON decisions(run_id);
	CREATE INDEX IF NOT EXISTS idx_decisions_uri ON decisions(uri);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Run Operations ---

// CreateRun records the start of an archive or clean run.
func (s *Store) CreateRun(command string, dryRun bool, from, to time.Time) (*models.Run, error) {
	run := &models.Run{
		ID:        uuid.New().String(),
		Command:   command,
		DryRun:    dryRun,
		From:      from.UTC(),
		To:        to.UTC(),
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO runs (id, command, dry_run, range_from, range_to, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.DryRun, run.From, run.To, run.StartedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun marks a run as ended with a summary line.
func (s *Store) FinishRun(id, summary string) error {
	res, err := s.db.Exec(
		`UPDATE runs SET summary = ?, ended_at = ? WHERE id = ?`,
		summary, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

const runColumns = `id, command, dry_run, range_from, range_to, summary, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	run := &models.Run{}
	var summary sql.NullString
	var endedAt sql.NullTime
	if err := row.Scan(&run.ID, &run.Command, &run.DryRun, &run.From, &run.To, &summary, &run.StartedAt, &endedAt); err != nil {
		return nil, err
	}
	if summary.Valid {
		run.Summary = summary.String
	}
	if endedAt.Valid {
		t := endedAt.Time
		run.EndedAt = &t
	}
	return run, nil
}

// GetRun retrieves a run by ID. It returns nil, nil when there is none.
func (s *Store) GetRun(id string) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A limit of 0 returns all.
func (s *Store) ListRuns(limit int) ([]models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// --- Decision Operations ---

// WriteDecision records what happened to one artifact in a run.
func (s *Store) WriteDecision(runID string, disposition models.Disposition, uri, repo string, size int64, inputsHash, details string) (*models.Decision, error) {
	d := &models.Decision{
		ID:          uuid.New().String(),
		RunID:       runID,
		Disposition: disposition,
		URI:         uri,
		Repo:        repo,
		Size:        size,
		InputsHash:  inputsHash,
		Details:     details,
		Timestamp:   time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO decisions (id, run_id, disposition, uri, repo, size, inputs_hash, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RunID, d.Disposition, d.URI, d.Repo, d.Size, d.InputsHash, d.Details, d.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert decision: %w", err)
	}
	return d, nil
}

// ListDecisions returns the decisions of a run in the order they were made.
func (s *Store) ListDecisions(runID string) ([]models.Decision, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, disposition, uri, repo, size, inputs_hash, details, timestamp FROM decisions WHERE run_id = ? ORDER BY timestamp ASC, rowid ASC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []models.Decision
	for rows.Next() {
		var d models.Decision
		var repo, details sql.NullString
		if err := rows.Scan(&d.ID, &d.RunID, &d.Disposition, &d.URI, &repo, &d.Size, &d.InputsHash, &details, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.Repo = repo.String
		d.Details = details.String
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// DispositionTotal is the number and size of a run's artifacts with one
// disposition.
type DispositionTotal struct {
	Disposition models.Disposition
	Count       int
	Bytes       int64
}

// SummarizeRun totals a run's decisions by disposition.
func (s *Store) SummarizeRun(runID string) ([]DispositionTotal, error) {
	rows, err := s.db.Query(
		`SELECT disposition, COUNT(*), COALESCE(SUM(size), 0) FROM decisions WHERE run_id = ? GROUP BY disposition ORDER BY disposition`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run summary: %w", err)
	}
	defer rows.Close()

	var totals []DispositionTotal
	for rows.Next() {
		var t DispositionTotal
		if err := rows.Scan(&t.Disposition, &t.Count, &t.Bytes); err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
