// SPDX-License-Identifier: MIT

// Package track keeps the application ledger: one row per listing the
// daemon applied to, skipped, or failed, mirrored to JSON files for
// humans, plus the seen and company stores that gate re-evaluation.
package track

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/dreambooster/dreambooster/internal/metrics"
	"github.com/dreambooster/dreambooster/internal/persistence/sqlite"
)

// Application statuses.
const (
	StatusApplied = "applied"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

const schemaVersion = 1

// Record is one ledger row.
type Record struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	Portal    string          `json:"portal"`
	JobID     string          `json:"job_id"`
	Title     string          `json:"title"`
	Company   string          `json:"company"`
	Location  string          `json:"location,omitempty"`
	Link      string          `json:"link"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Score     float64         `json:"score"`
	Answers   json.RawMessage `json:"answers,omitempty"`
	PDFPath   string          `json:"pdf_path,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Ledger stores application records in SQLite and mirrors them to JSON
// files per status.
type Ledger struct {
	db        *sql.DB
	outputDir string
}

// Open opens the ledger database at dbPath. When outputDir is non-empty
// every change rewrites the status mirror files there.
func Open(dbPath, outputDir string) (*Ledger, error) {
	// A damaged ledger must not be opened for writes. quick_check keeps
	// startup cheap even on a large file.
	if _, statErr := os.Stat(dbPath); statErr == nil {
		issues, err := sqlite.VerifyIntegrity(dbPath, "quick")
		if err != nil {
			return nil, fmt.Errorf("ledger: integrity check failed: %w", err)
		}
		if len(issues) > 0 {
			return nil, fmt.Errorf("ledger: database failed integrity check: %s", strings.Join(issues, "; "))
		}
	}

	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	l := &Ledger{db: db, outputDir: outputDir}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: migration failed: %w", err)
	}
	return l, nil
}

// Close releases the database.
func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) migrate() error {
	var current int
	if err := l.db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := l.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS applications (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		portal TEXT NOT NULL,
		job_id TEXT NOT NULL,
		title TEXT NOT NULL,
		company TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		link TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('applied','skipped','failed')),
		reason TEXT NOT NULL DEFAULT '',
		score REAL NOT NULL DEFAULT 0,
		answers_json TEXT NOT NULL DEFAULT 'null',
		pdf_path TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE (portal, job_id)
	);
	CREATE INDEX IF NOT EXISTS idx_applications_status ON applications(status);
	CREATE INDEX IF NOT EXISTS idx_applications_run ON applications(run_id);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

// Add upserts one record. A listing processed again replaces its earlier
// row (portal+job_id are unique), so the ledger always shows the latest
// outcome per listing.
func (l *Ledger) Add(ctx context.Context, rec Record) error {
	switch rec.Status {
	case StatusApplied, StatusSkipped, StatusFailed:
	default:
		return fmt.Errorf("ledger: invalid status %q", rec.Status)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	answers := "null"
	if len(rec.Answers) > 0 {
		answers = string(rec.Answers)
	}

	query := `
	INSERT INTO applications (id, run_id, portal, job_id, title, company, location, link, status, reason, score, answers_json, pdf_path, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(portal, job_id) DO UPDATE SET
		run_id = excluded.run_id,
		title = excluded.title,
		company = excluded.company,
		location = excluded.location,
		link = excluded.link,
		status = excluded.status,
		reason = excluded.reason,
		score = excluded.score,
		answers_json = excluded.answers_json,
		pdf_path = excluded.pdf_path,
		created_at = excluded.created_at
	`
	_, err := l.db.ExecContext(ctx, query,
		rec.ID, rec.RunID, rec.Portal, rec.JobID, rec.Title, rec.Company, rec.Location, rec.Link,
		rec.Status, rec.Reason, rec.Score, answers, rec.PDFPath, rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("ledger: add record: %w", err)
	}
	metrics.IncApplication(rec.Portal, rec.Status)
	return l.writeMirror(ctx, rec.Status)
}

const selectColumns = `id, run_id, portal, job_id, title, company, location, link, status, reason, score, answers_json, pdf_path, created_at`

// ByStatus returns records with the given status, newest first. A limit
// of zero returns everything.
func (l *Ledger) ByStatus(ctx context.Context, status string, limit int) ([]Record, error) {
	query := "SELECT " + selectColumns + " FROM applications WHERE status = ? ORDER BY created_at DESC, rowid DESC"
	args := []any{status}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return l.queryRecords(ctx, query, args...)
}

// ByRun returns every record written during one run, newest first.
func (l *Ledger) ByRun(ctx context.Context, runID string) ([]Record, error) {
	return l.queryRecords(ctx,
		"SELECT "+selectColumns+" FROM applications WHERE run_id = ? ORDER BY created_at DESC, rowid DESC", runID)
}

// Recent returns the newest records across all statuses.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return l.queryRecords(ctx,
		"SELECT "+selectColumns+" FROM applications ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
}

// CountByStatus returns row counts keyed by status.
func (l *Ledger) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM applications GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("ledger: count: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("ledger: scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (l *Ledger) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: query: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var rec Record
	var answers, createdAt string
	err := rows.Scan(&rec.ID, &rec.RunID, &rec.Portal, &rec.JobID, &rec.Title, &rec.Company,
		&rec.Location, &rec.Link, &rec.Status, &rec.Reason, &rec.Score, &answers, &rec.PDFPath, &createdAt)
	if err != nil {
		return Record{}, fmt.Errorf("ledger: scan row: %w", err)
	}
	if answers != "" && answers != "null" {
		rec.Answers = json.RawMessage(answers)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return rec, nil
}

// mirrorName maps a status to its JSON mirror file.
func mirrorName(status string) string {
	switch status {
	case StatusApplied:
		return "success.json"
	case StatusFailed:
		return "failed.json"
	case StatusSkipped:
		return "skipped.json"
	}
	return ""
}

// writeMirror rewrites the JSON mirror for one status atomically.
func (l *Ledger) writeMirror(ctx context.Context, status string) error {
	if l.outputDir == "" {
		return nil
	}
	name := mirrorName(status)
	if name == "" {
		return nil
	}
	records, err := l.ByStatus(ctx, status, 0)
	if err != nil {
		return err
	}
	if records == nil {
		records = []Record{}
	}
	buf, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encode mirror: %w", err)
	}
	buf = append(buf, '\n')
	if err := renameio.WriteFile(filepath.Join(l.outputDir, name), buf, 0o644); err != nil {
		return fmt.Errorf("ledger: write mirror %s: %w", name, err)
	}
	return nil
}
