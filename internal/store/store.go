// Package store keeps the audit history of generated reports in SQLite and the
// rendered artifacts on disk.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("report run not found")

// timeLayout has fixed width so created_at sorts lexically in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS report_runs (
	id               TEXT PRIMARY KEY,
	created_at       TEXT NOT NULL,
	inspection_hash  TEXT NOT NULL DEFAULT '',
	thermal_hash     TEXT NOT NULL DEFAULT '',
	extraction_count INTEGER NOT NULL DEFAULT 0,
	conflicts_count  INTEGER NOT NULL DEFAULT 0,
	severity         TEXT NOT NULL DEFAULT '',
	rules_version    TEXT NOT NULL DEFAULT '',
	report_json      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_report_runs_created_at ON report_runs (created_at DESC);
`

// Run is one row of the audit log. ReportJSON holds the full envelope.
type Run struct {
	ID              string    `db:"id" json:"id"`
	CreatedAt       time.Time `db:"-" json:"created_at"`
	CreatedAtText   string    `db:"created_at" json:"-"`
	InspectionHash  string    `db:"inspection_hash" json:"inspection_hash"`
	ThermalHash     string    `db:"thermal_hash" json:"thermal_hash"`
	ExtractionCount int       `db:"extraction_count" json:"extraction_count"`
	ConflictsCount  int       `db:"conflicts_count" json:"conflicts_count"`
	Severity        string    `db:"severity" json:"severity"`
	RulesVersion    string    `db:"rules_version" json:"rules_version"`
	ReportJSON      string    `db:"report_json" json:"-"`
}

type SQLiteStore struct {
	db *sqlx.DB
}

func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("run id is required")
	}
	run.CreatedAtText = run.CreatedAt.UTC().Format(timeLayout)
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO report_runs (id, created_at, inspection_hash, thermal_hash, extraction_count, conflicts_count, severity, rules_version, report_json)
VALUES (:id, :created_at, :inspection_hash, :thermal_hash, :extraction_count, :conflicts_count, :severity, :rules_version, :report_json)`, run)
	if err != nil {
		return fmt.Errorf("insert report run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first without their report bodies.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs, `
SELECT id, created_at, inspection_hash, thermal_hash, extraction_count, conflicts_count, severity, rules_version, '' AS report_json
FROM report_runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list report runs: %w", err)
	}
	for i := range runs {
		runs[i].parseTime()
	}
	if runs == nil {
		runs = []Run{}
	}
	return runs, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (Run, error) {
	var run Run
	err := s.db.GetContext(ctx, &run, `
SELECT id, created_at, inspection_hash, thermal_hash, extraction_count, conflicts_count, severity, rules_version, report_json
FROM report_runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("get report run: %w", err)
	}
	run.parseTime()
	return run, nil
}

func (r *Run) parseTime() {
	if ts, err := time.Parse(timeLayout, r.CreatedAtText); err == nil {
		r.CreatedAt = ts
	}
}

// HashLines fingerprints a document's extracted lines so identical inputs can be
// recognised across runs.
func HashLines(lines []string) string {
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
