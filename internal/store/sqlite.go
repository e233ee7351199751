package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Lllllllleong/earningscallsummarizer/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	fileHash TEXT NOT NULL,
	originalFilename TEXT NOT NULL DEFAULT '',
	preset TEXT NOT NULL,
	status TEXT NOT NULL,
	errorDetails TEXT NOT NULL DEFAULT '',
	pageCount INTEGER NOT NULL DEFAULT 0,
	report TEXT NOT NULL DEFAULT '',
	reportFormat TEXT NOT NULL DEFAULT '',
	reportGcsUri TEXT NOT NULL DEFAULT '',
	executionId TEXT NOT NULL DEFAULT '',
	createdAt REAL NOT NULL,
	updatedAt REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_hash ON runs(fileHash, preset, createdAt);
`

// SQLite keeps run records in a local SQLite file.
type SQLite struct {
	db *sql.DB
}

// DefaultSQLitePath returns the default database path.
func DefaultSQLitePath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "earnings-summarizer", "runs.sqlite")
}

// OpenSQLite opens (and if needed creates) the database at path. ":memory:" is accepted.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = DefaultSQLitePath()
	}
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Create(ctx context.Context, run *models.Run) (string, error) {
	now := time.Now()
	run.ID = uuid.NewString()
	run.CreatedAt, run.UpdatedAt = now, now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, fileHash, originalFilename, preset, status, errorDetails, pageCount,
			report, reportFormat, reportGcsUri, executionId, createdAt, updatedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.FileHash, run.OriginalFilename, run.Preset, run.Status, run.ErrorDetails, run.PageCount,
		run.Report, run.ReportFormat, run.ReportGCSUri, run.ExecutionID, toUnix(now), toUnix(now))
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

const selectRun = `
	SELECT id, fileHash, originalFilename, preset, status, errorDetails, pageCount,
		report, reportFormat, reportGcsUri, executionId, createdAt, updatedAt
	FROM runs`

func (s *SQLite) Get(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return run, err
}

func (s *SQLite) FindByHash(ctx context.Context, fileHash, preset string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+`
		WHERE fileHash = ? AND preset = ?
		ORDER BY createdAt DESC
		LIMIT 1
	`, fileHash, preset)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLite) FindCompleted(ctx context.Context, fileHash, preset string) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, selectRun+`
		WHERE fileHash = ? AND preset = ? AND status = ?
		ORDER BY createdAt DESC
		LIMIT 1
	`, fileHash, preset, models.StatusCompleted)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (s *SQLite) MarkStatus(ctx context.Context, id, status string) error {
	return s.update(ctx, id, `status = ?`, status)
}

func (s *SQLite) MarkFailed(ctx context.Context, id, details string) error {
	return s.update(ctx, id, `status = ?, errorDetails = ?`, models.StatusFailed, details)
}

func (s *SQLite) SetPageCount(ctx context.Context, id string, pageCount int) error {
	return s.update(ctx, id, `pageCount = ?`, pageCount)
}

func (s *SQLite) Complete(ctx context.Context, id string, report models.Report) error {
	return s.update(ctx, id, `status = ?, report = ?, reportFormat = ?, reportGcsUri = ?`,
		models.StatusCompleted, report.Text, report.Format, report.GCSUri)
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]models.Run, error) {
	rows, err := s.db.QueryContext(ctx, selectRun+` ORDER BY createdAt DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLite) update(ctx context.Context, id, set string, args ...any) error {
	args = append(args, toUnix(time.Now()), id)
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET `+set+`, updatedAt = ? WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.Run, error) {
	var run models.Run
	var createdAt, updatedAt float64
	err := row.Scan(&run.ID, &run.FileHash, &run.OriginalFilename, &run.Preset, &run.Status,
		&run.ErrorDetails, &run.PageCount, &run.Report, &run.ReportFormat, &run.ReportGCSUri,
		&run.ExecutionID, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.CreatedAt = fromUnix(createdAt)
	run.UpdatedAt = fromUnix(updatedAt)
	return &run, nil
}

func toUnix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func fromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
