package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	_ "github.com/go-sql-driver/mysql"

	"medreport/models"
)

// ErrNotFound is returned when no history row has the requested id
var ErrNotFound = errors.New("report not found")

const pingMaxWait = 60 * time.Second

const reportColumns = "id, backend, model, prompt, report_text, image_sha256, image_bytes, " +
	"duration_ms, outcome, error_message, created_at"

// Database wraps the report history connection
type Database struct {
	db *sql.DB
}

// NewDatabase opens the MySQL connection and waits for it to answer pings
func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := waitForDB(ctx, db, pingMaxWait); err != nil {
		db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Database{db: db}, nil
}

// New wraps an existing handle
func New(db *sql.DB) *Database {
	return &Database{db: db}
}

// waitForDB pings with exponential backoff: 1s, 2s, 4s, ... until maxWait.
func waitForDB(ctx context.Context, db *sql.DB, maxWait time.Duration) error {
	deadline := time.Now().Add(maxWait)
	waitInterval := time.Second
	for {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		pingErr := db.PingContext(pingCtx)
		cancel()
		if pingErr == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database ping timeout after %v: %w", maxWait, pingErr)
		}
		log.WithError(pingErr).Warnf("Database connection failed, retrying in %v", waitInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitInterval):
		}
		waitInterval *= 2
	}
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection, used by the health endpoint
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// CreateReportHistoryTable creates the report_history table if it doesn't exist
func (d *Database) CreateReportHistoryTable(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS report_history (
		id CHAR(36) NOT NULL PRIMARY KEY,
		backend VARCHAR(32) NOT NULL,
		model VARCHAR(255) NOT NULL,
		prompt TEXT,
		report_text MEDIUMTEXT,
		image_sha256 CHAR(64),
		image_bytes INT NOT NULL DEFAULT 0,
		duration_ms BIGINT NOT NULL DEFAULT 0,
		outcome VARCHAR(32) NOT NULL,
		error_message TEXT,
		created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
		INDEX idx_report_history_created_at (created_at),
		INDEX idx_report_history_outcome (outcome)
	)`

	if _, err := d.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create report_history table: %w", err)
	}

	log.Info("report_history table created/verified successfully")
	return nil
}

// SaveReport inserts one generation attempt
func (d *Database) SaveReport(ctx context.Context, r *models.ReportRecord) error {
	query := `INSERT INTO report_history (` + reportColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.ExecContext(ctx, query,
		r.ID, r.Backend, r.Model, r.Prompt, r.Text, r.ImageSHA256, r.ImageBytes,
		r.DurationMs, r.Outcome, r.ErrorMessage, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", r.ID, err)
	}
	return nil
}

// GetReport returns a single history row
func (d *Database) GetReport(ctx context.Context, id string) (*models.ReportRecord, error) {
	query := `SELECT ` + reportColumns + ` FROM report_history WHERE id = ?`

	r, err := scanRecord(d.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report %s: %w", id, err)
	}
	return r, nil
}

// ListReports returns the most recent history rows, newest first
func (d *Database) ListReports(ctx context.Context, limit int) ([]models.ReportRecord, error) {
	query := `SELECT ` + reportColumns + ` FROM report_history ORDER BY created_at DESC LIMIT ?`

	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	records := []models.ReportRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reports: %w", err)
	}
	return records, nil
}

// CountByOutcome returns the number of history rows per outcome
func (d *Database) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM report_history GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reports: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counts: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.ReportRecord, error) {
	var r models.ReportRecord
	var prompt, text, sha, errMsg sql.NullString
	err := s.Scan(&r.ID, &r.Backend, &r.Model, &prompt, &text, &sha, &r.ImageBytes,
		&r.DurationMs, &r.Outcome, &errMsg, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Prompt = prompt.String
	r.Text = text.String
	r.ImageSHA256 = sha.String
	r.ErrorMessage = errMsg.String
	return &r, nil
}
