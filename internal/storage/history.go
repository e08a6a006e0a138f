// Package storage persists the upload history audit trail in SQLite or
// PostgreSQL.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jungwonlee1988/wedealize-sub000/internal/config"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
)

// ErrNotFound is returned when a history record does not exist.
var ErrNotFound = errors.New("record not found")

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	driver := "postgres"
	if cfg.Driver == "sqlite" {
		driver = "sqlite3"
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		// one writer; avoids SQLITE_BUSY from concurrent fire-and-forget inserts
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

const createUploadsTable = `
	CREATE TABLE IF NOT EXISTS catalog_uploads (
		id                 TEXT PRIMARY KEY,
		session_id         TEXT NOT NULL DEFAULT '',
		file_name          TEXT NOT NULL,
		file_type          TEXT NOT NULL,
		file_size          BIGINT NOT NULL,
		status             TEXT NOT NULL,
		products_extracted INTEGER NOT NULL DEFAULT 0,
		created_at         TIMESTAMP NOT NULL
	)
`

// HistoryRepository stores upload audit records.
type HistoryRepository struct {
	db DB
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Migrate creates the uploads table when missing.
func (r *HistoryRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUploadsTable); err != nil {
		return fmt.Errorf("create catalog_uploads: %w", err)
	}
	return nil
}

// RecordUpload inserts one audit record, assigning an id and timestamp
// when absent.
func (r *HistoryRepository) RecordUpload(ctx context.Context, rec domain.UploadRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO catalog_uploads (id, session_id, file_name, file_type, file_size,
			status, products_extracted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.FileName, rec.FileType, rec.FileSize,
		string(rec.Status), rec.ProductsExtracted, rec.CreatedAt,
	)
	if err != nil {
		return domain.IOError("failed to record upload", err)
	}
	return nil
}

// GetByID retrieves an upload record by id.
func (r *HistoryRepository) GetByID(ctx context.Context, id string) (*domain.UploadRecord, error) {
	query := `
		SELECT id, session_id, file_name, file_type, file_size, status, products_extracted, created_at
		FROM catalog_uploads WHERE id = $1
	`
	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns the most recent records first, at most limit of them.
func (r *HistoryRepository) List(ctx context.Context, limit int) ([]*domain.UploadRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, session_id, file_name, file_type, file_size, status, products_extracted, created_at
		FROM catalog_uploads
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.UploadRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*domain.UploadRecord, error) {
	rec := &domain.UploadRecord{}
	var status string
	if err := s.Scan(
		&rec.ID, &rec.SessionID, &rec.FileName, &rec.FileType, &rec.FileSize,
		&status, &rec.ProductsExtracted, &rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Status = domain.UploadStatus(status)
	return rec, nil
}
