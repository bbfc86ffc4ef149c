package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/basel-ax/orthoview/internal/domain"
)

const defaultListLimit = 20

// GenerationRepository defines the interface for archived generation runs
type GenerationRepository interface {
	domain.GenerationRecorder
	ListRecent(ctx context.Context, limit int) ([]*domain.GenerationRecord, error)
	GetByID(ctx context.Context, id string) (*domain.GenerationRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PostgresGenerationRepository implements GenerationRepository for PostgreSQL
type PostgresGenerationRepository struct {
	db *sql.DB
}

var _ GenerationRepository = (*PostgresGenerationRepository)(nil)

// NewPostgresGenerationRepository creates a new PostgreSQL generation repository
func NewPostgresGenerationRepository(db *sql.DB) *PostgresGenerationRepository {
	return &PostgresGenerationRepository{db: db}
}

const createTableQuery = `
	CREATE TABLE IF NOT EXISTS generations (
		id UUID PRIMARY KEY,
		file_name TEXT NOT NULL,
		media_type TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		view_front TEXT NOT NULL DEFAULT '',
		view_side TEXT NOT NULL DEFAULT '',
		view_top TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)
`

// EnsureSchema creates the generations table when missing
func (r *PostgresGenerationRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTableQuery); err != nil {
		return fmt.Errorf("failed to create generations table: %w", err)
	}
	return nil
}

const insertGenerationQuery = `
	INSERT INTO generations (id, file_name, media_type, status, error, view_front, view_side, view_top, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// Record stores a finished generation run, assigning an ID and timestamp when missing
func (r *PostgresGenerationRepository) Record(ctx context.Context, rec *domain.GenerationRecord) error {
	if rec == nil {
		return fmt.Errorf("generation record cannot be nil")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, insertGenerationQuery,
		rec.ID,
		rec.FileName,
		rec.MediaType,
		string(rec.Status),
		rec.Error,
		rec.Views.Front,
		rec.Views.Side,
		rec.Views.Top,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert generation record: %w", err)
	}
	return nil
}

const listRecentQuery = `
	SELECT id, file_name, media_type, status, error, created_at
	FROM generations
	ORDER BY created_at DESC
	LIMIT $1
`

// ListRecent returns the newest runs without their image data
func (r *PostgresGenerationRepository) ListRecent(ctx context.Context, limit int) ([]*domain.GenerationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx, listRecentQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	defer rows.Close()

	var records []*domain.GenerationRecord
	for rows.Next() {
		var rec domain.GenerationRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.MediaType, &status, &rec.Error, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan generation: %w", err)
		}
		rec.Status = domain.GenerationStatus(status)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate generations: %w", err)
	}

	return records, nil
}

const getByIDQuery = `
	SELECT id, file_name, media_type, status, error, view_front, view_side, view_top, created_at
	FROM generations
	WHERE id = $1
`

// GetByID returns a single run including its views, or nil when it does not exist
func (r *PostgresGenerationRepository) GetByID(ctx context.Context, id string) (*domain.GenerationRecord, error) {
	var rec domain.GenerationRecord
	var status string
	err := r.db.QueryRowContext(ctx, getByIDQuery, id).Scan(
		&rec.ID,
		&rec.FileName,
		&rec.MediaType,
		&status,
		&rec.Error,
		&rec.Views.Front,
		&rec.Views.Side,
		&rec.Views.Top,
		&rec.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get generation: %w", err)
	}

	rec.Status = domain.GenerationStatus(status)
	return &rec, nil
}

const deleteOlderThanQuery = `
	DELETE FROM generations
	WHERE created_at < $1
`

// DeleteOlderThan removes runs created before cutoff and returns how many were removed
func (r *PostgresGenerationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, deleteOlderThanQuery, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete generations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted generations: %w", err)
	}
	return n, nil
}
