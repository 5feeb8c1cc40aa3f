package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/stylizr/upload-gateway/internal/models"
)

// ErrNotFound is returned when no upload matches the lookup.
var ErrNotFound = errors.New("upload not found")

// UploadRepository manages persistence for accepted uploads.
type UploadRepository struct {
	db *sqlx.DB
}

// NewUploadRepository constructs an UploadRepository.
func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// Create inserts a new upload row, assigning the ID and timestamp.
func (r *UploadRepository) Create(ctx context.Context, record *models.UploadRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO uploads (id, owner_id, secure_filename, original_filename, mime_type, size_bytes, content_hash, width, height, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, query,
		record.ID, record.OwnerID, record.SecureFilename, record.OriginalFilename,
		record.MimeType, record.SizeBytes, record.ContentHash, record.Width, record.Height,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// GetByID fetches one upload row.
func (r *UploadRepository) GetByID(ctx context.Context, id string) (*models.UploadRecord, error) {
	query := `SELECT id, owner_id, secure_filename, original_filename, mime_type, size_bytes, content_hash, width, height, created_at
        FROM uploads WHERE id = $1`
	var record models.UploadRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get upload %s: %w", id, err)
	}
	return &record, nil
}

// ListByOwner returns the owner's uploads, newest first.
func (r *UploadRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]models.UploadRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `SELECT id, owner_id, secure_filename, original_filename, mime_type, size_bytes, content_hash, width, height, created_at
        FROM uploads WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2`
	var records []models.UploadRecord
	if err := r.db.SelectContext(ctx, &records, query, ownerID, limit); err != nil {
		return nil, fmt.Errorf("list uploads for %s: %w", ownerID, err)
	}
	return records, nil
}

// DeleteByID removes a row, typically after a retention sweep removed
// the underlying file.
func (r *UploadRepository) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete upload %s: %w", id, err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}
	return nil
}
