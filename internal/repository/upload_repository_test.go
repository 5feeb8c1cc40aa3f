package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/stylizr/upload-gateway/internal/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestUploadRepositoryCreate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUploadRepository(db)

	mock.ExpectExec("INSERT INTO uploads").
		WithArgs(sqlmock.AnyArg(), "user-1", "secure.png", "photo.png", "image/png",
			int64(2048), "hash", 100, 50, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	record := &models.UploadRecord{
		OwnerID:          "user-1",
		SecureFilename:   "secure.png",
		OriginalFilename: "photo.png",
		MimeType:         "image/png",
		SizeBytes:        2048,
		ContentHash:      "hash",
		Width:            100,
		Height:           50,
	}
	require.NoError(t, repo.Create(context.Background(), record))
	require.NotEmpty(t, record.ID)
	require.False(t, record.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryGetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUploadRepository(db)

	created := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "secure_filename", "original_filename", "mime_type",
		"size_bytes", "content_hash", "width", "height", "created_at",
	}).AddRow("up-1", "user-1", "secure.png", "photo.png", "image/png",
		int64(2048), "hash", 100, 50, created)

	mock.ExpectQuery("SELECT (.+) FROM uploads WHERE id").
		WithArgs("up-1").
		WillReturnRows(rows)

	record, err := repo.GetByID(context.Background(), "up-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", record.OwnerID)
	require.Equal(t, int64(2048), record.SizeBytes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUploadRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM uploads WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryListByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUploadRepository(db)

	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "secure_filename", "original_filename", "mime_type",
		"size_bytes", "content_hash", "width", "height", "created_at",
	}).
		AddRow("up-2", "user-1", "b.png", "b.png", "image/png", int64(10), "h2", 1, 1, time.Now()).
		AddRow("up-1", "user-1", "a.png", "a.png", "image/png", int64(10), "h1", 1, 1, time.Now())

	mock.ExpectQuery("SELECT (.+) FROM uploads WHERE owner_id").
		WithArgs("user-1", 50).
		WillReturnRows(rows)

	records, err := repo.ListByOwner(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryDeleteByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUploadRepository(db)

	mock.ExpectExec("DELETE FROM uploads").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.DeleteByID(context.Background(), "missing"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
