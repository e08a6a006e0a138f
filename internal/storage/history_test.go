package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jungwonlee1988/wedealize-sub000/internal/config"
	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
)

func newSQLiteRepo(t *testing.T) *HistoryRepository {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "history.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewHistoryRepository(db)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func TestHistoryRepository_RecordAndGet(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	rec := domain.UploadRecord{
		ID:                "u-1",
		SessionID:         "s-1",
		FileName:          "catalog.pdf",
		FileType:          "pdf",
		FileSize:          2048,
		Status:            domain.UploadStatusDegraded,
		ProductsExtracted: 6,
		CreatedAt:         time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.RecordUpload(ctx, rec))

	got, err := repo.GetByID(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "catalog.pdf", got.FileName)
	assert.Equal(t, domain.UploadStatusDegraded, got.Status)
	assert.Equal(t, 6, got.ProductsExtracted)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryRepository_AssignsIDAndTimestamp(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.RecordUpload(ctx, domain.UploadRecord{
		FileName: "a.pdf", FileType: "pdf", Status: domain.UploadStatusCompleted,
	}))

	records, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.NotEmpty(t, records[0].ID)
	assert.False(t, records[0].CreatedAt.IsZero())
}

func TestHistoryRepository_ListNewestFirst(t *testing.T) {
	repo := newSQLiteRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first.pdf", "second.pdf", "third.pdf"} {
		require.NoError(t, repo.RecordUpload(ctx, domain.UploadRecord{
			FileName:  name,
			FileType:  "pdf",
			Status:    domain.UploadStatusCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	records, err := repo.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "third.pdf", records[0].FileName)
	assert.Equal(t, "second.pdf", records[1].FileName)
}

func TestOpen_BadPostgresDSN(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Open(ctx, config.DatabaseConfig{Driver: "postgres", DSN: "postgres://nobody@127.0.0.1:1/none?sslmode=disable"})
	assert.Error(t, err)
}
