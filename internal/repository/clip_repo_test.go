package repository

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/clipwave/clipwave/internal/models"
)

func setupClipTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(&models.Clip{}))
	return db
}

func testClip() *models.Clip {
	return &models.Clip{
		Title:           "Test Clip",
		SourceKind:      models.SourceRemoteURL,
		SourceLocator:   "https://example.com/watch?v=abc",
		StartSeconds:    10,
		DurationSeconds: 30,
		OutputKey:       "clips/test.mp3",
		Status:          models.ClipStatusPending,
	}
}

func TestClipRepo_CreateAndGet(t *testing.T) {
	repo := NewClipRepository(setupClipTestDB(t))
	ctx := context.Background()

	clip := testClip()
	require.NoError(t, repo.Create(ctx, clip))
	assert.False(t, clip.ID.IsZero())

	found, err := repo.GetByID(ctx, clip.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, clip.Title, found.Title)
	assert.Equal(t, models.ClipStatusPending, found.Status)
	assert.Equal(t, clip.Source(), found.Source())
}

func TestClipRepo_GetByID_NotFound(t *testing.T) {
	repo := NewClipRepository(setupClipTestDB(t))

	found, err := repo.GetByID(context.Background(), models.NewULID())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestClipRepo_UpdateStatus(t *testing.T) {
	repo := NewClipRepository(setupClipTestDB(t))
	ctx := context.Background()

	clip := testClip()
	require.NoError(t, repo.Create(ctx, clip))

	require.NoError(t, repo.UpdateStatus(ctx, clip.ID, models.ClipStatusProcessing, "Getting Data"))

	found, err := repo.GetByID(ctx, clip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClipStatusProcessing, found.Status)
	assert.Equal(t, "Getting Data", found.StatusMessage)
}

func TestClipRepo_UpdateFields(t *testing.T) {
	repo := NewClipRepository(setupClipTestDB(t))
	ctx := context.Background()

	clip := testClip()
	require.NoError(t, repo.Create(ctx, clip))

	require.NoError(t, repo.UpdateFields(ctx, clip.ID, map[string]any{
		"progress": 42,
		"status":   models.ClipStatusProcessing,
	}))

	found, err := repo.GetByID(ctx, clip.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, found.Progress)
	assert.Equal(t, models.ClipStatusProcessing, found.Status)

	// Empty update is a no-op, not an error.
	require.NoError(t, repo.UpdateFields(ctx, clip.ID, nil))
}

func TestClipRepo_GetAll(t *testing.T) {
	repo := NewClipRepository(setupClipTestDB(t))
	ctx := context.Background()

	for range 3 {
		require.NoError(t, repo.Create(ctx, testClip()))
	}

	clips, err := repo.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, clips, 3)
}

func TestClipRepo_Delete(t *testing.T) {
	repo := NewClipRepository(setupClipTestDB(t))
	ctx := context.Background()

	clip := testClip()
	require.NoError(t, repo.Create(ctx, clip))
	require.NoError(t, repo.Delete(ctx, clip.ID))

	found, err := repo.GetByID(ctx, clip.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}
