package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/clipwave/clipwave/internal/models"
)

// clipRepo implements ClipRepository using GORM.
type clipRepo struct {
	db *gorm.DB
}

// NewClipRepository creates a new ClipRepository.
func NewClipRepository(db *gorm.DB) ClipRepository {
	return &clipRepo{db: db}
}

// Create creates a new clip document.
func (r *clipRepo) Create(ctx context.Context, clip *models.Clip) error {
	if err := r.db.WithContext(ctx).Create(clip).Error; err != nil {
		return fmt.Errorf("creating clip: %w", err)
	}
	return nil
}

// GetByID retrieves a clip by ID. Returns (nil, nil) when absent.
func (r *clipRepo) GetByID(ctx context.Context, id models.ULID) (*models.Clip, error) {
	var clip models.Clip
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&clip).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting clip by ID: %w", err)
	}
	return &clip, nil
}

// GetAll retrieves all clips, newest first.
func (r *clipRepo) GetAll(ctx context.Context) ([]*models.Clip, error) {
	var clips []*models.Clip
	if err := r.db.WithContext(ctx).Order("created_at DESC").Find(&clips).Error; err != nil {
		return nil, fmt.Errorf("getting all clips: %w", err)
	}
	return clips, nil
}

// UpdateFields applies a partial update to a clip document.
func (r *clipRepo) UpdateFields(ctx context.Context, id models.ULID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&models.Clip{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("updating clip fields: %w", err)
	}
	return nil
}

// UpdateStatus sets the status and message for a clip.
func (r *clipRepo) UpdateStatus(ctx context.Context, id models.ULID, status models.ClipStatus, message string) error {
	return r.UpdateFields(ctx, id, map[string]any{
		"status":         status,
		"status_message": message,
	})
}

// Delete deletes a clip document by ID.
func (r *clipRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Delete(&models.Clip{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting clip: %w", err)
	}
	return nil
}
