// Package repository defines data access interfaces for clipwave entities.
// All database access goes through these interfaces, enabling easy testing
// and database backend switching.
package repository

import (
	"context"

	"github.com/clipwave/clipwave/internal/models"
)

// ClipRepository defines operations for clip document persistence.
//
// The pipeline treats this as an externally-synchronized document store with
// last-write-wins semantics; it never assumes read-your-write consistency
// beyond the orchestrator's bounded existence poll.
type ClipRepository interface {
	// Create creates a new clip document.
	Create(ctx context.Context, clip *models.Clip) error
	// GetByID retrieves a clip by ID. Returns (nil, nil) when absent.
	GetByID(ctx context.Context, id models.ULID) (*models.Clip, error)
	// GetAll retrieves all clips, newest first.
	GetAll(ctx context.Context) ([]*models.Clip, error)
	// UpdateFields applies a partial update to a clip document.
	UpdateFields(ctx context.Context, id models.ULID, fields map[string]any) error
	// UpdateStatus sets the status and message for a clip.
	UpdateStatus(ctx context.Context, id models.ULID, status models.ClipStatus, message string) error
	// Delete deletes a clip document by ID.
	Delete(ctx context.Context, id models.ULID) error
}
