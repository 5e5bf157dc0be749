package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clipwave/clipwave/internal/models"
	"github.com/clipwave/clipwave/internal/repository"
	"github.com/clipwave/clipwave/internal/storage"
)

// Service-level errors.
var (
	// ErrClipNotFound indicates the clip document does not exist.
	ErrClipNotFound = errors.New("clip not found")

	// ErrInvalidRequest indicates the submitted clip request failed
	// validation.
	ErrInvalidRequest = errors.New("invalid clip request")
)

// CreateClipRequest describes a new clip submission.
type CreateClipRequest struct {
	Title           string
	Source          models.AudioSource
	StartSeconds    float64
	DurationSeconds float64
	IntroKey        string
	OutroKey        string
	OutputKey       string
}

// ClipService manages clip documents and their pipeline jobs.
type ClipService struct {
	repo   repository.ClipRepository
	store  storage.ObjectStore
	jobs   *JobRunner
	logger *slog.Logger
}

// NewClipService creates a ClipService.
func NewClipService(repo repository.ClipRepository, store storage.ObjectStore, jobs *JobRunner, logger *slog.Logger) *ClipService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClipService{
		repo:   repo,
		store:  store,
		jobs:   jobs,
		logger: logger.With(slog.String("component", "clip-service")),
	}
}

// Create validates the request, persists the clip document, and launches
// its pipeline job.
func (s *ClipService) Create(ctx context.Context, req CreateClipRequest) (*models.Clip, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	clip := &models.Clip{
		Title:           req.Title,
		SourceKind:      req.Source.Kind,
		SourceLocator:   req.Source.Locator,
		StartSeconds:    req.StartSeconds,
		DurationSeconds: req.DurationSeconds,
		IntroKey:        req.IntroKey,
		OutroKey:        req.OutroKey,
		OutputKey:       req.OutputKey,
		Status:          models.ClipStatusPending,
	}
	clip.ID = models.NewULID()
	if clip.OutputKey == "" {
		clip.OutputKey = fmt.Sprintf("clips/%s.mp3", clip.ID)
	}

	if err := s.repo.Create(ctx, clip); err != nil {
		return nil, fmt.Errorf("creating clip document: %w", err)
	}

	if err := s.jobs.Start(clip.ID); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "clip submitted",
		slog.String("clip_id", clip.ID.String()),
		slog.String("source_kind", string(clip.SourceKind)),
	)
	return clip, nil
}

// GetByID returns a clip document.
func (s *ClipService) GetByID(ctx context.Context, id models.ULID) (*models.Clip, error) {
	clip, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, ErrClipNotFound
	}
	return clip, nil
}

// GetAll returns all clip documents, newest first.
func (s *ClipService) GetAll(ctx context.Context) ([]*models.Clip, error) {
	return s.repo.GetAll(ctx)
}

// Cancel requests cancellation of a clip's running job. Returns
// ErrClipNotFound when the clip does not exist; returns false when the
// clip exists but no job is active.
func (s *ClipService) Cancel(ctx context.Context, id models.ULID) (bool, error) {
	clip, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if clip == nil {
		return false, ErrClipNotFound
	}
	return s.jobs.Cancel(id), nil
}

// Delete cancels any active job, deletes the clip document, and removes
// the published object best-effort.
func (s *ClipService) Delete(ctx context.Context, id models.ULID) error {
	clip, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if clip == nil {
		return ErrClipNotFound
	}

	s.jobs.Cancel(id)

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting clip document: %w", err)
	}

	if clip.OutputKey != "" {
		if err := s.store.Delete(ctx, clip.OutputKey); err != nil {
			s.logger.WarnContext(ctx, "failed to delete published object",
				slog.String("clip_id", id.String()),
				slog.String("key", clip.OutputKey),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Active reports whether a job is running for the clip.
func (s *ClipService) Active(id models.ULID) bool {
	return s.jobs.Active(id)
}

func validateRequest(req CreateClipRequest) error {
	switch req.Source.Kind {
	case models.SourceRemoteURL, models.SourceStoredObject:
	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalidRequest, req.Source.Kind)
	}
	if req.Source.Locator == "" {
		return fmt.Errorf("%w: source locator is required", ErrInvalidRequest)
	}
	if req.StartSeconds < 0 {
		return fmt.Errorf("%w: start_seconds must be >= 0", ErrInvalidRequest)
	}
	if req.DurationSeconds < 0 {
		return fmt.Errorf("%w: duration_seconds must be >= 0", ErrInvalidRequest)
	}
	return nil
}
