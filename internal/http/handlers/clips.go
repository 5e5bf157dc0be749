// Package handlers implements the clipwave API operations.
package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/clipwave/clipwave/internal/models"
	"github.com/clipwave/clipwave/internal/progress"
	"github.com/clipwave/clipwave/internal/service"
)

// ClipHandler handles clip API endpoints.
type ClipHandler struct {
	service  *service.ClipService
	progress progress.Reader
}

// NewClipHandler creates a new clip handler.
func NewClipHandler(svc *service.ClipService, reader progress.Reader) *ClipHandler {
	return &ClipHandler{service: svc, progress: reader}
}

// Register registers the clip routes with the API.
func (h *ClipHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listClips",
		Method:      "GET",
		Path:        "/api/v1/clips",
		Summary:     "List clips",
		Description: "Returns all clip documents",
		Tags:        []string{"Clips"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getClip",
		Method:      "GET",
		Path:        "/api/v1/clips/{id}",
		Summary:     "Get clip",
		Description: "Returns a clip document by ID",
		Tags:        []string{"Clips"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "createClip",
		Method:      "POST",
		Path:        "/api/v1/clips",
		Summary:     "Create clip",
		Description: "Creates a clip document and launches its processing job",
		Tags:        []string{"Clips"},
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "deleteClip",
		Method:      "DELETE",
		Path:        "/api/v1/clips/{id}",
		Summary:     "Delete clip",
		Description: "Cancels any running job, deletes the clip document and its published audio",
		Tags:        []string{"Clips"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "cancelClip",
		Method:      "POST",
		Path:        "/api/v1/clips/{id}/cancel",
		Summary:     "Cancel clip job",
		Description: "Requests cancellation of the clip's running job, if any",
		Tags:        []string{"Clips"},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "getClipProgress",
		Method:      "GET",
		Path:        "/api/v1/clips/{id}/progress",
		Summary:     "Get clip progress",
		Description: "Returns the live progress of the clip's job from the progress sink, falling back to the persisted snapshot",
		Tags:        []string{"Clips"},
	}, h.GetProgress)
}

// ClipResponse represents a clip in API responses.
type ClipResponse struct {
	ID              string  `json:"id" doc:"Clip ID (ULID)"`
	Title           string  `json:"title,omitempty" doc:"Human-readable clip name"`
	SourceKind      string  `json:"source_kind" doc:"Audio source kind (remote_url, stored_object)"`
	SourceLocator   string  `json:"source_locator" doc:"Source URL or object key"`
	StartSeconds    float64 `json:"start_seconds" doc:"Trim start offset in seconds"`
	DurationSeconds float64 `json:"duration_seconds" doc:"Requested clip length in seconds (0 = to the end)"`
	IntroKey        string  `json:"intro_key,omitempty" doc:"Object key of the intro clip"`
	OutroKey        string  `json:"outro_key,omitempty" doc:"Object key of the outro clip"`
	OutputKey       string  `json:"output_key" doc:"Object key the published audio is written to"`
	Status          string  `json:"status" doc:"Job status (pending, processing, processed, error)"`
	StatusMessage   string  `json:"status_message,omitempty" doc:"Phase or error description"`
	Progress        int     `json:"progress" doc:"Last persisted progress snapshot (0-100)"`
	CreatedAt       string  `json:"created_at" doc:"Creation timestamp"`
	UpdatedAt       string  `json:"updated_at" doc:"Last update timestamp"`
}

// ClipFromModel converts a models.Clip to ClipResponse.
func ClipFromModel(c *models.Clip) ClipResponse {
	return ClipResponse{
		ID:              c.ID.String(),
		Title:           c.Title,
		SourceKind:      string(c.SourceKind),
		SourceLocator:   c.SourceLocator,
		StartSeconds:    c.StartSeconds,
		DurationSeconds: c.DurationSeconds,
		IntroKey:        c.IntroKey,
		OutroKey:        c.OutroKey,
		OutputKey:       c.OutputKey,
		Status:          string(c.Status),
		StatusMessage:   c.StatusMessage,
		Progress:        c.Progress,
		CreatedAt:       c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:       c.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ListClipsInput is the input for listing clips.
type ListClipsInput struct{}

// ListClipsOutput is the output for listing clips.
type ListClipsOutput struct {
	Body struct {
		Clips []ClipResponse `json:"clips"`
	}
}

// List returns all clips.
func (h *ClipHandler) List(ctx context.Context, _ *ListClipsInput) (*ListClipsOutput, error) {
	clips, err := h.service.GetAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list clips", err)
	}

	resp := &ListClipsOutput{}
	resp.Body.Clips = make([]ClipResponse, len(clips))
	for i, c := range clips {
		resp.Body.Clips[i] = ClipFromModel(c)
	}

	return resp, nil
}

// GetClipInput is the input for getting a clip.
type GetClipInput struct {
	ID string `path:"id" doc:"Clip ID (ULID)" format:"ulid"`
}

// GetClipOutput is the output for getting a clip.
type GetClipOutput struct {
	Body ClipResponse
}

// GetByID returns a clip by ID.
func (h *ClipHandler) GetByID(ctx context.Context, input *GetClipInput) (*GetClipOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid clip ID", err)
	}

	clip, err := h.service.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrClipNotFound) {
			return nil, huma.Error404NotFound("clip not found")
		}
		return nil, huma.Error500InternalServerError("failed to get clip", err)
	}

	return &GetClipOutput{Body: ClipFromModel(clip)}, nil
}

// CreateClipInput is the input for creating a clip.
type CreateClipInput struct {
	Body struct {
		Title           string  `json:"title,omitempty" doc:"Human-readable clip name"`
		SourceKind      string  `json:"source_kind" doc:"Audio source kind" enum:"remote_url,stored_object"`
		SourceLocator   string  `json:"source_locator" doc:"Source URL or object key"`
		StartSeconds    float64 `json:"start_seconds,omitempty" doc:"Trim start offset in seconds" minimum:"0"`
		DurationSeconds float64 `json:"duration_seconds,omitempty" doc:"Requested clip length in seconds (0 = to the end)" minimum:"0"`
		IntroKey        string  `json:"intro_key,omitempty" doc:"Object key of an intro clip to prepend"`
		OutroKey        string  `json:"outro_key,omitempty" doc:"Object key of an outro clip to append"`
		OutputKey       string  `json:"output_key,omitempty" doc:"Object key to publish to (default clips/<id>.mp3)"`
	}
}

// CreateClipOutput is the output for creating a clip.
type CreateClipOutput struct {
	Body ClipResponse
}

// Create creates a clip and starts its job.
func (h *ClipHandler) Create(ctx context.Context, input *CreateClipInput) (*CreateClipOutput, error) {
	req := service.CreateClipRequest{
		Title: input.Body.Title,
		Source: models.AudioSource{
			Kind:    models.SourceKind(input.Body.SourceKind),
			Locator: input.Body.SourceLocator,
		},
		StartSeconds:    input.Body.StartSeconds,
		DurationSeconds: input.Body.DurationSeconds,
		IntroKey:        input.Body.IntroKey,
		OutroKey:        input.Body.OutroKey,
		OutputKey:       input.Body.OutputKey,
	}

	clip, err := h.service.Create(ctx, req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidRequest) {
			return nil, huma.Error400BadRequest("invalid clip request", err)
		}
		return nil, huma.Error500InternalServerError("failed to create clip", err)
	}

	return &CreateClipOutput{Body: ClipFromModel(clip)}, nil
}

// DeleteClipInput is the input for deleting a clip.
type DeleteClipInput struct {
	ID string `path:"id" doc:"Clip ID (ULID)" format:"ulid"`
}

// DeleteClipOutput is the output for deleting a clip.
type DeleteClipOutput struct {
	Body struct {
		Message string `json:"message"`
	}
}

// Delete deletes a clip, cancelling its job first if one is running.
func (h *ClipHandler) Delete(ctx context.Context, input *DeleteClipInput) (*DeleteClipOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid clip ID", err)
	}

	if err := h.service.Delete(ctx, id); err != nil {
		if errors.Is(err, service.ErrClipNotFound) {
			return nil, huma.Error404NotFound("clip not found")
		}
		return nil, huma.Error500InternalServerError("failed to delete clip", err)
	}

	resp := &DeleteClipOutput{}
	resp.Body.Message = "clip deleted"
	return resp, nil
}

// CancelClipInput is the input for cancelling a clip job.
type CancelClipInput struct {
	ID string `path:"id" doc:"Clip ID (ULID)" format:"ulid"`
}

// CancelClipOutput is the output for cancelling a clip job.
type CancelClipOutput struct {
	Body struct {
		Cancelled bool `json:"cancelled" doc:"Whether a running job was found and signalled"`
	}
}

// Cancel requests cancellation of a clip's running job.
func (h *ClipHandler) Cancel(ctx context.Context, input *CancelClipInput) (*CancelClipOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid clip ID", err)
	}

	cancelled, err := h.service.Cancel(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrClipNotFound) {
			return nil, huma.Error404NotFound("clip not found")
		}
		return nil, huma.Error500InternalServerError("failed to cancel clip", err)
	}

	resp := &CancelClipOutput{}
	resp.Body.Cancelled = cancelled
	return resp, nil
}

// GetClipProgressInput is the input for reading clip progress.
type GetClipProgressInput struct {
	ID string `path:"id" doc:"Clip ID (ULID)" format:"ulid"`
}

// GetClipProgressOutput is the output for reading clip progress.
type GetClipProgressOutput struct {
	Body struct {
		ID       string `json:"id" doc:"Clip ID (ULID)"`
		Status   string `json:"status" doc:"Job status"`
		Message  string `json:"status_message,omitempty" doc:"Phase or error description"`
		Progress int    `json:"progress" doc:"Current progress (0-100)"`
		Live     bool   `json:"live" doc:"Whether the value came from the live sink"`
	}
}

// GetProgress returns the live progress of a clip's job. While a job runs
// the sink holds the current value; after it finishes the persisted snapshot
// on the document is authoritative.
func (h *ClipHandler) GetProgress(ctx context.Context, input *GetClipProgressInput) (*GetClipProgressOutput, error) {
	id, err := models.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid clip ID", err)
	}

	clip, err := h.service.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, service.ErrClipNotFound) {
			return nil, huma.Error404NotFound("clip not found")
		}
		return nil, huma.Error500InternalServerError("failed to get clip", err)
	}

	resp := &GetClipProgressOutput{}
	resp.Body.ID = clip.ID.String()
	resp.Body.Status = string(clip.Status)
	resp.Body.Message = clip.StatusMessage
	resp.Body.Progress = clip.Progress

	if h.progress != nil {
		if pct, ok, ferr := h.progress.Fetch(ctx, clip.ID.String()); ferr == nil && ok {
			resp.Body.Progress = pct
			resp.Body.Live = true
		}
	}

	return resp, nil
}
