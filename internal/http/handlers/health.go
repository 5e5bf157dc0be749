package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"gorm.io/gorm"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	jobCount  func() int
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithJobCounter sets a callback reporting the number of active pipeline jobs.
func (h *HealthHandler) WithJobCounter(fn func() int) *HealthHandler {
	h.jobCount = fn
	return h
}

// HealthResponse is the body of the health check response.
type HealthResponse struct {
	Status     string `json:"status" doc:"Overall status (ok, degraded)"`
	Version    string `json:"version" doc:"Application version"`
	Uptime     string `json:"uptime" doc:"Time since the server started"`
	Database   string `json:"database" doc:"Database connectivity (ok, error, unconfigured)"`
	ActiveJobs int    `json:"active_jobs" doc:"Number of pipeline jobs currently running"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health including database connectivity and active job count",
		Tags:        []string{"Health"},
	}, h.Get)
}

// Get returns the current service health.
func (h *HealthHandler) Get(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	resp := &HealthOutput{}
	resp.Body.Status = "ok"
	resp.Body.Version = h.version
	resp.Body.Uptime = time.Since(h.startTime).Round(time.Second).String()

	resp.Body.Database = "unconfigured"
	if h.db != nil {
		resp.Body.Database = "ok"
		if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			resp.Body.Database = "error"
			resp.Body.Status = "degraded"
		}
	}

	if h.jobCount != nil {
		resp.Body.ActiveJobs = h.jobCount()
	}

	return resp, nil
}
