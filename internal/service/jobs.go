// Package service provides the business logic layer between the HTTP
// handlers and the pipeline, repository, and storage collaborators.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/clipwave/clipwave/internal/models"
	"github.com/clipwave/clipwave/internal/pipeline"
)

// PipelineRunner executes one clip job to completion.
type PipelineRunner interface {
	Run(ctx context.Context, clipID models.ULID, token *pipeline.CancelToken) error
}

// JobRunner launches pipeline jobs in the background and tracks their
// cancellation tokens. At most one job per clip is active at a time.
type JobRunner struct {
	runner PipelineRunner
	logger *slog.Logger

	mu     sync.Mutex
	tokens map[models.ULID]*pipeline.CancelToken
	wg     sync.WaitGroup
}

// NewJobRunner creates a JobRunner.
func NewJobRunner(runner PipelineRunner, logger *slog.Logger) *JobRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobRunner{
		runner: runner,
		logger: logger.With(slog.String("component", "jobs")),
		tokens: make(map[models.ULID]*pipeline.CancelToken),
	}
}

// Start launches a job for the clip. Returns ErrJobAlreadyRunning when a
// job for the same clip is still active.
func (r *JobRunner) Start(clipID models.ULID) error {
	r.mu.Lock()
	if _, active := r.tokens[clipID]; active {
		r.mu.Unlock()
		return pipeline.ErrJobAlreadyRunning
	}
	token := pipeline.NewCancelToken()
	r.tokens[clipID] = token
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.tokens, clipID)
			r.mu.Unlock()
		}()

		// The job outlives the request that started it.
		if err := r.runner.Run(context.Background(), clipID, token); err != nil {
			r.logger.Error("clip job failed",
				slog.String("clip_id", clipID.String()),
				slog.String("error", err.Error()),
			)
		}
	}()
	return nil
}

// Cancel requests cancellation of the clip's active job. Returns false when
// no job is active.
func (r *JobRunner) Cancel(clipID models.ULID) bool {
	r.mu.Lock()
	token, active := r.tokens[clipID]
	r.mu.Unlock()
	if !active {
		return false
	}
	token.Cancel()
	return true
}

// Active reports whether a job is currently running for the clip.
func (r *JobRunner) Active(clipID models.ULID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, active := r.tokens[clipID]
	return active
}

// ActiveCount returns the number of jobs currently running.
func (r *JobRunner) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tokens)
}

// Shutdown cancels every active job and waits for them to finish or the
// context to expire.
func (r *JobRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	for _, token := range r.tokens {
		token.Cancel()
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
