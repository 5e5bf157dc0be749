package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ScratchRegistry tracks every transient file created during a job and
// drives their deterministic removal on the job's terminal path.
//
// Each path is owned by the stage that created it until the orchestrator's
// final cleanup; no two stages touch the same path.
type ScratchRegistry struct {
	dir    string
	logger *slog.Logger

	mu    sync.Mutex
	paths map[string]struct{}
}

// NewScratchRegistry creates a registry rooted at dir.
func NewScratchRegistry(dir string, logger *slog.Logger) *ScratchRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScratchRegistry{
		dir:    dir,
		logger: logger.With(slog.String("component", "scratch")),
		paths:  make(map[string]struct{}),
	}
}

// CreateTempFile registers and returns a unique path under the scratch
// directory, creating the directory if absent. The file itself is not
// created; the caller owns it from here.
func (r *ScratchRegistry) CreateTempFile(nameHint string) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating scratch directory %s: %w", r.dir, err)
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s-%s", uuid.NewString(), filepath.Base(nameHint)))

	r.mu.Lock()
	r.paths[path] = struct{}{}
	r.mu.Unlock()

	return path, nil
}

// Release deletes path and deregisters it. Deletion failures are logged,
// never propagated; a leftover scratch file must not fail the job.
func (r *ScratchRegistry) Release(path string) {
	r.mu.Lock()
	_, tracked := r.paths[path]
	delete(r.paths, path)
	r.mu.Unlock()

	if !tracked {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.Warn("failed to remove scratch file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

// ReleaseAll releases every remaining path. Called from the orchestrator's
// finalization regardless of outcome.
func (r *ScratchRegistry) ReleaseAll() {
	r.mu.Lock()
	remaining := make([]string, 0, len(r.paths))
	for p := range r.paths {
		remaining = append(remaining, p)
	}
	r.mu.Unlock()

	for _, p := range remaining {
		r.Release(p)
	}
}

// Len returns the number of tracked paths.
func (r *ScratchRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}
