package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/models"
	"github.com/clipwave/clipwave/internal/pipeline"
	"github.com/clipwave/clipwave/internal/storage"
)

// blockingRunner blocks until its token fires or release is closed.
type blockingRunner struct {
	mu      sync.Mutex
	started []models.ULID
	release chan struct{}
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) Run(_ context.Context, clipID models.ULID, token *pipeline.CancelToken) error {
	r.mu.Lock()
	r.started = append(r.started, clipID)
	r.mu.Unlock()

	select {
	case <-token.Done():
		return pipeline.ErrCancelled
	case <-r.release:
		return nil
	}
}

func (r *blockingRunner) startedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started)
}

func TestJobRunnerAtMostOnePerClip(t *testing.T) {
	runner := newBlockingRunner()
	jobs := NewJobRunner(runner, nil)
	id := models.NewULID()

	require.NoError(t, jobs.Start(id))
	// Wait for the goroutine to reach Run.
	require.Eventually(t, func() bool { return runner.startedCount() == 1 },
		time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, jobs.Start(id), pipeline.ErrJobAlreadyRunning)
	assert.True(t, jobs.Active(id))

	close(runner.release)
	require.Eventually(t, func() bool { return !jobs.Active(id) },
		time.Second, 5*time.Millisecond)

	// A finished clip can be rerun.
	require.NoError(t, jobs.Start(id))
	require.Eventually(t, func() bool { return runner.startedCount() == 2 },
		time.Second, 5*time.Millisecond)
	jobs.Cancel(id)
}

func TestJobRunnerCancel(t *testing.T) {
	runner := newBlockingRunner()
	jobs := NewJobRunner(runner, nil)
	id := models.NewULID()

	assert.False(t, jobs.Cancel(id), "no active job to cancel")

	require.NoError(t, jobs.Start(id))
	require.Eventually(t, func() bool { return jobs.Active(id) },
		time.Second, 5*time.Millisecond)

	assert.True(t, jobs.Cancel(id))
	require.Eventually(t, func() bool { return !jobs.Active(id) },
		time.Second, 5*time.Millisecond)
}

func TestJobRunnerShutdown(t *testing.T) {
	runner := newBlockingRunner()
	jobs := NewJobRunner(runner, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, jobs.Start(models.NewULID()))
	}
	require.Eventually(t, func() bool { return runner.startedCount() == 3 },
		time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, jobs.Shutdown(ctx))
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     CreateClipRequest
		wantErr bool
	}{
		{"remote url", CreateClipRequest{Source: models.RemoteURL("https://example.com/v")}, false},
		{"stored object", CreateClipRequest{Source: models.StoredObject("uploads/x.webm")}, false},
		{"empty locator", CreateClipRequest{Source: models.AudioSource{Kind: models.SourceRemoteURL}}, true},
		{"unknown kind", CreateClipRequest{Source: models.AudioSource{Kind: "ftp", Locator: "x"}}, true},
		{"negative start", CreateClipRequest{Source: models.RemoteURL("u"), StartSeconds: -1}, true},
		{"negative duration", CreateClipRequest{Source: models.RemoteURL("u"), DurationSeconds: -5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRequest(tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRequest)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestJanitorSweep(t *testing.T) {
	base := t.TempDir()
	cfg := config.StorageConfig{
		BaseDir:          base,
		ScratchDir:       "scratch",
		ScratchRetention: time.Hour,
		JanitorCron:      "@hourly",
	}
	dir := cfg.ScratchPath()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	oldFile := filepath.Join(dir, "orphan.m4a")
	require.NoError(t, os.WriteFile(oldFile, []byte("x"), 0o644))
	stale := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldFile, stale, stale))

	freshFile := filepath.Join(dir, "active.m4a")
	require.NoError(t, os.WriteFile(freshFile, []byte("x"), 0o644))

	j := NewJanitor(cfg, nil)
	j.Sweep()

	_, err := os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err), "stale file swept")
	_, err = os.Stat(freshFile)
	assert.NoError(t, err, "fresh file kept")
}

func TestJanitorStartRejectsBadSpec(t *testing.T) {
	j := NewJanitor(config.StorageConfig{JanitorCron: "not a cron spec"}, nil)
	assert.Error(t, j.Start())
}

var _ storage.ObjectStore = (*nopStore)(nil)

// nopStore satisfies ObjectStore where the test never touches storage.
type nopStore struct{}

func (nopStore) Download(context.Context, string, string) error { return nil }
func (nopStore) OpenWrite(context.Context, string, string, map[string]string) (storage.WriteSink, error) {
	return nil, errors.New("not implemented")
}
func (nopStore) Exists(context.Context, string) (bool, error) { return false, nil }
func (nopStore) Delete(context.Context, string) error         { return nil }

// mapRepo is a minimal in-memory ClipRepository.
type mapRepo struct {
	mu    sync.Mutex
	clips map[models.ULID]*models.Clip
}

func newMapRepo() *mapRepo {
	return &mapRepo{clips: make(map[models.ULID]*models.Clip)}
}

func (r *mapRepo) Create(_ context.Context, clip *models.Clip) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips[clip.ID] = clip
	return nil
}

func (r *mapRepo) GetByID(_ context.Context, id models.ULID) (*models.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clips[id], nil
}

func (r *mapRepo) GetAll(context.Context) ([]*models.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Clip, 0, len(r.clips))
	for _, c := range r.clips {
		out = append(out, c)
	}
	return out, nil
}

func (r *mapRepo) UpdateFields(_ context.Context, id models.ULID, _ map[string]any) error {
	return nil
}

func (r *mapRepo) UpdateStatus(_ context.Context, id models.ULID, status models.ClipStatus, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clips[id]; ok {
		c.Status = status
		c.StatusMessage = message
	}
	return nil
}

func (r *mapRepo) Delete(_ context.Context, id models.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clips, id)
	return nil
}

func TestClipServiceCreateLaunchesJob(t *testing.T) {
	runner := newBlockingRunner()
	jobs := NewJobRunner(runner, nil)
	svc := NewClipService(newMapRepo(), nopStore{}, jobs, nil)

	clip, err := svc.Create(context.Background(), CreateClipRequest{
		Title:           "episode 12 highlight",
		Source:          models.RemoteURL("https://example.com/watch?v=abc"),
		StartSeconds:    40,
		DurationSeconds: 20,
	})
	require.NoError(t, err)
	require.False(t, clip.ID.IsZero())
	assert.Equal(t, "clips/"+clip.ID.String()+".mp3", clip.OutputKey)
	assert.Equal(t, models.ClipStatusPending, clip.Status)

	require.Eventually(t, func() bool { return runner.startedCount() == 1 },
		time.Second, 5*time.Millisecond)
	jobs.Cancel(clip.ID)
}

func TestClipServiceCreateRejectsInvalid(t *testing.T) {
	svc := NewClipService(newMapRepo(), nopStore{}, NewJobRunner(newBlockingRunner(), nil), nil)
	_, err := svc.Create(context.Background(), CreateClipRequest{
		Source: models.AudioSource{Kind: models.SourceRemoteURL},
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestClipServiceGetByIDNotFound(t *testing.T) {
	svc := NewClipService(newMapRepo(), nopStore{}, NewJobRunner(newBlockingRunner(), nil), nil)
	_, err := svc.GetByID(context.Background(), models.NewULID())
	assert.ErrorIs(t, err, ErrClipNotFound)
}

func TestClipServiceDeleteCancelsJob(t *testing.T) {
	runner := newBlockingRunner()
	jobs := NewJobRunner(runner, nil)
	repo := newMapRepo()
	svc := NewClipService(repo, nopStore{}, jobs, nil)

	clip, err := svc.Create(context.Background(), CreateClipRequest{
		Source: models.StoredObject("uploads/raw.webm"),
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return jobs.Active(clip.ID) },
		time.Second, 5*time.Millisecond)

	require.NoError(t, svc.Delete(context.Background(), clip.ID))
	require.Eventually(t, func() bool { return !jobs.Active(clip.ID) },
		time.Second, 5*time.Millisecond)

	_, err = svc.GetByID(context.Background(), clip.ID)
	assert.ErrorIs(t, err, ErrClipNotFound)
}
