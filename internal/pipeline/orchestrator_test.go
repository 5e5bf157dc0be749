package pipeline

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/models"
	"github.com/clipwave/clipwave/internal/progress"
)

// transcoderStub returns an ffmpeg stub that logs each invocation to
// logFile, prints duration and position markers, and emits output bytes.
func transcoderStub(t *testing.T, logFile string) string {
	return writeStub(t, "ffmpeg", fmt.Sprintf(`echo run >> %q
echo "  Duration: 00:10:00.00, start: 0.000000, bitrate: 128 kb/s" >&2
echo "size=  100KiB time=00:00:15.00 bitrate= 128.0kbits/s speed=10x" >&2
echo "size=  200KiB time=00:00:30.00 bitrate= 128.0kbits/s speed=10x" >&2
printf 'TRANSCODED-AUDIO'
`, logFile))
}

func testConfig(t *testing.T, ffmpegPath string) *config.Config {
	t.Helper()
	return &config.Config{
		Storage: config.StorageConfig{
			BaseDir:    t.TempDir(),
			ScratchDir: "scratch",
		},
		FFmpeg: config.FFmpegConfig{
			BinaryPath: ffmpegPath,
			AudioCodec: "libmp3lame",
			Bitrate:    "192k",
			SampleRate: 44100,
		},
		Pipeline: config.PipelineConfig{
			AcquireSpeedRatio:  5.0,
			DurationTolerance:  2.0,
			DocumentRetries:    3,
			DocumentRetryDelay: 10 * time.Millisecond,
		},
	}
}

func invocationCount(t *testing.T, logFile string) int {
	t.Helper()
	data, err := os.ReadFile(logFile)
	if os.IsNotExist(err) {
		return 0
	}
	require.NoError(t, err)
	count := 0
	for _, b := range data {
		if b == '\n' {
			count++
		}
	}
	return count
}

func TestOrchestratorStoredObjectEndToEnd(t *testing.T) {
	store := newMemStore()
	store.put("uploads/raw.webm", []byte("source-bytes"))

	repo := newMemRepo()
	clip := &models.Clip{
		SourceKind:      models.SourceStoredObject,
		SourceLocator:   "uploads/raw.webm",
		StartSeconds:    10,
		DurationSeconds: 30,
		OutputKey:       "clips/final.mp3",
	}
	require.NoError(t, repo.Create(context.Background(), clip))

	logFile := t.TempDir() + "/invocations"
	cfg := testConfig(t, transcoderStub(t, logFile))
	sink := progress.NewMemorySink()

	orch := NewOrchestrator(repo, store, sink, cfg, nil)
	require.NoError(t, orch.Run(context.Background(), clip.ID, NewCancelToken()))

	// One transcode invocation, no merge.
	assert.Equal(t, 1, invocationCount(t, logFile))

	// Document reached PROCESSED with full progress.
	got, err := repo.GetByID(context.Background(), clip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClipStatusProcessed, got.Status)
	assert.Equal(t, 100, got.Progress)

	// The published object carries the transcoder's output.
	data, ok := store.get("clips/final.mp3")
	require.True(t, ok)
	assert.Equal(t, "TRANSCODED-AUDIO", string(data))

	// Progress writes were monotonic, ended at 100, and the sink entry was
	// removed during finalization.
	history := sink.History(clip.ID.String())
	require.NotEmpty(t, history)
	for i := 1; i < len(history); i++ {
		assert.GreaterOrEqual(t, history[i], history[i-1])
	}
	assert.Equal(t, 100, history[len(history)-1])
	_, present := sink.Get(clip.ID.String())
	assert.False(t, present)

	// Scratch directory reached empty state.
	entries, err := os.ReadDir(cfg.Storage.ScratchPath())
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestOrchestratorMergeWithIntroOutro(t *testing.T) {
	store := newMemStore()
	store.put("uploads/raw.webm", []byte("source-bytes"))
	store.put("aux/intro.mp3", []byte("INTRO"))
	store.put("aux/outro.mp3", []byte("OUTRO"))

	repo := newMemRepo()
	clip := &models.Clip{
		SourceKind:      models.SourceStoredObject,
		SourceLocator:   "uploads/raw.webm",
		StartSeconds:    10,
		DurationSeconds: 30,
		IntroKey:        "aux/intro.mp3",
		OutroKey:        "aux/outro.mp3",
		OutputKey:       "clips/final.mp3",
	}
	require.NoError(t, repo.Create(context.Background(), clip))

	logFile := t.TempDir() + "/invocations"
	cfg := testConfig(t, transcoderStub(t, logFile))
	sink := progress.NewMemorySink()

	orch := NewOrchestrator(repo, store, sink, cfg, nil)
	require.NoError(t, orch.Run(context.Background(), clip.ID, NewCancelToken()))

	// Two transcoder invocations: the transcode and the concat merge.
	assert.Equal(t, 2, invocationCount(t, logFile))

	got, err := repo.GetByID(context.Background(), clip.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClipStatusProcessed, got.Status)

	_, ok := store.get("clips/final.mp3")
	assert.True(t, ok)

	// The merge boundary announced itself in the status trail.
	assert.Contains(t, repo.statuses(), "processing:Adding Intro and Outro")
}

func TestOrchestratorDocumentNotFound(t *testing.T) {
	cfg := testConfig(t, "ffmpeg")
	cfg.Pipeline.DocumentRetryDelay = time.Millisecond

	orch := NewOrchestrator(newMemRepo(), newMemStore(), progress.NewMemorySink(), cfg, nil)
	err := orch.Run(context.Background(), models.NewULID(), NewCancelToken())
	assert.ErrorIs(t, err, ErrDocumentNotFound)
}

func TestOrchestratorRecordsErrorStatus(t *testing.T) {
	store := newMemStore() // source object missing: acquisition fails

	repo := newMemRepo()
	clip := &models.Clip{
		SourceKind:    models.SourceStoredObject,
		SourceLocator: "uploads/missing.webm",
		OutputKey:     "clips/final.mp3",
	}
	require.NoError(t, repo.Create(context.Background(), clip))

	cfg := testConfig(t, "ffmpeg")
	sink := progress.NewMemorySink()

	orch := NewOrchestrator(repo, store, sink, cfg, nil)
	err := orch.Run(context.Background(), clip.ID, NewCancelToken())
	require.Error(t, err)

	got, lookupErr := repo.GetByID(context.Background(), clip.ID)
	require.NoError(t, lookupErr)
	assert.Equal(t, models.ClipStatusError, got.Status)
	assert.NotEmpty(t, got.StatusMessage)

	// Finalization still removed the progress entry.
	_, present := sink.Get(clip.ID.String())
	assert.False(t, present)
}

func TestOrchestratorCancellation(t *testing.T) {
	store := newMemStore()
	store.put("uploads/raw.webm", []byte("source-bytes"))

	repo := newMemRepo()
	clip := &models.Clip{
		SourceKind:      models.SourceStoredObject,
		SourceLocator:   "uploads/raw.webm",
		StartSeconds:    10,
		DurationSeconds: 30,
		OutputKey:       "clips/final.mp3",
	}
	require.NoError(t, repo.Create(context.Background(), clip))

	// A transcoder that keeps printing position markers until terminated.
	slowStub := writeStub(t, "ffmpeg", `echo "  Duration: 00:10:00.00, start: 0.000000" >&2
i=0
while [ $i -lt 600 ]; do
  echo "size= 1KiB time=00:00:0$((i % 10)).00 bitrate= 1kbits/s" >&2
  sleep 0.05
  i=$((i + 1))
done
`)
	cfg := testConfig(t, slowStub)
	sink := progress.NewMemorySink()
	token := NewCancelToken()

	orch := NewOrchestrator(repo, store, sink, cfg, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- orch.Run(context.Background(), clip.ID, token) }()

	time.Sleep(300 * time.Millisecond)
	token.Cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(10 * time.Second):
		t.Fatal("job did not stop after cancellation")
	}

	// Scratch still reached empty state despite the cancellation.
	entries, err := os.ReadDir(cfg.Storage.ScratchPath())
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestOrchestratorRejectsConcurrentJob(t *testing.T) {
	id := models.NewULID()
	require.True(t, acquireJob(id))
	defer releaseJob(id)

	cfg := testConfig(t, "ffmpeg")
	orch := NewOrchestrator(newMemRepo(), newMemStore(), progress.NewMemorySink(), cfg, nil)
	err := orch.Run(context.Background(), id, NewCancelToken())
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)
}
