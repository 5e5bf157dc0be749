package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/models"
)

func TestMergeProgressScalesToConcatDuration(t *testing.T) {
	// 30s of content with intro and outro concatenated into a 50s output.
	// Halfway through the concat the job is at 50 percent of the merge band,
	// not done, even though the position already exceeds the content length.
	clip := &models.Clip{
		SourceKind:      models.SourceRemoteURL,
		SourceLocator:   "https://example.com/watch?v=abc",
		DurationSeconds: 30,
		OutputKey:       "clips/merged.mp3",
	}
	clip.ID = models.NewULID()
	state, sink := newAcquireState(t, clip)
	state.TranscodedPath = "content.mp3"
	state.IntroPath = "intro.mp3"
	state.OutroPath = "outro.mp3"

	ff := writeStub(t, "ffmpeg", `echo "  Duration: 00:00:50.00, start: 0.000000, bitrate: 128 kb/s" >&2
echo "size= 1KiB time=00:00:25.00 bitrate= 128.0kbits/s" >&2
printf 'MERGED-AUDIO'
`)
	store := newMemStore()
	stage := NewMergeStage(store, config.FFmpegConfig{BinaryPath: ff}, nil)
	require.NoError(t, stage.Execute(context.Background(), state))

	data, ok := store.get("clips/merged.mp3")
	require.True(t, ok)
	assert.Equal(t, "MERGED-AUDIO", string(data))

	history := sink.History(clip.ID.String())
	require.NotEmpty(t, history)
	assert.Equal(t, 99, history[len(history)-1])
	for _, v := range history {
		assert.LessOrEqual(t, v, 99, "merge reports never claim completion")
	}
}
