package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipwave/clipwave/internal/subproc"
)

func TestDiagnosticClassifierDuration(t *testing.T) {
	classify := NewDiagnosticClassifier()

	events := classify("  Duration: 00:03:20.05, start: 0.000000, bitrate: 128 kb/s")
	require.Len(t, events, 1)
	assert.Equal(t, subproc.EventTotalDuration, events[0].Kind)
	assert.Equal(t, int64(200050), events[0].Millis)

	// Only the first header counts. Later inputs may print their own.
	events = classify("  Duration: 00:00:05.00, start: 0.000000")
	assert.Empty(t, events)
}

func TestDiagnosticClassifierPosition(t *testing.T) {
	classify := NewDiagnosticClassifier()

	events := classify("size=     512KiB time=00:00:30.72 bitrate= 136.5kbits/s speed=15.1x")
	require.Len(t, events, 1)
	assert.Equal(t, subproc.EventPosition, events[0].Kind)
	assert.Equal(t, int64(30720), events[0].Millis)
}

func TestDiagnosticClassifierIgnoresNoise(t *testing.T) {
	classify := NewDiagnosticClassifier()
	assert.Empty(t, classify("Stream mapping:"))
	assert.Empty(t, classify("  Stream #0:0 -> #0:0 (opus (native) -> mp3 (libmp3lame))"))
	assert.Empty(t, classify(""))
}
