package ytdlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipwave/clipwave/internal/subproc"
)

func TestCommandBuilderSection(t *testing.T) {
	args := NewCommandBuilder("yt-dlp").
		Format(DefaultFormat).
		Section(40, 20).
		Output("/scratch/raw.%(ext)s").
		URL("https://example.com/watch?v=abc").
		Build()

	secIdx := -1
	for i, a := range args {
		if a == "--download-sections" {
			secIdx = i
		}
	}
	require.NotEqual(t, -1, secIdx)
	assert.Equal(t, "*40.00-60.00", args[secIdx+1])
	assert.Contains(t, args, "--force-keyframes-at-cuts")
	assert.Equal(t, "https://example.com/watch?v=abc", args[len(args)-1])
}

func TestCommandBuilderPipeOutput(t *testing.T) {
	args := NewCommandBuilder("").
		Format("bestaudio").
		Output(StdoutOutput).
		URL("https://example.com/v").
		Build()

	assert.Contains(t, args, "-o")
	assert.Contains(t, args, "-")
	assert.NotContains(t, args, "--download-sections")
	assert.NotContains(t, args, "--force-keyframes-at-cuts")
}

func TestCommandBuilderCookies(t *testing.T) {
	args := NewCommandBuilder("yt-dlp").
		Cookies("/etc/clipwave/cookies.txt").
		URL("https://example.com/v").
		Build()
	assert.Contains(t, args, "--cookies")
	assert.Contains(t, args, "/etc/clipwave/cookies.txt")
}

func TestDiagnosticClassifier(t *testing.T) {
	classify := NewDiagnosticClassifier()

	events := classify("[download]  42.3% of 10.00MiB at 2.00MiB/s ETA 00:03")
	require.Len(t, events, 1)
	assert.Equal(t, subproc.EventPercent, events[0].Kind)
	assert.InDelta(t, 42.3, events[0].Percent, 0.001)

	assert.Empty(t, classify("[download] Destination: raw.webm"))
	assert.Empty(t, classify("[info] abc: Downloading 1 format(s)"))
}

func TestMediaInfoDirectlyStreamable(t *testing.T) {
	tests := []struct {
		name string
		info MediaInfo
		want bool
	}{
		{"plain https", MediaInfo{URL: "https://cdn/x.webm", Protocol: "https"}, true},
		{"no protocol reported", MediaInfo{URL: "https://cdn/x.webm"}, true},
		{"dash fragments", MediaInfo{URL: "https://cdn/x", Protocol: "http_dash_segments"}, false},
		{"m3u8", MediaInfo{URL: "https://cdn/x.m3u8", Protocol: "m3u8_native"}, false},
		{"live", MediaInfo{URL: "https://cdn/x", Protocol: "https", IsLive: true}, false},
		{"no url", MediaInfo{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.info.DirectlyStreamable())
		})
	}
}
