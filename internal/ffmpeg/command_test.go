package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilderFileInput(t *testing.T) {
	args := NewCommandBuilder("ffmpeg").
		HideBanner().
		Overwrite().
		InputSeek(40).
		Input("/tmp/in.webm").
		Duration(20).
		DropVideo().
		NormalizeAudio().
		AudioParams(AudioParams{Codec: "libmp3lame", Bitrate: "192k", SampleRate: 44100}).
		Output("/tmp/out.mp3").
		Build()

	// The seek must precede the input so it is container-level.
	ssIdx := indexOf(t, args, "-ss")
	inIdx := indexOf(t, args, "-i")
	assert.Less(t, ssIdx, inIdx)
	assert.Equal(t, "40.000", args[ssIdx+1])
	assert.Equal(t, "/tmp/in.webm", args[inIdx+1])
	assert.Contains(t, args, "-vn")
	assert.Contains(t, args, "-af")
	assert.Equal(t, "/tmp/out.mp3", args[len(args)-1])
}

func TestCommandBuilderPipeInputSeeksAfter(t *testing.T) {
	args := NewCommandBuilder("ffmpeg").
		Input(StdinInput).
		OutputSeek(40).
		Duration(20).
		Format("mp3").
		Output(StdoutOutput).
		Build()

	inIdx := indexOf(t, args, "-i")
	ssIdx := indexOf(t, args, "-ss")
	assert.Greater(t, ssIdx, inIdx)
	assert.Equal(t, StdinInput, args[inIdx+1])
	assert.Equal(t, StdoutOutput, args[len(args)-1])
}

func TestCommandBuilderZeroSeekOmitted(t *testing.T) {
	args := NewCommandBuilder("").
		Input("/tmp/in.mp3").
		Output("/tmp/out.mp3").
		Build()
	assert.NotContains(t, args, "-ss")
	assert.NotContains(t, args, "-t")
}

func TestCommandBuilderFilterChainOrder(t *testing.T) {
	args := NewCommandBuilder("ffmpeg").
		Input("in").
		NormalizeAudio().
		Output("out").
		Build()

	afIdx := indexOf(t, args, "-af")
	chain := args[afIdx+1]
	assert.Equal(t,
		"afftdn=nf=-25,acompressor=threshold=-18dB:ratio=3:attack=20:release=250,loudnorm=I=-16:TP=-1.5:LRA=11,stereotools=balance_in=0",
		chain)
}

func TestCommandBuilderConcat(t *testing.T) {
	args := NewCommandBuilder("ffmpeg").
		HideBanner().
		Overwrite().
		ConcatInput("/tmp/list.txt").
		StreamCopy().
		Output("/tmp/merged.mp3").
		Build()

	assert.Contains(t, args, "concat")
	safeIdx := indexOf(t, args, "-safe")
	assert.Equal(t, "0", args[safeIdx+1])
	inIdx := indexOf(t, args, "-i")
	assert.Equal(t, "/tmp/list.txt", args[inIdx+1])
	cIdx := indexOf(t, args, "-c")
	assert.Equal(t, "copy", args[cIdx+1])
}

func indexOf(t *testing.T, args []string, flag string) int {
	t.Helper()
	for i, a := range args {
		if a == flag {
			return i
		}
	}
	require.Failf(t, "flag not found", "%s not in %v", flag, args)
	return -1
}
