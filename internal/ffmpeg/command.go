package ffmpeg

import (
	"strconv"
	"strings"
)

// StdinInput and StdoutOutput are the transcoder's pipe pseudo-paths.
const (
	StdinInput   = "pipe:0"
	StdoutOutput = "pipe:1"
)

// AudioParams are the output encoding parameters.
type AudioParams struct {
	Codec      string
	Bitrate    string
	SampleRate int
}

// CommandBuilder builds transcoder argument vectors with a fluent API.
// Arguments stay discrete tokens end to end; nothing is shell-interpreted.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	input      string
	filterArgs []string
	outputArgs []string
	output     string
	logLevel   string
}

// NewCommandBuilder creates a builder for the transcoder at ffmpegPath.
func NewCommandBuilder(ffmpegPath string) *CommandBuilder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &CommandBuilder{
		binary:   ffmpegPath,
		logLevel: "info",
	}
}

// Binary returns the transcoder path the builder was created with.
func (b *CommandBuilder) Binary() string {
	return b.binary
}

// LogLevel sets the transcoder log level. Position and duration markers are
// emitted at "info"; lowering it silences progress.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// HideBanner hides the startup banner.
func (b *CommandBuilder) HideBanner() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// Overwrite enables output file overwriting.
func (b *CommandBuilder) Overwrite() *CommandBuilder {
	b.globalArgs = append(b.globalArgs, "-y")
	return b
}

// InputSeek seeks before decoding begins. Placed before -i, the transcoder
// uses container-level (or range-request-based, for URLs) input seeking,
// which skips data instead of decoding and discarding it. Only valid for
// seekable inputs; use OutputSeek when the input is a live pipe.
func (b *CommandBuilder) InputSeek(seconds float64) *CommandBuilder {
	if seconds > 0 {
		b.inputArgs = append(b.inputArgs, "-ss", FormatSeconds(seconds))
	}
	return b
}

// Reconnect enables automatic reconnection for network inputs.
func (b *CommandBuilder) Reconnect() *CommandBuilder {
	b.inputArgs = append(b.inputArgs,
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5")
	return b
}

// Input sets the input source: a path, a URL, or StdinInput.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.input = input
	return b
}

// OutputSeek seeks after the input argument. The transcoder decodes and
// discards up to the offset, which is the only option when the input
// arrives on a pipe.
func (b *CommandBuilder) OutputSeek(seconds float64) *CommandBuilder {
	if seconds > 0 {
		b.outputArgs = append(b.outputArgs, "-ss", FormatSeconds(seconds))
	}
	return b
}

// Duration limits the output length.
func (b *CommandBuilder) Duration(seconds float64) *CommandBuilder {
	if seconds > 0 {
		b.outputArgs = append(b.outputArgs, "-t", FormatSeconds(seconds))
	}
	return b
}

// DropVideo discards all video streams.
func (b *CommandBuilder) DropVideo() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-vn")
	return b
}

// AudioFilter adds a filter to the audio filter chain.
func (b *CommandBuilder) AudioFilter(filter string) *CommandBuilder {
	b.filterArgs = append(b.filterArgs, filter)
	return b
}

// NormalizeAudio applies the fixed cleanup chain: noise reduction, dynamics
// compression, loudness normalization, and stereo balancing, in that order.
func (b *CommandBuilder) NormalizeAudio() *CommandBuilder {
	return b.
		AudioFilter("afftdn=nf=-25").
		AudioFilter("acompressor=threshold=-18dB:ratio=3:attack=20:release=250").
		AudioFilter("loudnorm=I=-16:TP=-1.5:LRA=11").
		AudioFilter("stereotools=balance_in=0")
}

// AudioParams sets the output codec, bitrate, and sample rate.
func (b *CommandBuilder) AudioParams(p AudioParams) *CommandBuilder {
	if p.Codec != "" {
		b.outputArgs = append(b.outputArgs, "-c:a", p.Codec)
	}
	if p.Bitrate != "" {
		b.outputArgs = append(b.outputArgs, "-b:a", p.Bitrate)
	}
	if p.SampleRate > 0 {
		b.outputArgs = append(b.outputArgs, "-ar", strconv.Itoa(p.SampleRate))
	}
	return b
}

// StreamCopy repackages streams without re-encoding. Fast, but cuts only
// align to keyframes; never combined with filters.
func (b *CommandBuilder) StreamCopy() *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c", "copy")
	return b
}

// ConcatInput configures the input as a concat list file. The list must be
// written with WriteConcatList so unsafe paths are quoted correctly.
func (b *CommandBuilder) ConcatInput(listPath string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, "-f", "concat", "-safe", "0")
	b.input = listPath
	return b
}

// Format forces the output container format, required when the output is a
// pipe and the transcoder cannot infer it from a file extension.
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-f", format)
	return b
}

// Output sets the output destination: a path or StdoutOutput.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Build assembles the argument vector.
func (b *CommandBuilder) Build() []string {
	args := []string{"-loglevel", b.logLevel}
	args = append(args, b.globalArgs...)
	args = append(args, b.inputArgs...)
	args = append(args, "-i", b.input)
	if len(b.filterArgs) > 0 {
		args = append(args, "-af", strings.Join(b.filterArgs, ","))
	}
	args = append(args, b.outputArgs...)
	args = append(args, b.output)
	return args
}
