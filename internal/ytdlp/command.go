// Package ytdlp builds and observes invocations of the external downloader.
package ytdlp

import (
	"fmt"
)

// StdoutOutput streams the downloaded media to stdout.
const StdoutOutput = "-"

// DefaultFormat prefers a non-fragmented audio stream; fragmented (DASH)
// formats cannot be piped incrementally.
const DefaultFormat = "bestaudio[protocol^=http]/bestaudio/best"

// CommandBuilder builds downloader argument vectors.
type CommandBuilder struct {
	binary   string
	format   string
	cookies  string
	sections []string
	keyframe bool
	output   string
	url      string
}

// NewCommandBuilder creates a builder for the downloader at binaryPath.
func NewCommandBuilder(binaryPath string) *CommandBuilder {
	if binaryPath == "" {
		binaryPath = "yt-dlp"
	}
	return &CommandBuilder{binary: binaryPath}
}

// Binary returns the downloader path the builder was created with.
func (b *CommandBuilder) Binary() string {
	return b.binary
}

// Format sets the format selector passed to -f.
func (b *CommandBuilder) Format(format string) *CommandBuilder {
	b.format = format
	return b
}

// Cookies points the downloader at a cookies file, when the source needs
// an authenticated session.
func (b *CommandBuilder) Cookies(path string) *CommandBuilder {
	b.cookies = path
	return b
}

// Section restricts the download to the [start, start+duration) window.
// The downloader re-encodes cut points so the boundaries are precise, but
// the resulting duration can still drift by a second or two on sources
// with sparse keyframes.
func (b *CommandBuilder) Section(startSeconds, durationSeconds float64) *CommandBuilder {
	b.sections = append(b.sections,
		fmt.Sprintf("*%.2f-%.2f", startSeconds, startSeconds+durationSeconds))
	b.keyframe = true
	return b
}

// SectionFrom restricts the download to everything at or after startSeconds.
func (b *CommandBuilder) SectionFrom(startSeconds float64) *CommandBuilder {
	b.sections = append(b.sections, fmt.Sprintf("*%.2f-inf", startSeconds))
	b.keyframe = true
	return b
}

// Output sets the output target: a path template or StdoutOutput.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// URL sets the page or media URL to download.
func (b *CommandBuilder) URL(url string) *CommandBuilder {
	b.url = url
	return b
}

// Build assembles the argument vector.
func (b *CommandBuilder) Build() []string {
	args := []string{"--no-warnings", "--newline"}
	if b.format != "" {
		args = append(args, "-f", b.format)
	}
	if b.cookies != "" {
		args = append(args, "--cookies", b.cookies)
	}
	for _, s := range b.sections {
		args = append(args, "--download-sections", s)
	}
	if b.keyframe {
		args = append(args, "--force-keyframes-at-cuts")
	}
	if b.output != "" {
		args = append(args, "-o", b.output)
	}
	args = append(args, b.url)
	return args
}
