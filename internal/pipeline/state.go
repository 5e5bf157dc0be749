// Package pipeline sequences acquisition, transcode, and merge of one audio
// clip as cooperating external processes connected by streams.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/clipwave/clipwave/internal/models"
	"github.com/clipwave/clipwave/internal/progress"
	"github.com/clipwave/clipwave/internal/subproc"
)

// Stage represents a single step of the clip pipeline.
type Stage interface {
	// ID returns a unique identifier for the stage (e.g., "acquire").
	ID() string

	// Name returns the human-readable status message shown while the stage
	// runs (e.g., "Getting Data").
	Name() string

	// Execute performs the stage's work, reading and mutating shared state.
	Execute(ctx context.Context, state *State) error
}

// InputKind describes how the transcode stage receives the acquired input.
type InputKind int

const (
	// InputNone means acquisition has not produced an input yet.
	InputNone InputKind = iota
	// InputDirectURL is a seekable media URL the transcoder reads itself.
	InputDirectURL
	// InputLocalFile is a local file path.
	InputLocalFile
	// InputPipe is a live downloader process piped into the transcoder.
	InputPipe
)

// State holds all data shared between pipeline stages for one job.
type State struct {
	// Clip is the backing document this job works on.
	Clip *models.Clip

	// Token is the job's shared cancellation flag.
	Token *CancelToken

	// Scratch tracks transient files for final cleanup.
	Scratch *ScratchRegistry

	// Progress converts phase-local progress into the global value.
	Progress *progress.Aggregator

	// SetStatus updates the document's status message. Provided by the
	// orchestrator so stages never touch the document store directly.
	SetStatus func(ctx context.Context, message string) error

	// Logger carries the job correlation fields.
	Logger *slog.Logger

	// InputKind and the fields below are acquisition's outputs.
	InputKind InputKind

	// DirectURL is set for InputDirectURL.
	DirectURL string

	// LocalPath is set for InputLocalFile.
	LocalPath string

	// Downloader is set for InputPipe: a constructed, unstarted downloader
	// process whose stdout feeds the transcoder.
	Downloader *subproc.Channel

	// InputPreTrimmed is true when the local file already starts at the
	// requested offset (a section download), so the transcoder must not
	// seek again.
	InputPreTrimmed bool

	// ForceExactTrim is true when a section download overshot the requested
	// duration beyond tolerance and the transcoder must cut to exactly the
	// originally requested duration.
	ForceExactTrim bool

	// TranscodedPath is the transcode stage's local output when a merge
	// follows. Empty when the transcode streamed straight to storage.
	TranscodedPath string

	// IntroPath and OutroPath are local copies of the auxiliary clips,
	// fetched concurrently with the main content.
	IntroPath string
	OutroPath string

	// StartTime records when the job began.
	StartTime time.Time
}

// NewState creates pipeline state for one clip job.
func NewState(clip *models.Clip, token *CancelToken, scratch *ScratchRegistry, agg *progress.Aggregator, logger *slog.Logger) *State {
	if logger == nil {
		logger = slog.Default()
	}
	return &State{
		Clip:      clip,
		Token:     token,
		Scratch:   scratch,
		Progress:  agg,
		Logger:    logger,
		SetStatus: func(context.Context, string) error { return nil },
		StartTime: time.Now(),
	}
}

// Trim returns the job's requested trim window.
func (s *State) Trim() models.TrimWindow {
	return s.Clip.Trim()
}

// Duration returns the elapsed time since the job began.
func (s *State) Duration() time.Duration {
	return time.Since(s.StartTime)
}
