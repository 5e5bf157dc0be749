package pipeline

import (
	"context"
	"log/slog"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/ffmpeg"
	"github.com/clipwave/clipwave/internal/progress"
	"github.com/clipwave/clipwave/internal/storage"
	"github.com/clipwave/clipwave/internal/subproc"
)

// MergeStage concatenates the intro, transcoded content, and outro into the
// final published object using the transcoder's stream-copy concat mode.
// Only invoked when at least one auxiliary clip exists; otherwise the
// transcoded output already is the final artifact.
type MergeStage struct {
	store  storage.ObjectStore
	ffCfg  config.FFmpegConfig
	logger *slog.Logger
}

// NewMergeStage creates the merge stage.
func NewMergeStage(store storage.ObjectStore, ffCfg config.FFmpegConfig, logger *slog.Logger) *MergeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &MergeStage{
		store:  store,
		ffCfg:  ffCfg,
		logger: logger.With(slog.String("stage", "merge")),
	}
}

// ID returns the stage identifier.
func (s *MergeStage) ID() string { return "merge" }

// Name returns the status message shown while the stage runs.
func (s *MergeStage) Name() string { return "Adding Intro and Outro" }

// Execute concatenates the ordered inputs and streams the result into the
// storage sink.
func (s *MergeStage) Execute(ctx context.Context, state *State) error {
	if state.Token.Cancelled() {
		return ErrCancelled
	}

	// Order fixed: intro, content, outro, with absent clips skipped.
	var paths []string
	if state.IntroPath != "" {
		paths = append(paths, state.IntroPath)
	}
	paths = append(paths, state.TranscodedPath)
	if state.OutroPath != "" {
		paths = append(paths, state.OutroPath)
	}

	listPath, err := state.Scratch.CreateTempFile("concat.txt")
	if err != nil {
		return err
	}
	if err := ffmpeg.WriteConcatList(listPath, paths); err != nil {
		return err
	}

	sink, err := s.store.OpenWrite(ctx, state.Clip.OutputKey, outputContentType, map[string]string{
		"title": state.Clip.Title,
	})
	if err != nil {
		return &UploadError{Key: state.Clip.OutputKey, Err: err}
	}
	defer sink.Abort()

	builder := ffmpeg.NewCommandBuilder(s.ffCfg.BinaryPath).
		HideBanner().
		Overwrite().
		ConcatInput(listPath).
		StreamCopy().
		Format("mp3").
		Output(ffmpeg.StdoutOutput)

	ch := subproc.New("transcoder", builder.Binary(), builder.Build(),
		subproc.WithClassifier(ffmpeg.NewDiagnosticClassifier()),
		subproc.WithFatalPatterns(s.ffCfg.FatalPatterns),
		subproc.WithStdout(sink),
		subproc.WithLogger(s.logger),
	)
	if err := ch.Start(ctx); err != nil {
		return err
	}

	// Position markers scale against the concat output's own duration, which
	// includes the intro and outro. The content length alone would undercount
	// the total and report completion while the outro is still being written.
	var totalMillis int64
	for ev := range ch.Events() {
		if ev.Kind == subproc.EventTotalDuration && totalMillis == 0 {
			totalMillis = ev.Millis
		}
		if ev.Kind == subproc.EventPosition && totalMillis > 0 {
			state.Progress.Report(ctx, progress.PhaseMerge,
				float64(ev.Millis)/float64(totalMillis)*100)
		}
	}

	if err := ch.Wait(); err != nil {
		return err
	}
	if state.Token.Cancelled() {
		return ErrCancelled
	}

	if err := sink.Complete(ctx); err != nil {
		return &UploadError{Key: state.Clip.OutputKey, Err: err}
	}
	return nil
}
