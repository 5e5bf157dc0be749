package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/ffmpeg"
	"github.com/clipwave/clipwave/internal/progress"
	"github.com/clipwave/clipwave/internal/storage"
	"github.com/clipwave/clipwave/internal/subproc"
)

// outputContentType is what published clips are stored as.
const outputContentType = "audio/mpeg"

// TranscodeStage drives the transcoder over the acquired input, applying
// the trim window, the audio cleanup chain, and the output codec
// parameters. When no merge follows, the transcoder streams straight into
// the storage sink; otherwise it writes a scratch file for the merge stage.
type TranscodeStage struct {
	store  storage.ObjectStore
	ffCfg  config.FFmpegConfig
	logger *slog.Logger
}

// NewTranscodeStage creates the transcode stage.
func NewTranscodeStage(store storage.ObjectStore, ffCfg config.FFmpegConfig, logger *slog.Logger) *TranscodeStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &TranscodeStage{
		store:  store,
		ffCfg:  ffCfg,
		logger: logger.With(slog.String("stage", "transcode")),
	}
}

// ID returns the stage identifier.
func (s *TranscodeStage) ID() string { return "transcode" }

// Name returns the status message shown while the stage runs.
func (s *TranscodeStage) Name() string { return "Transcoding" }

// Execute runs the transcoder over the acquired input.
func (s *TranscodeStage) Execute(ctx context.Context, state *State) error {
	if state.Token.Cancelled() {
		return ErrCancelled
	}

	trim := state.Trim()
	builder := ffmpeg.NewCommandBuilder(s.ffCfg.BinaryPath).
		HideBanner().
		Overwrite()

	// seekOffsetMillis is subtracted from the reported stream duration when
	// estimating how much media the transcoder will actually process.
	var seekOffsetMillis int64

	switch state.InputKind {
	case InputDirectURL:
		builder.InputSeek(trim.StartSeconds).Reconnect().Input(state.DirectURL)
		if trim.HasDuration() {
			builder.Duration(trim.DurationSeconds)
		}
		seekOffsetMillis = int64(trim.StartSeconds * 1000)

	case InputLocalFile:
		if state.InputPreTrimmed {
			// The section download already starts at the requested offset.
			builder.Input(state.LocalPath)
			if state.ForceExactTrim && trim.HasDuration() {
				builder.Duration(trim.DurationSeconds)
			}
		} else {
			builder.InputSeek(trim.StartSeconds).Input(state.LocalPath)
			if trim.HasDuration() {
				builder.Duration(trim.DurationSeconds)
			}
			seekOffsetMillis = int64(trim.StartSeconds * 1000)
		}

	case InputPipe:
		// A live pipe cannot be input-seeked; the transcoder decodes and
		// discards up to the offset instead.
		builder.Input(ffmpeg.StdinInput)
		builder.OutputSeek(trim.StartSeconds)
		if trim.HasDuration() {
			builder.Duration(trim.DurationSeconds)
		}
		seekOffsetMillis = int64(trim.StartSeconds * 1000)

	default:
		return fmt.Errorf("%w: no input acquired", ErrInvalidSource)
	}

	builder.DropVideo().
		NormalizeAudio().
		AudioParams(ffmpeg.AudioParams{
			Codec:      s.ffCfg.AudioCodec,
			Bitrate:    s.ffCfg.Bitrate,
			SampleRate: s.ffCfg.SampleRate,
		})

	opts := []subproc.Option{
		subproc.WithClassifier(ffmpeg.NewDiagnosticClassifier()),
		subproc.WithFatalPatterns(s.ffCfg.FatalPatterns),
		subproc.WithLogger(s.logger),
	}

	var sink storage.WriteSink
	mergeFollows := state.Clip.HasAuxClips()
	if mergeFollows {
		outPath, err := state.Scratch.CreateTempFile("content.mp3")
		if err != nil {
			return err
		}
		state.TranscodedPath = outPath
		builder.Output(outPath)
	} else {
		var err error
		sink, err = s.store.OpenWrite(ctx, state.Clip.OutputKey, outputContentType, map[string]string{
			"title": state.Clip.Title,
		})
		if err != nil {
			return &UploadError{Key: state.Clip.OutputKey, Err: err}
		}
		defer sink.Abort()
		builder.Format("mp3").Output(ffmpeg.StdoutOutput)
		opts = append(opts, subproc.WithStdout(sink))
	}

	var dlOut io.ReadCloser
	if state.InputKind == InputPipe {
		var err error
		dlOut, err = state.Downloader.StdoutPipe()
		if err != nil {
			return &subproc.SpawnError{Name: "downloader", Err: err}
		}
		opts = append(opts, subproc.WithStdin(dlOut))
	}

	ch := subproc.New("transcoder", builder.Binary(), builder.Build(), opts...)

	if state.InputKind == InputPipe {
		if err := state.Downloader.Start(ctx); err != nil {
			dlOut.Close()
			return err
		}
		// Downloader percent markers land in the acquisition band while the
		// transcoder reports its own phase from the same wall-clock window.
		go func() {
			for ev := range state.Downloader.Events() {
				if ev.Kind == subproc.EventPercent {
					state.Progress.Report(ctx, progress.PhaseAcquire, ev.Percent)
				}
			}
		}()
	}

	if err := ch.Start(ctx); err != nil {
		if state.InputKind == InputPipe {
			dlOut.Close()
			state.Downloader.Terminate()
			_ = state.Downloader.Wait()
		}
		return err
	}

	if dlOut != nil {
		// The transcoder inherits its own copy of the read end. Ours must go
		// away, or a transcoder that exits before draining the stream leaves
		// the pipe open and the downloader writing into it forever.
		dlOut.Close()
	}

	s.consumeEvents(ctx, state, ch, expectedOutputMillis(state), seekOffsetMillis)

	err := ch.Wait()

	if state.InputKind == InputPipe {
		if dlErr := s.settleDownloader(ctx, state, err); err == nil {
			err = dlErr
		}
	}

	if state.LocalPath != "" {
		state.Scratch.Release(state.LocalPath)
	}

	if state.Token.Cancelled() {
		return ErrCancelled
	}
	if err != nil {
		return err
	}

	if sink != nil {
		if err := sink.Complete(ctx); err != nil {
			return &UploadError{Key: state.Clip.OutputKey, Err: err}
		}
	}

	state.Progress.Report(ctx, progress.PhaseTranscode, 100)
	return nil
}

// consumeEvents converts the transcoder's diagnostic events into progress
// reports. The status message flips to the stage name only once the first
// position marker is observed, so a startup failure never shows a false
// "transcoding" state.
func (s *TranscodeStage) consumeEvents(ctx context.Context, state *State, ch *subproc.Channel, totalMillis, seekOffsetMillis int64) {
	statusFlipped := false
	for ev := range ch.Events() {
		switch ev.Kind {
		case subproc.EventTotalDuration:
			if totalMillis == 0 && ev.Millis > seekOffsetMillis {
				// The header reports the whole stream; the seek offset is
				// never decoded, so subtract it from the expected work.
				totalMillis = ev.Millis - seekOffsetMillis
			}
		case subproc.EventPosition:
			if !statusFlipped {
				statusFlipped = true
				if err := state.SetStatus(ctx, s.Name()); err != nil {
					s.logger.WarnContext(ctx, "status update failed",
						slog.String("error", err.Error()),
					)
				}
			}
			if totalMillis > 0 {
				state.Progress.Report(ctx, progress.PhaseTranscode,
					float64(ev.Millis)/float64(totalMillis)*100)
			}
		}
	}
}

// expectedOutputMillis returns the expected output length when the trim
// window pins it, or 0 when it must be learned from the duration marker.
func expectedOutputMillis(state *State) int64 {
	if trim := state.Trim(); trim.HasDuration() {
		return int64(trim.DurationSeconds * 1000)
	}
	return 0
}

// settleDownloader waits for the piped downloader after the transcoder has
// finished. When the transcoder failed first the downloader is terminated
// and its exit is informational; when the transcoder succeeded, a
// downloader failure means the input was truncated and is fatal.
func (s *TranscodeStage) settleDownloader(ctx context.Context, state *State, transcodeErr error) error {
	if transcodeErr != nil {
		state.Downloader.Terminate()
		if err := state.Downloader.Wait(); err != nil {
			s.logger.DebugContext(ctx, "downloader exit after transcoder failure",
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	if err := state.Downloader.Wait(); err != nil {
		var exit *subproc.ExitError
		if subproc.IsBenignPipeClosure(err) ||
			(errors.As(err, &exit) && exit.Signal == "SIGPIPE") {
			s.logger.DebugContext(ctx, "downloader pipe closed after completion")
			return nil
		}
		return fmt.Errorf("downloader: %w", err)
	}
	return nil
}
