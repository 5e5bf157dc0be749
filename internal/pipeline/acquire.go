package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/ffmpeg"
	"github.com/clipwave/clipwave/internal/models"
	"github.com/clipwave/clipwave/internal/progress"
	"github.com/clipwave/clipwave/internal/storage"
	"github.com/clipwave/clipwave/internal/subproc"
	"github.com/clipwave/clipwave/internal/ytdlp"
)

// AcquisitionStage obtains the input bytes for the transcode stage.
//
// For remote sources three policies apply in priority order: resolve a
// directly seekable media URL and let the transcoder input-seek it; fall
// back to a precise section download when a trim is requested; pipe the full
// stream into the transcoder when it is not. Stored objects are copied to a
// scratch file.
type AcquisitionStage struct {
	store     storage.ObjectStore
	ytdlpCfg  config.YtdlpConfig
	prober    *ffmpeg.Prober
	tolerance float64
	logger    *slog.Logger
}

// NewAcquisitionStage creates the acquisition stage.
func NewAcquisitionStage(store storage.ObjectStore, ytdlpCfg config.YtdlpConfig, prober *ffmpeg.Prober, toleranceSeconds float64, logger *slog.Logger) *AcquisitionStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &AcquisitionStage{
		store:     store,
		ytdlpCfg:  ytdlpCfg,
		prober:    prober,
		tolerance: toleranceSeconds,
		logger:    logger.With(slog.String("stage", "acquire")),
	}
}

// ID returns the stage identifier.
func (s *AcquisitionStage) ID() string { return "acquire" }

// Name returns the status message shown while the stage runs.
func (s *AcquisitionStage) Name() string { return "Getting Data" }

// Execute resolves the audio source into one of the three transcoder input
// shapes and records it on the shared state.
func (s *AcquisitionStage) Execute(ctx context.Context, state *State) error {
	if state.Token.Cancelled() {
		return ErrCancelled
	}

	src := state.Clip.Source()
	switch src.Kind {
	case models.SourceStoredObject:
		return s.copyStoredObject(ctx, state, src.Locator)
	case models.SourceRemoteURL:
		return s.acquireRemote(ctx, state, src.Locator)
	default:
		return fmt.Errorf("%w: unknown source kind %q", ErrInvalidSource, src.Kind)
	}
}

// copyStoredObject downloads the object into a scratch file.
func (s *AcquisitionStage) copyStoredObject(ctx context.Context, state *State, key string) error {
	hint := "source" + filepath.Ext(key)
	path, err := state.Scratch.CreateTempFile(hint)
	if err != nil {
		return err
	}

	if err := s.store.Download(ctx, key, path); err != nil {
		return fmt.Errorf("downloading stored object %s: %w", key, err)
	}

	state.InputKind = InputLocalFile
	state.LocalPath = path
	state.Progress.Report(ctx, progress.PhaseAcquire, 100)

	s.logger.InfoContext(ctx, "stored object copied",
		slog.String("key", key),
		slog.String("path", path),
	)
	return nil
}

// acquireRemote tries direct-URL resolution first; failures fall back to a
// section download (trim requested) or full-stream pass-through (no trim),
// whose own failures are fatal to the job.
func (s *AcquisitionStage) acquireRemote(ctx context.Context, state *State, url string) error {
	builder := s.newBuilder()

	info, err := builder.Resolve(ctx, url)
	if err == nil && info.DirectlyStreamable() {
		state.InputKind = InputDirectURL
		state.DirectURL = info.URL
		state.Progress.Report(ctx, progress.PhaseAcquire, 100)
		s.logger.InfoContext(ctx, "resolved direct media url",
			slog.String("protocol", info.Protocol),
			slog.Float64("duration", info.Duration),
		)
		return nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "direct url resolution failed, falling back",
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.InfoContext(ctx, "media not directly streamable, falling back",
			slog.String("protocol", info.Protocol),
		)
	}

	if state.Token.Cancelled() {
		return ErrCancelled
	}

	if trim := state.Trim(); !trim.IsZero() {
		return s.sectionDownload(ctx, state, url, trim)
	}
	return s.preparePassThrough(state, url)
}

// sectionDownload fetches only the requested time range, re-encoding at cut
// boundaries for frame-accurate bounds, then verifies the actual duration.
func (s *AcquisitionStage) sectionDownload(ctx context.Context, state *State, url string, trim models.TrimWindow) error {
	path, err := state.Scratch.CreateTempFile("section.m4a")
	if err != nil {
		return err
	}

	builder := s.newBuilder().Output(path).URL(url)
	if trim.HasDuration() {
		builder.Section(trim.StartSeconds, trim.DurationSeconds)
	} else {
		builder.SectionFrom(trim.StartSeconds)
	}

	ch := subproc.New("downloader", builder.Binary(), builder.Build(),
		subproc.WithClassifier(ytdlp.NewDiagnosticClassifier()),
		subproc.WithFatalPatterns(ytdlp.FatalPatterns),
		subproc.WithLogger(s.logger),
	)
	if err := ch.Start(ctx); err != nil {
		return err
	}
	for ev := range ch.Events() {
		if ev.Kind == subproc.EventPercent {
			state.Progress.Report(ctx, progress.PhaseAcquire, ev.Percent)
		}
	}
	if err := ch.Wait(); err != nil {
		return fmt.Errorf("section download: %w", err)
	}
	if state.Token.Cancelled() {
		return ErrCancelled
	}

	if trim.HasDuration() {
		actual, err := s.prober.Duration(ctx, path)
		if err != nil {
			// Unverifiable bounds get the corrective trim; cutting an
			// already-exact section to the same length is harmless.
			s.logger.WarnContext(ctx, "could not verify section duration",
				slog.String("error", err.Error()),
			)
			state.ForceExactTrim = true
		} else if actual-trim.DurationSeconds > s.tolerance {
			s.logger.InfoContext(ctx, "section overshot requested duration",
				slog.Float64("actual", actual),
				slog.Float64("requested", trim.DurationSeconds),
			)
			state.ForceExactTrim = true
		}
	}

	state.InputKind = InputLocalFile
	state.LocalPath = path
	state.InputPreTrimmed = true
	state.Progress.Report(ctx, progress.PhaseAcquire, 100)
	return nil
}

// preparePassThrough constructs, without starting, a downloader process
// whose stdout will be piped into the transcoder. The transcode stage owns
// both process lifecycles so neither side blocks the other.
func (s *AcquisitionStage) preparePassThrough(state *State, url string) error {
	builder := s.newBuilder().Output(ytdlp.StdoutOutput).URL(url)

	state.InputKind = InputPipe
	state.Downloader = subproc.New("downloader", builder.Binary(), builder.Build(),
		subproc.WithClassifier(ytdlp.NewDiagnosticClassifier()),
		subproc.WithFatalPatterns(ytdlp.FatalPatterns),
		subproc.WithLogger(s.logger),
	)
	return nil
}

func (s *AcquisitionStage) newBuilder() *ytdlp.CommandBuilder {
	format := s.ytdlpCfg.Format
	if format == "" {
		format = ytdlp.DefaultFormat
	}
	b := ytdlp.NewCommandBuilder(s.ytdlpCfg.BinaryPath).Format(format)
	if s.ytdlpCfg.CookieFile != "" {
		b.Cookies(s.ytdlpCfg.CookieFile)
	}
	return b
}
