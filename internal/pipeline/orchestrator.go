package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clipwave/clipwave/internal/config"
	"github.com/clipwave/clipwave/internal/ffmpeg"
	"github.com/clipwave/clipwave/internal/models"
	"github.com/clipwave/clipwave/internal/progress"
	"github.com/clipwave/clipwave/internal/repository"
	"github.com/clipwave/clipwave/internal/storage"
)

// activeJobs tracks which clips have pipelines running.
var (
	activeJobs   = make(map[models.ULID]bool)
	activeJobsMu sync.Mutex
)

// Orchestrator composes the acquisition, transcode, and merge stages into
// one job, manages the status state machine, and guarantees finalization
// regardless of outcome.
type Orchestrator struct {
	repo   repository.ClipRepository
	store  storage.ObjectStore
	sink   progress.Sink
	cfg    *config.Config
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator. All collaborators are injected;
// the orchestrator holds no global clients.
func NewOrchestrator(repo repository.ClipRepository, store storage.ObjectStore, sink progress.Sink, cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		repo:   repo,
		store:  store,
		sink:   sink,
		cfg:    cfg,
		logger: logger,
	}
}

// Run executes the whole pipeline for one clip. It either completes with
// the document at PROCESSED or returns a typed error with the document at
// ERROR; all output is side-effected into the storage, document, and
// progress sinks.
func (o *Orchestrator) Run(ctx context.Context, clipID models.ULID, token *CancelToken) error {
	if !acquireJob(clipID) {
		return ErrJobAlreadyRunning
	}
	defer releaseJob(clipID)

	logger := o.logger.With(slog.String("clip_id", clipID.String()))

	ctx, cancel := token.Bind(ctx)
	defer cancel()

	clip, err := o.awaitDocument(ctx, clipID)
	if err != nil {
		return err
	}

	scratch := NewScratchRegistry(o.cfg.Storage.ScratchPath(), logger)
	agg := progress.NewAggregator(o.sink, clipID.String(), logger)

	acquireBand, transcodeBand := progress.PlanBands(clip.Trim(), o.cfg.Pipeline.AcquireSpeedRatio)
	agg.SetRange(progress.PhaseAcquire, acquireBand)
	agg.SetRange(progress.PhaseTranscode, transcodeBand)

	state := NewState(clip, token, scratch, agg, logger)
	state.SetStatus = func(ctx context.Context, message string) error {
		return o.repo.UpdateStatus(ctx, clipID, models.ClipStatusProcessing, message)
	}

	// Finalization runs on every exit path: the progress-sink entry goes
	// away and every remaining scratch file is released, independent of
	// outcome or cancellation state.
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		agg.Remove(cleanupCtx)
		scratch.ReleaseAll()
	}()

	logger.InfoContext(ctx, "starting clip job",
		slog.String("source_kind", string(clip.SourceKind)),
		slog.Bool("has_aux_clips", clip.HasAuxClips()),
	)

	runErr := o.runStages(ctx, state)
	if runErr != nil {
		if token.Cancelled() || errors.Is(runErr, context.Canceled) {
			runErr = ErrCancelled
		}
		o.recordError(context.WithoutCancel(ctx), clipID, runErr, logger)
		return runErr
	}

	if err := o.repo.UpdateFields(ctx, clipID, map[string]any{
		"status":         models.ClipStatusProcessed,
		"status_message": "",
		"progress":       100,
	}); err != nil {
		o.recordError(context.WithoutCancel(ctx), clipID, err, logger)
		return err
	}
	agg.Finish(ctx)

	logger.InfoContext(ctx, "clip job completed",
		slog.Duration("duration", state.Duration()),
	)
	return nil
}

// runStages drives the stage sequence with auxiliary-clip fetches fanned
// out alongside the main acquisition and transcode.
func (o *Orchestrator) runStages(ctx context.Context, state *State) error {
	clip := state.Clip

	if err := state.SetStatus(ctx, "Getting Data"); err != nil {
		return err
	}

	// A stage failure abandons any in-flight auxiliary fetches.
	auxCtx, auxCancel := context.WithCancel(ctx)
	defer auxCancel()
	auxDone := o.fetchAuxClips(auxCtx, state)

	acquire := NewAcquisitionStage(o.store, o.cfg.Ytdlp,
		ffmpeg.NewProber(o.cfg.FFmpeg.ProbePath),
		o.cfg.Pipeline.DurationTolerance, state.Logger)
	if err := o.executeStage(ctx, acquire, state); err != nil {
		auxCancel()
		<-auxDone
		return err
	}

	transcode := NewTranscodeStage(o.store, o.cfg.FFmpeg, state.Logger)
	if err := o.executeStage(ctx, transcode, state); err != nil {
		auxCancel()
		<-auxDone
		return err
	}

	if err := <-auxDone; err != nil {
		return err
	}

	if clip.HasAuxClips() {
		merge := NewMergeStage(o.store, o.cfg.FFmpeg, state.Logger)
		if err := state.SetStatus(ctx, merge.Name()); err != nil {
			return err
		}
		if err := o.executeStage(ctx, merge, state); err != nil {
			return err
		}
	}
	return nil
}

// executeStage runs a single stage with logging around it.
func (o *Orchestrator) executeStage(ctx context.Context, stage Stage, state *State) error {
	start := time.Now()
	state.Logger.InfoContext(ctx, "executing stage", slog.String("stage_id", stage.ID()))

	if err := stage.Execute(ctx, state); err != nil {
		state.Logger.ErrorContext(ctx, "stage failed",
			slog.String("stage_id", stage.ID()),
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return NewStageError(stage.ID(), stage.Name(), err)
	}

	state.Logger.InfoContext(ctx, "stage completed",
		slog.String("stage_id", stage.ID()),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// fetchAuxClips downloads the intro and outro, when present, concurrently
// with the main content work. The returned channel yields the first fetch
// error (or nil) exactly once.
func (o *Orchestrator) fetchAuxClips(ctx context.Context, state *State) <-chan error {
	done := make(chan error, 1)
	clip := state.Clip

	if !clip.HasAuxClips() {
		done <- nil
		return done
	}

	type fetch struct {
		key  string
		dest *string
	}
	var fetches []fetch
	if clip.IntroKey != "" {
		fetches = append(fetches, fetch{clip.IntroKey, &state.IntroPath})
	}
	if clip.OutroKey != "" {
		fetches = append(fetches, fetch{clip.OutroKey, &state.OutroPath})
	}

	go func() {
		var wg sync.WaitGroup
		errs := make([]error, len(fetches))
		for i, f := range fetches {
			wg.Add(1)
			go func() {
				defer wg.Done()
				path, err := state.Scratch.CreateTempFile("aux.mp3")
				if err != nil {
					errs[i] = err
					return
				}
				if err := o.store.Download(ctx, f.key, path); err != nil {
					errs[i] = fmt.Errorf("fetching auxiliary clip %s: %w", f.key, err)
					return
				}
				*f.dest = path
			}()
		}
		wg.Wait()
		done <- errors.Join(errs...)
	}()
	return done
}

// awaitDocument polls for the backing document, tolerating read-after-write
// lag in the document store with a bounded retry loop.
func (o *Orchestrator) awaitDocument(ctx context.Context, clipID models.ULID) (*models.Clip, error) {
	retries := o.cfg.Pipeline.DocumentRetries
	delay := o.cfg.Pipeline.DocumentRetryDelay

	for attempt := 0; ; attempt++ {
		clip, err := o.repo.GetByID(ctx, clipID)
		if err == nil && clip != nil {
			return clip, nil
		}
		if err != nil {
			o.logger.WarnContext(ctx, "document lookup failed",
				slog.String("clip_id", clipID.String()),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
		}
		if attempt >= retries {
			return nil, ErrDocumentNotFound
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ErrCancelled
		}
	}
}

// recordError writes the terminal ERROR status. Best-effort: a failure to
// record must not mask the original error being propagated.
func (o *Orchestrator) recordError(ctx context.Context, clipID models.ULID, jobErr error, logger *slog.Logger) {
	if err := o.repo.UpdateStatus(ctx, clipID, models.ClipStatusError, jobErr.Error()); err != nil {
		logger.ErrorContext(ctx, "failed to record error status",
			slog.String("job_error", jobErr.Error()),
			slog.String("error", err.Error()),
		)
	}
}

func acquireJob(id models.ULID) bool {
	activeJobsMu.Lock()
	defer activeJobsMu.Unlock()
	if activeJobs[id] {
		return false
	}
	activeJobs[id] = true
	return true
}

func releaseJob(id models.ULID) {
	activeJobsMu.Lock()
	defer activeJobsMu.Unlock()
	delete(activeJobs, id)
}
