package progress

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/clipwave/clipwave/internal/models"
)

// Phase identifies one unit of the pipeline with its own 0-100 progress scale.
type Phase string

const (
	// PhaseAcquire covers obtaining the input bytes.
	PhaseAcquire Phase = "acquire"
	// PhaseTranscode covers the transcode of the acquired input.
	PhaseTranscode Phase = "transcode"
	// PhaseMerge covers intro/outro concatenation.
	PhaseMerge Phase = "merge"
)

// transcodeCeiling is the highest global value any acquire/transcode report
// can reach; 98-100 is reserved for the merge phase and final confirmation.
const transcodeCeiling = 98.0

// minAcquireBand is the smallest acquisition band. Even a trivially cheap
// acquisition gets a visible sliver of the bar.
const minAcquireBand = 2.0

// Range is the global band a phase's local progress maps into.
type Range struct {
	Start float64
	End   float64
}

// PlanBands computes the acquire and transcode bands for a trim window.
//
// With no trim the work is dominated by transcoding, which starts almost
// immediately, so acquisition gets a fixed [0,2] band. With a trim requested
// the band is sized proportionally to estimated acquisition time, assuming
// acquisition runs speedRatio times faster than transcoding per unit of media
// time. That ratio is a hand-tuned constant exposed through configuration,
// not a measured fact.
func PlanBands(trim models.TrimWindow, speedRatio float64) (acquire, transcode Range) {
	if trim.IsZero() {
		return Range{0, minAcquireBand}, Range{minAcquireBand, transcodeCeiling}
	}

	frac := 1.0
	if span := trim.StartSeconds + trim.DurationSeconds; span > 0 {
		frac = trim.StartSeconds / span
	}

	end := math.Round(frac / speedRatio * transcodeCeiling)
	if end < minAcquireBand {
		end = minAcquireBand
	}
	if end > transcodeCeiling {
		end = transcodeCeiling
	}

	return Range{0, end}, Range{end, transcodeCeiling}
}

// Aggregator converts phase-local progress into one monotonically increasing
// global 0-100 value and writes forward, de-duplicated changes to a Sink.
// Safe for concurrent use.
type Aggregator struct {
	mu     sync.Mutex
	sink   Sink
	key    string
	logger *slog.Logger

	ranges      map[Phase]Range
	maxEmitted  float64 // highest global value observed, monotonic
	lastWritten int     // last integer actually delivered to the sink
}

// NewAggregator creates an Aggregator for a job identified by key.
// Bands default to the untrimmed layout; call SetRange to replan.
func NewAggregator(sink Sink, key string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		sink:   sink,
		key:    key,
		logger: logger.With(slog.String("component", "progress"), slog.String("key", key)),
		ranges: map[Phase]Range{
			PhaseAcquire:   {0, minAcquireBand},
			PhaseTranscode: {minAcquireBand, transcodeCeiling},
			PhaseMerge:     {transcodeCeiling, 100},
		},
		lastWritten: -1,
	}
}

// SetRange replaces a phase's band. Boundaries may be recomputed once the
// true total duration becomes known mid-phase; the currently emitted value
// becomes the new phase-start floor so the visible bar never jumps backward.
func (a *Aggregator) SetRange(phase Phase, r Range) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if r.Start < a.maxEmitted {
		r.Start = a.maxEmitted
	}
	if r.End < r.Start {
		r.End = r.Start
	}
	a.ranges[phase] = r
}

// Report maps a phase-local percentage (0-100) into the phase's global band
// and delivers it to the sink when it moves the global value forward.
// Backward-looking values are dropped; phase measurements are noisy and may
// be re-estimated mid-flight.
func (a *Aggregator) Report(ctx context.Context, phase Phase, localPercent float64) {
	a.mu.Lock()

	r, ok := a.ranges[phase]
	if !ok {
		a.mu.Unlock()
		a.logger.Warn("progress report for unknown phase", slog.String("phase", string(phase)))
		return
	}

	local := math.Max(0, math.Min(100, localPercent))
	global := r.Start + local/100*(r.End-r.Start)
	if global > r.End {
		global = r.End
	}

	if global <= a.maxEmitted {
		a.mu.Unlock()
		a.logger.Debug("dropping backward progress value",
			slog.String("phase", string(phase)),
			slog.Float64("global", global),
			slog.Float64("max_emitted", a.maxEmitted),
		)
		return
	}
	a.maxEmitted = global

	pct := int(math.Round(global))
	if pct <= a.lastWritten {
		a.mu.Unlock()
		return
	}
	a.lastWritten = pct
	a.mu.Unlock()

	if err := a.sink.Set(ctx, a.key, pct); err != nil {
		a.logger.Warn("progress sink write failed", slog.String("error", err.Error()))
	}
}

// Finish writes the terminal 100 value for a successful job.
func (a *Aggregator) Finish(ctx context.Context) {
	a.mu.Lock()
	a.maxEmitted = 100
	a.lastWritten = 100
	a.mu.Unlock()

	if err := a.sink.Set(ctx, a.key, 100); err != nil {
		a.logger.Warn("progress sink write failed", slog.String("error", err.Error()))
	}
}

// Current returns the highest global value emitted so far.
func (a *Aggregator) Current() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.maxEmitted
}

// Remove deletes the job's entry from the sink. Called from the
// orchestrator's finalization path regardless of outcome.
func (a *Aggregator) Remove(ctx context.Context) {
	if err := a.sink.Remove(ctx, a.key); err != nil {
		a.logger.Warn("progress sink remove failed", slog.String("error", err.Error()))
	}
}
