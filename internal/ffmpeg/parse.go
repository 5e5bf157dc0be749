package ffmpeg

import (
	"regexp"

	"github.com/clipwave/clipwave/internal/subproc"
)

var (
	durationRe = regexp.MustCompile(`Duration:\s*(\d+:\d{2}:\d{2}\.\d+)`)
	positionRe = regexp.MustCompile(`time=\s*(\d+:\d{2}:\d{2}\.\d+)`)
)

// NewDiagnosticClassifier returns a classifier for transcoder stderr lines.
// It reports the stream duration once, from the first "Duration:" header
// line, and a position event for every "time=" progress line thereafter.
// The classifier is stateful and must not be shared between processes.
func NewDiagnosticClassifier() subproc.Classifier {
	durationSeen := false
	return func(line string) []subproc.Event {
		var events []subproc.Event
		if !durationSeen {
			if m := durationRe.FindStringSubmatch(line); m != nil {
				durationSeen = true
				events = append(events, subproc.Event{
					Kind:   subproc.EventTotalDuration,
					Millis: ClockToMilliseconds(m[1]),
				})
			}
		}
		if m := positionRe.FindStringSubmatch(line); m != nil {
			events = append(events, subproc.Event{
				Kind:   subproc.EventPosition,
				Millis: ClockToMilliseconds(m[1]),
			})
		}
		return events
	}
}
