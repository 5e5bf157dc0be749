// Package ffmpeg builds and observes invocations of the external transcoder.
package ffmpeg

import (
	"strconv"
	"strings"
)

// ClockToMilliseconds converts a textual timestamp of the form HH:MM:SS.ff
// to milliseconds: ((H*3600)+(M*60)+S)*1000 + ff*10.
//
// Malformed input (wrong shape, non-numeric component) yields 0. Timestamps
// come from another process's diagnostic stream, so a bad value must degrade
// to "no progress", never to a parse panic or a NaN downstream.
func ClockToMilliseconds(s string) int64 {
	clock, frac, _ := strings.Cut(s, ".")

	parts := strings.Split(clock, ":")
	if len(parts) != 3 {
		return 0
	}

	hours, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || hours < 0 {
		return 0
	}
	minutes, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || minutes < 0 {
		return 0
	}
	seconds, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || seconds < 0 {
		return 0
	}

	millis := (hours*3600+minutes*60+seconds) * 1000

	if frac != "" {
		if len(frac) > 2 {
			frac = frac[:2]
		}
		hundredths, err := strconv.ParseInt(frac, 10, 64)
		if err != nil || hundredths < 0 {
			return 0
		}
		millis += hundredths * 10
	}

	return millis
}

// FormatSeconds renders a float seconds value the way the transcoder's
// -ss/-t flags expect it.
func FormatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
