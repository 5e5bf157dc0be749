package ytdlp

import (
	"regexp"
	"strconv"

	"github.com/clipwave/clipwave/internal/subproc"
)

var percentRe = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

// FatalPatterns are diagnostic substrings that mean the download cannot
// succeed regardless of retries.
var FatalPatterns = []string{
	"ERROR:",
	"Video unavailable",
	"This video is private",
	"Sign in to confirm",
}

// NewDiagnosticClassifier returns a classifier for downloader progress
// lines. Percent markers come from "[download]  NN.N%" lines, which with
// --newline arrive one per line instead of via carriage-return rewrites.
func NewDiagnosticClassifier() subproc.Classifier {
	return func(line string) []subproc.Event {
		m := percentRe.FindStringSubmatch(line)
		if m == nil {
			return nil
		}
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return nil
		}
		return []subproc.Event{{Kind: subproc.EventPercent, Percent: pct}}
	}
}
