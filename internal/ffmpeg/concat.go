package ffmpeg

import (
	"fmt"
	"os"
	"strings"
)

// WriteConcatList writes a concat demuxer list file referencing the given
// paths in order. Paths are single-quoted with embedded quotes escaped the
// way the demuxer expects ('\'' splices).
func WriteConcatList(listPath string, paths []string) error {
	var sb strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(p, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("writing concat list: %w", err)
	}
	return nil
}
