package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// MediaInfo is the subset of the downloader's metadata dump the pipeline
// cares about.
type MediaInfo struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	URL       string  `json:"url"`
	Ext       string  `json:"ext"`
	Protocol  string  `json:"protocol"`
	IsLive    bool    `json:"is_live"`
	Extractor string  `json:"extractor"`
}

// DirectlyStreamable reports whether the resolved URL can be handed to the
// transcoder as a plain seekable HTTP input. Fragmented (DASH, HLS) and
// live protocols cannot be range-seeked.
func (m *MediaInfo) DirectlyStreamable() bool {
	if m.URL == "" || m.IsLive {
		return false
	}
	switch m.Protocol {
	case "", "http", "https":
		return true
	}
	return false
}

// Resolve asks the downloader for the direct media URL and metadata of a
// page URL without downloading anything. The downloader prints a single
// JSON document on stdout.
func (b *CommandBuilder) Resolve(ctx context.Context, pageURL string) (*MediaInfo, error) {
	args := []string{"--dump-single-json", "--no-warnings"}
	if b.format != "" {
		args = append(args, "-f", b.format)
	}
	if b.cookies != "" {
		args = append(args, "--cookies", b.cookies)
	}
	args = append(args, pageURL)

	cmd := exec.CommandContext(ctx, b.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("resolving %s: %w: %s", pageURL, err, lastLine(stderr.String()))
	}

	var info MediaInfo
	if err := json.Unmarshal(stdout.Bytes(), &info); err != nil {
		return nil, fmt.Errorf("parsing downloader metadata for %s: %w", pageURL, err)
	}
	return &info, nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
