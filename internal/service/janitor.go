package service

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/clipwave/clipwave/internal/config"
)

// Janitor periodically removes orphaned scratch files. A crashed process
// can leave registered files behind; the sweep bounds how long they
// survive.
type Janitor struct {
	dir       string
	retention time.Duration
	spec      string
	cron      *cron.Cron
	logger    *slog.Logger
}

// NewJanitor creates a Janitor for the configured scratch directory.
func NewJanitor(cfg config.StorageConfig, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		dir:       cfg.ScratchPath(),
		retention: cfg.ScratchRetention,
		spec:      cfg.JanitorCron,
		logger:    logger.With(slog.String("component", "janitor")),
	}
}

// Start schedules the sweep. Returns an error when the cron spec is
// invalid.
func (j *Janitor) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.spec, func() { j.Sweep() }); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("janitor scheduled",
		slog.String("spec", j.spec),
		slog.Duration("retention", j.retention),
	)
	return nil
}

// Stop halts the schedule. Does not interrupt a sweep in flight.
func (j *Janitor) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

// Sweep removes scratch files older than the retention window. Files newer
// than it may belong to running jobs and are left alone.
func (j *Janitor) Sweep() {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			j.logger.Warn("scratch sweep failed", slog.String("error", err.Error()))
		}
		return
	}

	cutoff := time.Now().Add(-j.retention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.dir, entry.Name())
		if err := os.Remove(path); err != nil {
			j.logger.Warn("failed to remove orphaned scratch file",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("scratch sweep removed orphaned files", slog.Int("removed", removed))
	}
}
