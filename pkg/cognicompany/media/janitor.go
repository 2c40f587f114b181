package media

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Janitor removes leftover media files. Uploaded files are deleted right
// away; the janitor catches what failed uploads and crashes leave behind.
type Janitor struct {
	dirs   []string
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewJanitor sweeps dirs for files older than maxAge.
func NewJanitor(dirs []string, maxAge time.Duration, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		dirs:   dirs,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger.With("component", "janitor"),
	}
}

// Sweep deletes regular files older than the max age and returns how many
// were removed. Missing directories are ignored.
func (j *Janitor) Sweep() int {
	cutoff := j.now().Add(-j.maxAge)
	removed := 0

	for _, dir := range j.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				j.logger.Warn("cannot read media dir", "dir", dir, "error", err)
			}
			continue
		}
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			info, err := e.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(dir, e.Name())
			if err := os.Remove(path); err != nil {
				j.logger.Warn("cannot remove stale media", "path", path, "error", err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		j.logger.Info("stale media removed", "count", removed)
	}
	return removed
}
