package controllers

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// CleanupController removes leftovers of interrupted runs
type CleanupController struct {
	logger *logrus.Logger
}

// NewCleanupController creates a new cleanup controller
func NewCleanupController(logger *logrus.Logger) *CleanupController {
	return &CleanupController{logger: logger}
}

// SweepPartials deletes stale .part files in dir left behind by a previous
// run, so interrupted downloads restart from scratch instead of lingering
// next to finished files. Returns the number of files removed.
func (c *CleanupController) SweepPartials(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+partSuffix))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, path := range matches {
		if err := os.Remove(path); err != nil {
			c.logger.WithError(err).WithField("file", path).Warn("Failed to remove stale partial file")
			continue
		}
		removed++
		c.logger.WithField("file", filepath.Base(path)).Debug("Removed stale partial file")
	}

	if removed > 0 {
		c.logger.WithField("count", removed).Info("Removed stale partial files")
	}
	return removed, nil
}
