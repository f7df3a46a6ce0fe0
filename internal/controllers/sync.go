package controllers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pbdl/pinterest-board-downloader/internal/config"
	"github.com/pbdl/pinterest-board-downloader/internal/metrics"
	"github.com/pbdl/pinterest-board-downloader/internal/models"
	"github.com/pbdl/pinterest-board-downloader/internal/services/pinterest"
	"github.com/pbdl/pinterest-board-downloader/internal/utils"
	"github.com/sirupsen/logrus"
)

// SyncController orchestrates one full board sync: resolve the board,
// prepare its directory, then paginate, resolve and download until the
// feed runs out
type SyncController struct {
	client      *pinterest.Client
	resolver    *MediaResolver
	cleanupCtrl *CleanupController
	cfg         *config.Config
	metrics     *metrics.Metrics
	logger      *logrus.Logger
}

// NewSyncController creates a new sync controller
func NewSyncController(client *pinterest.Client, resolver *MediaResolver, cleanupCtrl *CleanupController, cfg *config.Config, m *metrics.Metrics, logger *logrus.Logger) *SyncController {
	return &SyncController{
		client:      client,
		resolver:    resolver,
		cleanupCtrl: cleanupCtrl,
		cfg:         cfg,
		metrics:     m,
		logger:      logger,
	}
}

// SyncBoard downloads everything on one board. The returned summary is
// complete when err is nil and partial otherwise.
func (c *SyncController) SyncBoard(ctx context.Context, ref models.BoardRef, exclude *utils.ExclusionList) (models.Summary, error) {
	c.logger.WithField("board", ref.String()).Info("Starting board sync")

	board, err := c.client.ResolveBoard(ctx, ref)
	if err != nil {
		c.metrics.SyncsTotal.WithLabelValues("error").Inc()
		return models.Summary{}, err
	}

	c.logger.WithFields(logrus.Fields{
		"board": board.Owner + "/" + board.Slug,
		"id":    board.ID,
		"pins":  board.PinCount,
	}).Info("Board resolved")

	destDir, err := c.prepareDestDir(board)
	if err != nil {
		c.metrics.SyncsTotal.WithLabelValues("error").Inc()
		return models.Summary{}, err
	}

	if _, err := c.cleanupCtrl.SweepPartials(destDir); err != nil {
		c.logger.WithError(err).Warn("Failed to sweep stale partial files")
	}

	sched, err := NewDownloadScheduler(c.cfg, destDir, c.metrics, c.logger)
	if err != nil {
		c.metrics.SyncsTotal.WithLabelValues("error").Inc()
		return models.Summary{}, err
	}

	// Feed the scheduler while it runs so pagination and downloads overlap
	feedErr := make(chan error, 1)
	go func() {
		defer sched.Close()
		feedErr <- c.feed(ctx, board, exclude, sched)
	}()

	summary := sched.Run(ctx)
	err = <-feedErr

	if ctx.Err() != nil {
		c.metrics.SyncsTotal.WithLabelValues("canceled").Inc()
		c.logger.WithField("summary", summary.String()).Warn("Board sync canceled")
		return summary, ctx.Err()
	}
	if err != nil {
		c.metrics.SyncsTotal.WithLabelValues("error").Inc()
		return summary, fmt.Errorf("pagination aborted: %w", err)
	}

	c.metrics.SyncsTotal.WithLabelValues("ok").Inc()
	c.logger.WithFields(logrus.Fields{
		"board":   board.Owner + "/" + board.Slug,
		"summary": summary.String(),
	}).Info("Board sync completed")
	return summary, nil
}

// feed walks the board feed page by page and admits every resolved entry
// to the scheduler. Items that cannot be resolved are recorded as failed
// without stopping the walk.
func (c *SyncController) feed(ctx context.Context, board *models.Board, exclude *utils.ExclusionList, sched *DownloadScheduler) error {
	paginator := pinterest.NewBoardPaginator(c.client, board.ID, exclude)

	page := 0
	for paginator.More() {
		items, err := paginator.Next(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			continue
		}
		page++
		c.metrics.PagesTotal.Inc()
		c.metrics.ItemsTotal.Add(float64(len(items)))
		c.logger.WithFields(logrus.Fields{
			"page":  page,
			"items": len(items),
		}).Debug("Fetched board page")

		for _, item := range items {
			resolved, err := c.resolver.Resolve(item)
			if err != nil {
				sched.FailItem(item.ID, err)
				continue
			}
			for _, media := range resolved {
				if err := sched.Enqueue(ctx, media); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// prepareDestDir creates <output>/<owner>/<board> and verifies it is
// writable before any pagination work starts
func (c *SyncController) prepareDestDir(board *models.Board) (string, error) {
	ownerSlug := utils.Slugify(board.Owner)
	if ownerSlug == "" {
		ownerSlug = board.ID
	}
	boardSlug := utils.Slugify(board.Slug)
	if boardSlug == "" {
		boardSlug = utils.Slugify(board.Name)
	}
	if boardSlug == "" {
		boardSlug = board.ID
	}

	dir := filepath.Join(c.cfg.OutputDir, ownerSlug, boardSlug)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &models.FilesystemError{Op: "create output directory", Path: dir, Err: err}
	}

	// Probe writability up front so a read-only target fails the run
	// before pagination starts
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return "", &models.FilesystemError{Op: "write probe", Path: dir, Err: err}
	}
	probe.Close()
	os.Remove(probe.Name())

	return dir, nil
}

// IsStartupError reports whether a sync error happened before any download
// work could start, as opposed to a run that partially completed
func IsStartupError(err error) bool {
	var fsErr *models.FilesystemError
	return errors.Is(err, models.ErrBoardNotFound) || errors.As(err, &fsErr)
}
