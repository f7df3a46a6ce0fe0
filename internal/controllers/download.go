package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pbdl/pinterest-board-downloader/internal/config"
	"github.com/pbdl/pinterest-board-downloader/internal/metrics"
	"github.com/pbdl/pinterest-board-downloader/internal/models"
	"github.com/sirupsen/logrus"
)

// partSuffix marks files still being written. A finished file only ever
// appears under its final name.
const partSuffix = ".part"

// DownloadScheduler runs the bounded download pool for one sync. Enqueue
// admits work from the producer side while Run owns every task state
// transition, so no task is ever touched by two goroutines at once.
type DownloadScheduler struct {
	destDir     string
	concurrency int
	maxRetries  int
	timeout     time.Duration
	baseDelay   time.Duration
	userAgent   string

	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *logrus.Logger

	queue     chan *models.DownloadTask
	closeOnce sync.Once

	mu       sync.Mutex
	seen     map[string]struct{}
	admitted models.Summary
}

// NewDownloadScheduler creates a scheduler writing into destDir. The
// admission queue holds twice the worker count so producers slow down
// instead of buffering a whole board in memory.
func NewDownloadScheduler(cfg *config.Config, destDir string, m *metrics.Metrics, logger *logrus.Logger) (*DownloadScheduler, error) {
	if destDir == "" {
		return nil, fmt.Errorf("destination directory is required")
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1")
	}

	return &DownloadScheduler{
		destDir:     destDir,
		concurrency: cfg.Concurrency,
		maxRetries:  cfg.MaxRetries,
		timeout:     cfg.DownloadTimeout,
		baseDelay:   cfg.RetryBaseDelay,
		userAgent:   cfg.UserAgent,
		httpClient:  &http.Client{},
		metrics:     m,
		logger:      logger,
		queue:       make(chan *models.DownloadTask, cfg.Concurrency*2),
		seen:        make(map[string]struct{}),
	}, nil
}

// Enqueue admits one resolved media entry. Duplicates and files already on
// disk are counted as skipped without entering the queue. Blocks when the
// queue is full until a worker drains it or ctx is canceled. Must not be
// called after Close.
func (s *DownloadScheduler) Enqueue(ctx context.Context, media models.ResolvedMedia) error {
	key := media.Key()

	s.mu.Lock()
	if _, dup := s.seen[key]; dup {
		s.mu.Unlock()
		s.logger.WithField("item_id", key).Debug("Skipping duplicate media entry")
		return nil
	}
	s.seen[key] = struct{}{}
	s.mu.Unlock()

	destPath := filepath.Join(s.destDir, media.Filename)
	if alreadyDownloaded(destPath, media.Size) {
		s.mu.Lock()
		s.admitted.Skipped++
		s.mu.Unlock()
		s.metrics.RecordOutcome("skipped")
		s.logger.WithFields(logrus.Fields{
			"item_id": key,
			"file":    media.Filename,
		}).Info("Already downloaded, skipping")
		return nil
	}

	task := &models.DownloadTask{
		Media:    media,
		DestPath: destPath,
		Status:   models.TaskStatusPending,
	}

	select {
	case s.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FailItem records a terminal failure decided outside the scheduler, such
// as an item no variant could be resolved for
func (s *DownloadScheduler) FailItem(itemID string, err error) {
	s.mu.Lock()
	s.admitted.Failed++
	s.mu.Unlock()
	s.metrics.RecordOutcome("failed")
	s.logger.WithError(err).WithField("item_id", itemID).Error("Item failed")
}

// Close signals that no more work will be enqueued. Run returns once the
// queued work is drained.
func (s *DownloadScheduler) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
}

// Run processes the queue until it is closed and drained, or until ctx is
// canceled. Cancellation stops admission and dispatch but lets in-flight
// downloads finish; the returned summary is partial in that case.
func (s *DownloadScheduler) Run(ctx context.Context) models.Summary {
	ready := make(chan *models.DownloadTask)
	results := make(chan *models.DownloadTask)

	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range ready {
				s.download(ctx, task)
				results <- task
			}
		}()
	}

	summary := s.dispatch(ctx, ready, results)
	close(ready)
	wg.Wait()

	s.mu.Lock()
	summary.Add(s.admitted)
	s.mu.Unlock()
	return summary
}

// dispatch is the single goroutine owning all task state. It pulls
// admitted tasks, hands runnable ones to idle workers, reschedules
// retryable failures and applies the one-shot variant fallback.
// The queue depth gauge always equals len(pending)+retries.Len() and
// moves only on this goroutine.
func (s *DownloadScheduler) dispatch(ctx context.Context, ready chan<- *models.DownloadTask, results <-chan *models.DownloadTask) models.Summary {
	var (
		summary  models.Summary
		pending  []*models.DownloadTask
		retries  retryQueue
		inflight int
		canceled bool
	)
	queue := s.queue
	done := ctx.Done()
	backoffs := make(map[string]*backoff.ExponentialBackOff)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		now := time.Now()
		for retries.Len() > 0 && !retries.peek().ReadyAt.After(now) {
			pending = append(pending, retries.pop())
		}

		if queue == nil && inflight == 0 && len(pending) == 0 && retries.Len() == 0 {
			break
		}
		if canceled && inflight == 0 {
			break
		}

		// Arm only the channels that can make progress right now
		var dispatchCh chan<- *models.DownloadTask
		var nextTask *models.DownloadTask
		if !canceled && len(pending) > 0 && inflight < s.concurrency {
			nextTask = pending[0]
			dispatchCh = ready
		}

		var queueCh <-chan *models.DownloadTask
		if !canceled && len(pending) == 0 {
			queueCh = queue
		}

		var timerCh <-chan time.Time
		if !canceled && retries.Len() > 0 && len(pending) == 0 {
			timer.Reset(time.Until(retries.peek().ReadyAt))
			timerCh = timer.C
		}

		select {
		case dispatchCh <- nextTask:
			pending = pending[1:]
			inflight++
			s.metrics.QueueDepth.Dec()

		case task, ok := <-queueCh:
			if !ok {
				queue = nil
				continue
			}
			pending = append(pending, task)
			s.metrics.QueueDepth.Inc()

		case <-timerCh:
			// Due retries move to pending at the top of the loop

		case task := <-results:
			inflight--
			s.finishTask(task, &summary, &pending, &retries, backoffs, canceled)

		case <-done:
			canceled = true
			done = nil
			queue = nil
			if dropped := len(pending) + retries.Len(); dropped > 0 {
				s.metrics.QueueDepth.Sub(float64(dropped))
				s.logger.WithField("count", dropped).Warn("Cancellation requested, abandoning queued downloads")
			}
			pending = nil
			retries = retryQueue{}
		}
	}

	return summary
}

// finishTask settles one worker result: success, another retry of the same
// URL, the one-shot fallback to the next variant, or a permanent failure
func (s *DownloadScheduler) finishTask(task *models.DownloadTask, summary *models.Summary, pending *[]*models.DownloadTask, retries *retryQueue, backoffs map[string]*backoff.ExponentialBackOff, canceled bool) {
	key := task.Key()

	if task.Status == models.TaskStatusSucceeded {
		delete(backoffs, key)
		summary.Succeeded++
		s.metrics.RecordOutcome("succeeded")
		s.logger.WithFields(logrus.Fields{
			"item_id": key,
			"file":    filepath.Base(task.DestPath),
		}).Info("Downloaded")
		return
	}

	if task.Status == models.TaskStatusFailedRetryable && !canceled && task.Attempts <= s.maxRetries {
		b, ok := backoffs[key]
		if !ok {
			b = backoff.NewExponentialBackOff()
			if s.baseDelay > 0 {
				b.InitialInterval = s.baseDelay
			}
			b.MaxElapsedTime = 0
			b.Reset()
			backoffs[key] = b
		}
		delay := b.NextBackOff()
		task.Status = models.TaskStatusPending
		task.ReadyAt = time.Now().Add(delay)
		retries.push(task)
		s.metrics.QueueDepth.Inc()
		s.metrics.RetriesTotal.Inc()
		s.logger.WithError(task.LastError).WithFields(logrus.Fields{
			"item_id": key,
			"attempt": task.Attempts,
			"delay":   delay.Round(time.Millisecond).String(),
		}).Warn("Download failed, retrying")
		return
	}

	// The current URL is spent: it failed permanently or its retry budget
	// is gone. Each task falls back at most once, and never for local
	// filesystem failures.
	var fsErr *models.FilesystemError
	if !errors.As(task.LastError, &fsErr) && !task.FellBack && len(task.Media.Fallbacks) > 0 && !canceled {
		delete(backoffs, key)
		task.FellBack = true
		task.Media.URL = task.Media.Fallbacks[0]
		task.Media.Fallbacks = nil
		task.Attempts = 0
		task.Status = models.TaskStatusPending
		*pending = append(*pending, task)
		s.metrics.QueueDepth.Inc()
		s.metrics.FallbacksTotal.Inc()
		s.logger.WithError(task.LastError).WithFields(logrus.Fields{
			"item_id": key,
			"url":     task.Media.URL,
		}).Warn("Falling back to next media variant")
		return
	}

	delete(backoffs, key)
	task.Status = models.TaskStatusFailedPermanent
	summary.Failed++
	s.metrics.RecordOutcome("failed")
	s.logger.WithError(task.LastError).WithFields(logrus.Fields{
		"item_id":  key,
		"attempts": task.Attempts,
	}).Error("Download failed")
}

// download runs one attempt on a worker goroutine and records the outcome
// on the task for the dispatcher to settle
func (s *DownloadScheduler) download(ctx context.Context, task *models.DownloadTask) {
	task.Status = models.TaskStatusInFlight
	task.Attempts++

	s.metrics.InFlight.Inc()
	defer s.metrics.InFlight.Dec()

	err := s.fetchToFile(ctx, task)
	if err == nil {
		task.Status = models.TaskStatusSucceeded
		task.LastError = nil
		return
	}

	task.LastError = err
	if models.IsRetryable(err) {
		task.Status = models.TaskStatusFailedRetryable
	} else {
		task.Status = models.TaskStatusFailedPermanent
	}
}

// fetchToFile streams the media URL into a temporary .part file and
// renames it into place once the body is complete, so a partially written
// file never shadows a finished one
func (s *DownloadScheduler) fetchToFile(ctx context.Context, task *models.DownloadTask) error {
	// In-flight attempts are allowed to finish after cancellation; the
	// per-attempt timeout still bounds them.
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, task.Media.URL, nil)
	if err != nil {
		return &models.UpstreamError{Op: "download", URL: task.Media.URL, Err: err}
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &models.UpstreamError{Op: "download", URL: task.Media.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &models.UpstreamError{Op: "download", URL: task.Media.URL, StatusCode: resp.StatusCode}
	}

	partPath := task.DestPath + partSuffix
	file, err := os.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &models.FilesystemError{Op: "create", Path: partPath, Err: err}
	}

	written, err := io.Copy(file, resp.Body)
	if err != nil {
		file.Close()
		os.Remove(partPath)
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			return &models.FilesystemError{Op: "write", Path: partPath, Err: err}
		}
		return &models.UpstreamError{Op: "download", URL: task.Media.URL, Err: err}
	}
	if err := file.Close(); err != nil {
		os.Remove(partPath)
		return &models.FilesystemError{Op: "close", Path: partPath, Err: err}
	}

	if resp.ContentLength > 0 && written != resp.ContentLength {
		os.Remove(partPath)
		return &models.UpstreamError{
			Op:  "download",
			URL: task.Media.URL,
			Err: fmt.Errorf("%w: got %d of %d bytes", io.ErrUnexpectedEOF, written, resp.ContentLength),
		}
	}

	if err := os.Rename(partPath, task.DestPath); err != nil {
		os.Remove(partPath)
		return &models.FilesystemError{Op: "rename", Path: task.DestPath, Err: err}
	}

	s.metrics.BytesTotal.Add(float64(written))
	return nil
}

// alreadyDownloaded reports whether destPath holds a finished download.
// With a known size the file must match it exactly, otherwise any
// non-empty file counts.
func alreadyDownloaded(destPath string, wantSize int64) bool {
	info, err := os.Stat(destPath)
	if err != nil || info.IsDir() {
		return false
	}
	if wantSize > 0 {
		return info.Size() == wantSize
	}
	return info.Size() > 0
}
