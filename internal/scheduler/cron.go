package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pbdl/pinterest-board-downloader/internal/controllers"
	"github.com/pbdl/pinterest-board-downloader/internal/models"
	"github.com/pbdl/pinterest-board-downloader/internal/utils"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// BoardState is the last known outcome of one watched board
type BoardState struct {
	Board     string    `json:"board"`
	Runs      int       `json:"runs"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
}

// Scheduler re-syncs a set of boards on a fixed interval
type Scheduler struct {
	cron     *cron.Cron
	syncCtrl *controllers.SyncController
	refs     []models.BoardRef
	exclude  *utils.ExclusionList
	interval time.Duration
	logger   *logrus.Logger

	mu     sync.RWMutex
	states map[string]*BoardState
}

// NewScheduler creates a new scheduler. Runs never overlap: a tick that
// fires while the previous sync is still going is skipped.
func NewScheduler(syncCtrl *controllers.SyncController, refs []models.BoardRef, exclude *utils.ExclusionList, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger)))),
		syncCtrl: syncCtrl,
		refs:     refs,
		exclude:  exclude,
		interval: interval,
		logger:   logger,
		states:   make(map[string]*BoardState),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler")

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.runSync(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add sync job: %w", err)
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"boards":   len(s.refs),
		"interval": s.interval.String(),
	}).Info("Scheduler started")

	// Run the initial sync immediately
	go s.runSync(ctx)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// Snapshot returns a copy of every board's last known state, ordered the
// way the boards were configured
func (s *Scheduler) Snapshot() []BoardState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	states := make([]BoardState, 0, len(s.refs))
	for _, ref := range s.refs {
		if state, ok := s.states[ref.String()]; ok {
			states = append(states, *state)
		} else {
			states = append(states, BoardState{Board: ref.String()})
		}
	}
	return states
}

// runSync executes one sync pass over every watched board
func (s *Scheduler) runSync(ctx context.Context) {
	for _, ref := range s.refs {
		if ctx.Err() != nil {
			return
		}

		s.logger.WithField("board", ref.String()).Info("Running scheduled sync")
		summary, err := s.syncCtrl.SyncBoard(ctx, ref, s.exclude)
		s.record(ref, summary, err)

		if err != nil {
			s.logger.WithError(err).WithField("board", ref.String()).Error("Sync job failed")
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"board":   ref.String(),
			"summary": summary.String(),
		}).Info("Sync job completed")
	}
}

func (s *Scheduler) record(ref models.BoardRef, summary models.Summary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[ref.String()]
	if !ok {
		state = &BoardState{Board: ref.String()}
		s.states[ref.String()] = state
	}

	state.Runs++
	state.LastRun = time.Now()
	state.Succeeded = summary.Succeeded
	state.Failed = summary.Failed
	state.Skipped = summary.Skipped
	state.LastError = ""
	if err != nil {
		state.LastError = err.Error()
	}
}
