package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pbdl/pinterest-board-downloader/internal/scheduler"
	"github.com/sirupsen/logrus"
)

// StatusSource provides the board states the endpoint reports
type StatusSource interface {
	Snapshot() []scheduler.BoardState
}

// StatusHandler reports the last sync outcome of every watched board
type StatusHandler struct {
	source StatusSource
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(source StatusSource, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		source: source,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	Boards         []scheduler.BoardState `json:"boards"`
	TotalRuns      int                    `json:"total_runs"`
	TotalSucceeded int                    `json:"total_succeeded"`
	TotalFailed    int                    `json:"total_failed"`
	TotalSkipped   int                    `json:"total_skipped"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	states := h.source.Snapshot()

	response := StatusResponse{
		Boards: states,
	}
	for _, state := range states {
		response.TotalRuns += state.Runs
		response.TotalSucceeded += state.Succeeded
		response.TotalFailed += state.Failed
		response.TotalSkipped += state.Skipped
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
