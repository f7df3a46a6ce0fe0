package models

import (
	"fmt"
	"time"
)

// DownloadTask tracks one download through the scheduler. Ownership moves
// with the task: the dispatcher hands it to exactly one worker and takes
// it back with the result, so no two goroutines touch it at once.
type DownloadTask struct {
	Media    ResolvedMedia
	DestPath string

	Status    TaskStatus
	Attempts  int  // Attempts against the current URL
	FellBack  bool // The one variant fallback has been spent
	ReadyAt   time.Time
	LastError error
}

// Key returns the task's dedup key (media id plus quality label)
func (t *DownloadTask) Key() string {
	return t.Media.Key()
}

// Summary tallies the terminal outcome of every item in a run
type Summary struct {
	Succeeded int
	Failed    int
	Skipped   int
}

// Total returns the number of items accounted for
func (s Summary) Total() int {
	return s.Succeeded + s.Failed + s.Skipped
}

// Add merges another summary into this one
func (s *Summary) Add(other Summary) {
	s.Succeeded += other.Succeeded
	s.Failed += other.Failed
	s.Skipped += other.Skipped
}

func (s Summary) String() string {
	return fmt.Sprintf("%d succeeded, %d failed, %d skipped", s.Succeeded, s.Failed, s.Skipped)
}
