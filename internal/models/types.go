package models

import "fmt"

// QualityPref controls which media variants of an item are downloaded
type QualityPref string

const (
	QualityHighOnly       QualityPref = "high-only"       // Largest variant, no fallback
	QualityPrioritizeHigh QualityPref = "prioritize-high" // Largest variant, fall back to smaller ones
	QualityAll            QualityPref = "all"             // Largest and smallest variants, suffixed filenames
)

// ParseQualityPref validates a quality preference string
func ParseQualityPref(s string) (QualityPref, error) {
	switch QualityPref(s) {
	case QualityHighOnly, QualityPrioritizeHigh, QualityAll:
		return QualityPref(s), nil
	}
	return "", fmt.Errorf("invalid quality preference %q (want high-only, prioritize-high or all)", s)
}

// MediaKind distinguishes image and video variants
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// TaskStatus represents the state of a download task
type TaskStatus string

const (
	TaskStatusPending         TaskStatus = "pending"          // Admitted, waiting for a worker
	TaskStatusInFlight        TaskStatus = "in-flight"        // A worker is downloading it
	TaskStatusSucceeded       TaskStatus = "succeeded"        // File written and renamed into place
	TaskStatusFailedRetryable TaskStatus = "failed-retryable" // Will be re-queued after a backoff delay
	TaskStatusFailedPermanent TaskStatus = "failed-permanent" // No retries or fallbacks left
	TaskStatusSkipped         TaskStatus = "skipped"          // Destination already present, never admitted
)

// Terminal reports whether a task in this status will never run again
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailedPermanent, TaskStatusSkipped:
		return true
	}
	return false
}
