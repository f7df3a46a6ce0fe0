package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrBoardNotFound is returned when the upstream does not know the board
var ErrBoardNotFound = errors.New("board not found")

// ErrMalformedPayload marks an upstream response body that could not be
// parsed. Bot interstitials and truncated bodies both look like this, so it
// is treated as transient.
var ErrMalformedPayload = errors.New("malformed payload")

// UpstreamError is a failed request against the Pinterest API or CDN.
// StatusCode is zero when the request never produced a response.
type UpstreamError struct {
	Op         string // "resolve board", "fetch page", "download"
	URL        string
	StatusCode int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: upstream status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Retryable reports whether retrying the same request can plausibly
// succeed. Client errors other than 408/429 are contract violations and
// never retried.
func (e *UpstreamError) Retryable() bool {
	if e.StatusCode != 0 {
		if e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return e.StatusCode >= 500
	}
	return retryableTransport(e.Err)
}

// ResolutionError means an item has no usable media variant. Permanent.
type ResolutionError struct {
	ItemID string
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve item %s: %s", e.ItemID, e.Reason)
}

// FilesystemError is a failed write to the output directory. Permanent for
// the item; fatal for the run when the directory itself is unusable.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// IsRetryable classifies an error chain. Typed errors decide for
// themselves; anything else is judged as a transport failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	var re *ResolutionError
	if errors.As(err, &re) {
		return false
	}
	var fe *FilesystemError
	if errors.As(err, &fe) {
		return false
	}
	return retryableTransport(err)
}

func retryableTransport(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, ErrMalformedPayload) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	msg := err.Error()
	for _, fragment := range []string{"connection reset", "connection refused", "broken pipe", "unexpected EOF"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
