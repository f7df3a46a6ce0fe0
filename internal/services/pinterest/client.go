package pinterest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pbdl/pinterest-board-downloader/internal/config"
	"github.com/pbdl/pinterest-board-downloader/internal/models"
	"github.com/sirupsen/logrus"
)

// maxFetchRetries bounds retries of a single resource request, after the
// first attempt
const maxFetchRetries = 4

// Client talks to the public Pinterest JSON resource API. Public boards
// need no authentication; a session cookie can be configured for the rest.
type Client struct {
	baseURL        string
	userAgent      string
	cookie         string
	pageSize       int
	pageDelay      time.Duration
	retryBaseDelay time.Duration
	httpClient     *http.Client
	logger         *logrus.Logger
}

// NewClient creates a new Pinterest API client
func NewClient(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:      cfg.UserAgent,
		cookie:         cfg.Cookie,
		pageSize:       cfg.PageSize,
		pageDelay:      cfg.PageDelay,
		retryBaseDelay: cfg.RetryBaseDelay,
		httpClient:     &http.Client{Timeout: cfg.HTTPTimeout},
		logger:         logger,
	}, nil
}

// fetchResource performs a single GET against a resource endpoint and
// returns the decoded envelope
func (c *Client) fetchResource(ctx context.Context, resource string, options interface{}) (*resourceEnvelope, error) {
	payload, err := json.Marshal(resourceRequest{Options: options})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request options: %w", err)
	}

	query := url.Values{}
	query.Set("source_url", "/")
	query.Set("data", string(payload))
	fullURL := c.baseURL + "/resource/" + resource + "/get/?" + query.Encode()

	c.logger.WithFields(logrus.Fields{
		"resource": resource,
		"url":      fullURL,
	}).Debug("Making Pinterest API request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("User-Agent", c.userAgent)
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	// Perform request
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &models.UpstreamError{Op: "fetch " + resource, URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	// Check status code
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &models.UpstreamError{Op: "fetch " + resource, URL: fullURL, StatusCode: resp.StatusCode}
	}

	// Parse response
	var envelope resourceEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, &models.UpstreamError{
			Op:  "fetch " + resource,
			URL: fullURL,
			Err: fmt.Errorf("%w: %v", models.ErrMalformedPayload, err),
		}
	}

	return &envelope, nil
}

// withRetry runs an upstream operation with exponential backoff. Errors
// that are not retryable abort immediately.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	if c.retryBaseDelay > 0 {
		policy.InitialInterval = c.retryBaseDelay
	}
	policy.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !models.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		c.logger.WithError(err).WithField("attempt", attempt).Warn("Upstream request failed, retrying")
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, maxFetchRetries), ctx))
}

// fetchBoardFeed fetches one page of a board's contents. The bookmark is
// the cursor returned by the previous page, empty for the first one.
func (c *Client) fetchBoardFeed(ctx context.Context, boardID string, bookmark string) (*boardFeed, error) {
	options := map[string]interface{}{
		"board_id":  boardID,
		"page_size": c.pageSize,
	}
	if bookmark != "" {
		options["bookmarks"] = []string{bookmark}
	}

	var feed *boardFeed
	err := c.withRetry(ctx, func() error {
		envelope, err := c.fetchResource(ctx, "BoardFeedResource", options)
		if err != nil {
			return err
		}

		var pins []pinData
		if err := json.Unmarshal(envelope.ResourceResponse.Data, &pins); err != nil {
			return &models.UpstreamError{
				Op:  "fetch BoardFeedResource",
				URL: c.baseURL,
				Err: fmt.Errorf("%w: %v", models.ErrMalformedPayload, err),
			}
		}

		feed = &boardFeed{Pins: pins, Bookmark: envelope.ResourceResponse.Bookmark}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("board feed page: %w", err)
	}

	return feed, nil
}
