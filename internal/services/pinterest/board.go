package pinterest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pbdl/pinterest-board-downloader/internal/models"
)

// boardHostPattern accepts pinterest.com, its regional subdomains
// (de.pinterest.com) and regional TLDs (pinterest.co.uk)
var boardHostPattern = regexp.MustCompile(`^(?:www\.|[a-z]{2}\.)?pinterest\.(?:com|[a-z]{2,3}(?:\.[a-z]{2})?)$`)

var digitsOnly = regexp.MustCompile(`^[0-9]+$`)

// reservedPathRoots are pinterest.com path roots that are never usernames
var reservedPathRoots = map[string]bool{
	"pin":      true,
	"search":   true,
	"ideas":    true,
	"settings": true,
	"business": true,
}

// ParseBoardRef parses a board reference: a full board URL, the shorthand
// owner/slug, or a numeric board id.
func ParseBoardRef(raw string) (models.BoardRef, error) {
	ref := strings.TrimSpace(raw)
	if ref == "" {
		return models.BoardRef{}, fmt.Errorf("board reference is empty")
	}

	if digitsOnly.MatchString(ref) {
		return models.BoardRef{ID: ref}, nil
	}

	if strings.Contains(ref, "pinterest.") {
		return parseBoardURL(ref)
	}

	// owner/slug shorthand
	parts := strings.Split(strings.Trim(ref, "/"), "/")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return models.BoardRef{Owner: parts[0], Slug: parts[1]}, nil
	}

	return models.BoardRef{}, fmt.Errorf("invalid board reference %q (want a board URL, owner/slug or a numeric id)", raw)
}

func parseBoardURL(raw string) (models.BoardRef, error) {
	withScheme := raw
	if !strings.Contains(withScheme, "://") {
		withScheme = "https://" + withScheme
	}

	u, err := url.Parse(withScheme)
	if err != nil {
		return models.BoardRef{}, fmt.Errorf("invalid board URL %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.BoardRef{}, fmt.Errorf("invalid board URL %q: unsupported scheme %q", raw, u.Scheme)
	}
	if !boardHostPattern.MatchString(strings.ToLower(u.Hostname())) {
		return models.BoardRef{}, fmt.Errorf("invalid board URL %q: not a Pinterest host", raw)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return models.BoardRef{}, fmt.Errorf("invalid board URL %q: expected /owner/board path", raw)
	}
	if reservedPathRoots[strings.ToLower(parts[0])] {
		return models.BoardRef{}, fmt.Errorf("invalid board URL %q: not a board page", raw)
	}

	return models.BoardRef{Owner: parts[0], Slug: parts[1]}, nil
}

// ResolveBoard fetches metadata for the referenced board. A board unknown
// to the upstream maps to models.ErrBoardNotFound.
func (c *Client) ResolveBoard(ctx context.Context, ref models.BoardRef) (*models.Board, error) {
	options := map[string]interface{}{"field_set_key": "detailed"}
	if ref.ID != "" {
		options["board_id"] = ref.ID
	} else {
		options["username"] = ref.Owner
		options["slug"] = ref.Slug
	}

	var data boardData
	err := c.withRetry(ctx, func() error {
		envelope, err := c.fetchResource(ctx, "BoardResource", options)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(envelope.ResourceResponse.Data, &data); err != nil {
			return &models.UpstreamError{
				Op:  "resolve board",
				URL: c.baseURL,
				Err: fmt.Errorf("%w: %v", models.ErrMalformedPayload, err),
			}
		}
		return nil
	})
	if err != nil {
		var ue *models.UpstreamError
		if errors.As(err, &ue) && (ue.StatusCode == http.StatusNotFound || ue.StatusCode == http.StatusGone) {
			return nil, fmt.Errorf("%s: %w", ref, models.ErrBoardNotFound)
		}
		return nil, fmt.Errorf("resolve board %s: %w", ref, err)
	}

	if data.ID == "" {
		return nil, fmt.Errorf("%s: %w", ref, models.ErrBoardNotFound)
	}

	board := &models.Board{
		ID:       data.ID,
		Name:     data.Name,
		Owner:    data.Owner.Username,
		Slug:     ref.Slug,
		PinCount: data.PinCount,
	}
	if board.Owner == "" {
		board.Owner = ref.Owner
	}
	if board.Slug == "" {
		board.Slug = slugFromBoardURL(data.URL)
	}

	return board, nil
}

// slugFromBoardURL extracts the slug from a board's canonical /owner/slug/ URL
func slugFromBoardURL(boardURL string) string {
	parts := strings.Split(strings.Trim(boardURL, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-1]
}
