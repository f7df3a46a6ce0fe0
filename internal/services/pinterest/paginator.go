package pinterest

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pbdl/pinterest-board-downloader/internal/models"
	"github.com/pbdl/pinterest-board-downloader/internal/utils"
	"github.com/sirupsen/logrus"
)

// BoardPaginator walks a board feed cursor by cursor. It is lazy, finite
// and not restartable: once the end bookmark is seen, More reports false
// for good.
type BoardPaginator struct {
	client   *Client
	boardID  string
	exclude  *utils.ExclusionList
	bookmark string
	started  bool
	done     bool
	seen     map[string]struct{}
	logger   *logrus.Logger
}

// NewBoardPaginator creates a paginator over one board's contents
func NewBoardPaginator(client *Client, boardID string, exclude *utils.ExclusionList) *BoardPaginator {
	if exclude == nil {
		exclude = &utils.ExclusionList{}
	}
	return &BoardPaginator{
		client:  client,
		boardID: boardID,
		exclude: exclude,
		seen:    make(map[string]struct{}),
		logger:  client.logger,
	}
}

// More reports whether another page may be available
func (p *BoardPaginator) More() bool {
	return !p.done
}

// Next fetches the next page and converts it to media items. Pin ids
// already emitted are dropped, regardless of which page they appear on.
// A fetch error ends pagination; retries have already happened below.
func (p *BoardPaginator) Next(ctx context.Context) ([]models.MediaItem, error) {
	if p.done {
		return nil, nil
	}

	// Politeness delay between page fetches
	if p.started && p.client.pageDelay > 0 {
		select {
		case <-ctx.Done():
			p.done = true
			return nil, ctx.Err()
		case <-time.After(p.client.pageDelay):
		}
	}
	p.started = true

	feed, err := p.client.fetchBoardFeed(ctx, p.boardID, p.bookmark)
	if err != nil {
		p.done = true
		return nil, err
	}

	p.bookmark = feed.Bookmark
	if p.bookmark == "" || p.bookmark == endBookmark {
		p.done = true
	}

	items := make([]models.MediaItem, 0, len(feed.Pins))
	for _, pin := range feed.Pins {
		if pin.ID == "" || (pin.Type != "" && pin.Type != "pin") {
			continue
		}
		if _, dup := p.seen[pin.ID]; dup {
			p.logger.WithField("pin_id", pin.ID).Debug("Dropping duplicate pin")
			continue
		}
		p.seen[pin.ID] = struct{}{}

		if matched, term := p.exclude.Matches(pin.GridTitle, pin.Domain); matched {
			p.logger.WithFields(logrus.Fields{
				"pin_id": pin.ID,
				"term":   term,
			}).Debug("Dropping excluded pin")
			continue
		}

		items = append(items, toMediaItem(pin, p.client.baseURL))
	}

	return items, nil
}

// toMediaItem converts a feed pin to a media item with variants ordered by
// resolution descending. Directly saveable MP4 renditions win over the
// cover images; streaming manifests are not usable.
func toMediaItem(pin pinData, baseURL string) models.MediaItem {
	var variants []models.MediaVariant

	if pin.Videos != nil {
		for _, v := range pin.Videos.VideoList {
			if v.URL == "" || !strings.HasSuffix(strings.ToLower(urlPath(v.URL)), ".mp4") {
				continue
			}
			variants = append(variants, models.MediaVariant{
				URL:    v.URL,
				Width:  v.Width,
				Height: v.Height,
				Kind:   models.MediaKindVideo,
			})
		}
	}

	if len(variants) == 0 {
		for _, img := range pin.Images {
			if img.URL == "" {
				continue
			}
			variants = append(variants, models.MediaVariant{
				URL:    img.URL,
				Width:  img.Width,
				Height: img.Height,
				Kind:   models.MediaKindImage,
			})
		}
	}

	sortVariants(variants)

	return models.MediaItem{
		ID:       pin.ID,
		Title:    pin.GridTitle,
		Domain:   pin.Domain,
		PageURL:  baseURL + "/pin/" + pin.ID + "/",
		Variants: variants,
	}
}

// sortVariants orders variants largest first. The tiebreak keeps the order
// total so the same pin always resolves the same way.
func sortVariants(variants []models.MediaVariant) {
	sort.Slice(variants, func(i, j int) bool {
		if variants[i].Width != variants[j].Width {
			return variants[i].Width > variants[j].Width
		}
		if variants[i].Height != variants[j].Height {
			return variants[i].Height > variants[j].Height
		}
		return variants[i].URL < variants[j].URL
	})
}

func urlPath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		return u.Path
	}
	return rawURL
}
