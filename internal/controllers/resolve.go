package controllers

import (
	"net/url"
	"path"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pbdl/pinterest-board-downloader/internal/models"
	"github.com/sirupsen/logrus"
)

// fallbackExtension is used when a variant URL carries no usable extension
const fallbackExtension = ".jpg"

// MediaResolver decides which variant URLs of an item to download and
// derives deterministic filenames for them. Same item in, same decisions
// out, so watch-mode re-syncs stay idempotent.
type MediaResolver struct {
	quality models.QualityPref
	cache   *cache.Cache
	logger  *logrus.Logger
}

// NewMediaResolver creates a resolver for the given quality preference
func NewMediaResolver(quality models.QualityPref, logger *logrus.Logger) (*MediaResolver, error) {
	if _, err := models.ParseQualityPref(string(quality)); err != nil {
		return nil, err
	}
	return &MediaResolver{
		quality: quality,
		cache:   cache.New(30*time.Minute, 10*time.Minute),
		logger:  logger,
	}, nil
}

// Resolve picks the download decisions for one item: a single entry
// normally, the largest and smallest variants in "all" mode. Items without
// a usable variant fail with a ResolutionError.
func (r *MediaResolver) Resolve(item models.MediaItem) ([]models.ResolvedMedia, error) {
	cacheKey := item.ID + "|" + string(r.quality)
	if cached, found := r.cache.Get(cacheKey); found {
		return cached.([]models.ResolvedMedia), nil
	}

	if len(item.Variants) == 0 {
		return nil, &models.ResolutionError{ItemID: item.ID, Reason: "no usable media variant"}
	}

	// Variants arrive ordered by resolution descending
	best := item.Variants[0]

	var resolved []models.ResolvedMedia
	switch r.quality {
	case models.QualityHighOnly:
		resolved = []models.ResolvedMedia{{
			ItemID:   item.ID,
			URL:      best.URL,
			Filename: buildFilename(item.ID, "", best.URL),
		}}

	case models.QualityAll:
		resolved = []models.ResolvedMedia{{
			ItemID:   item.ID,
			Label:    "high",
			URL:      best.URL,
			Filename: buildFilename(item.ID, "high", best.URL),
		}}
		if len(item.Variants) > 1 {
			worst := item.Variants[len(item.Variants)-1]
			resolved = append(resolved, models.ResolvedMedia{
				ItemID:   item.ID,
				Label:    "low",
				URL:      worst.URL,
				Filename: buildFilename(item.ID, "low", worst.URL),
			})
		}

	default: // prioritize-high
		fallbacks := make([]string, 0, len(item.Variants)-1)
		for _, v := range item.Variants[1:] {
			fallbacks = append(fallbacks, v.URL)
		}
		resolved = []models.ResolvedMedia{{
			ItemID:    item.ID,
			URL:       best.URL,
			Fallbacks: fallbacks,
			Filename:  buildFilename(item.ID, "", best.URL),
		}}
	}

	r.logger.WithFields(logrus.Fields{
		"item_id":  item.ID,
		"chosen":   best.Width,
		"variants": len(item.Variants),
	}).Debug("Resolved media item")

	r.cache.Set(cacheKey, resolved, cache.DefaultExpiration)
	return resolved, nil
}

// buildFilename derives the on-disk name for a chosen variant
func buildFilename(itemID, label, rawURL string) string {
	name := itemID
	if label != "" {
		name += "_" + label
	}
	return name + extensionFor(rawURL)
}

// extensionFor takes the extension from the URL path. Missing or
// implausibly long extensions become .jpg.
func extensionFor(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fallbackExtension
	}
	ext := path.Ext(parsed.Path)
	if ext == "" || len(ext) > 5 {
		return fallbackExtension
	}
	return ext
}
