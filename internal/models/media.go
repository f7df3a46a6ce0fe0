package models

// BoardRef identifies a board by owner and slug, or by numeric id
type BoardRef struct {
	Owner string
	Slug  string
	ID    string // Numeric board id, set when the reference was numeric
}

// String returns the canonical form of the reference
func (r BoardRef) String() string {
	if r.ID != "" && r.Owner == "" {
		return r.ID
	}
	return r.Owner + "/" + r.Slug
}

// Board holds resolved board metadata
type Board struct {
	ID       string
	Name     string
	Owner    string // Owner username
	Slug     string // URL slug of the board
	PinCount int
}

// MediaVariant is one downloadable rendition of a media item
type MediaVariant struct {
	URL    string
	Width  int
	Height int
	Kind   MediaKind
}

// MediaItem is a single pin with its candidate variants, ordered by
// resolution descending. Items are immutable once created.
type MediaItem struct {
	ID       string
	Title    string
	Domain   string // Source domain of the pinned content
	PageURL  string
	Variants []MediaVariant
}

// ResolvedMedia is the download decision for one item: a chosen URL, the
// remaining candidates in fallback order, and a deterministic filename.
type ResolvedMedia struct {
	ItemID    string
	Label     string // "" normally, "high"/"low" in all mode
	URL       string
	Fallbacks []string
	Filename  string
	Size      int64 // Expected size in bytes, 0 when unknown
}

// Key uniquely identifies the download this resolution produces. Two
// resolutions with the same key would write the same file.
func (r ResolvedMedia) Key() string {
	if r.Label == "" {
		return r.ItemID
	}
	return r.ItemID + "_" + r.Label
}
