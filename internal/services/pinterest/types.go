package pinterest

import "encoding/json"

// endBookmark is the cursor value the feed returns after the last page
const endBookmark = "-end-"

// resourceEnvelope wraps every resource endpoint response
type resourceEnvelope struct {
	ResourceResponse struct {
		Status   string          `json:"status"`
		Code     int             `json:"code"`
		Message  string          `json:"message"`
		Bookmark string          `json:"bookmark"`
		Data     json.RawMessage `json:"data"`
	} `json:"resource_response"`
}

// resourceRequest is the data= query payload of a resource request
type resourceRequest struct {
	Options interface{} `json:"options"`
	Context struct{}    `json:"context"`
}

// boardData is board metadata returned by BoardResource
type boardData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	PinCount int    `json:"pin_count"`
	Owner    struct {
		Username string `json:"username"`
	} `json:"owner"`
}

// pinData is one feed entry returned by BoardFeedResource. Entries that are
// not pins (story modules, ads) carry a different type and are dropped.
type pinData struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	GridTitle string `json:"grid_title"`
	Domain    string `json:"domain"`
	Link      string `json:"link"`

	Images map[string]imageData `json:"images"`
	Videos *videoList           `json:"videos"`
}

type videoList struct {
	VideoList map[string]videoData `json:"video_list"`
}

type imageData struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type videoData struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// boardFeed is one page of a board's contents
type boardFeed struct {
	Pins     []pinData
	Bookmark string
}
