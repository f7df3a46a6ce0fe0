package pinterest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pbdl/pinterest-board-downloader/internal/config"
	"github.com/pbdl/pinterest-board-downloader/internal/models"
	"github.com/pbdl/pinterest-board-downloader/internal/utils"
	"github.com/sirupsen/logrus"
)

// feedServer serves canned board feed pages keyed by request bookmark
type feedServer struct {
	t        *testing.T
	pages    map[string]string // request bookmark -> response body
	requests atomic.Int32
}

func (s *feedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	var req struct {
		Options struct {
			BoardID   string   `json:"board_id"`
			Bookmarks []string `json:"bookmarks"`
		} `json:"options"`
	}
	if err := json.Unmarshal([]byte(r.URL.Query().Get("data")), &req); err != nil {
		s.t.Errorf("malformed data param: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	bookmark := ""
	if len(req.Options.Bookmarks) > 0 {
		bookmark = req.Options.Bookmarks[0]
	}
	body, ok := s.pages[bookmark]
	if !ok {
		s.t.Errorf("unexpected bookmark %q", bookmark)
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	fmt.Fprint(w, body)
}

func feedResponse(bookmark string, pins ...string) string {
	return fmt.Sprintf(`{"resource_response":{"status":"success","code":0,"bookmark":%q,"data":[%s]}}`,
		bookmark, strings.Join(pins, ","))
}

func pinJSON(id, title string, widths ...int) string {
	images := make([]string, 0, len(widths))
	for _, w := range widths {
		images = append(images, fmt.Sprintf(`"%dx":{"url":"https://i.example/%s/%d.jpg","width":%d,"height":%d}`,
			w, id, w, w, w*2/3))
	}
	return fmt.Sprintf(`{"id":%q,"type":"pin","grid_title":%q,"domain":"example.org","images":{%s}}`,
		id, title, strings.Join(images, ","))
}

func collectAll(t *testing.T, p *BoardPaginator) []models.MediaItem {
	t.Helper()
	var all []models.MediaItem
	for p.More() {
		items, err := p.Next(context.Background())
		if err != nil {
			t.Fatalf("Next returned error: %v", err)
		}
		all = append(all, items...)
	}
	return all
}

func TestBoardPaginatorWalksAllPages(t *testing.T) {
	server := &feedServer{t: t, pages: map[string]string{
		"":   feedResponse("p2", pinJSON("101", "one", 1200, 236), pinJSON("102", "two", 1200)),
		"p2": feedResponse("p3", pinJSON("103", "three", 800)),
		"p3": feedResponse(endBookmark, pinJSON("104", "four", 600)),
	}}
	client := newTestClient(t, server)

	p := NewBoardPaginator(client, "8631", nil)
	items := collectAll(t, p)

	want := []string{"101", "102", "103", "104"}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, id := range want {
		if items[i].ID != id {
			t.Errorf("items[%d].ID = %q, want %q", i, items[i].ID, id)
		}
	}
	if p.More() {
		t.Error("More() should be false after the end bookmark")
	}
	if n := server.requests.Load(); n != 3 {
		t.Errorf("expected 3 page fetches, got %d", n)
	}

	// Exhausted paginators stay exhausted
	extra, err := p.Next(context.Background())
	if err != nil || extra != nil {
		t.Errorf("Next after end = (%v, %v), want (nil, nil)", extra, err)
	}
}

func TestBoardPaginatorDropsDuplicatesAcrossPages(t *testing.T) {
	server := &feedServer{t: t, pages: map[string]string{
		"":   feedResponse("p2", pinJSON("101", "one", 1200), pinJSON("102", "two", 1200)),
		"p2": feedResponse("", pinJSON("102", "two again", 1200), pinJSON("103", "three", 800)),
	}}
	client := newTestClient(t, server)

	items := collectAll(t, NewBoardPaginator(client, "8631", nil))

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	if len(ids) != 3 || ids[0] != "101" || ids[1] != "102" || ids[2] != "103" {
		t.Errorf("ids = %v, want [101 102 103]", ids)
	}
}

func TestBoardPaginatorAppliesExclusions(t *testing.T) {
	server := &feedServer{t: t, pages: map[string]string{
		"": feedResponse("", pinJSON("101", "Shop the look", 1200), pinJSON("102", "keep me", 1200)),
	}}
	client := newTestClient(t, server)

	exclude := utils.NewExclusionList([]string{"shop"})
	items := collectAll(t, NewBoardPaginator(client, "8631", exclude))

	if len(items) != 1 || items[0].ID != "102" {
		t.Fatalf("expected only pin 102 to survive, got %+v", items)
	}
}

func TestBoardPaginatorDropsNonPinEntries(t *testing.T) {
	story := `{"id":"901","type":"story","grid_title":"More ideas"}`
	server := &feedServer{t: t, pages: map[string]string{
		"": feedResponse("", story, pinJSON("101", "real pin", 1200)),
	}}
	client := newTestClient(t, server)

	items := collectAll(t, NewBoardPaginator(client, "8631", nil))

	if len(items) != 1 || items[0].ID != "101" {
		t.Fatalf("expected story entry to be dropped, got %+v", items)
	}
}

func TestBoardPaginatorKeepsItemsWithoutVariants(t *testing.T) {
	bare := `{"id":"101","type":"pin","grid_title":"no media"}`
	server := &feedServer{t: t, pages: map[string]string{
		"": feedResponse("", bare),
	}}
	client := newTestClient(t, server)

	items := collectAll(t, NewBoardPaginator(client, "8631", nil))

	// Items without variants still flow downstream so the run can count
	// their resolution failure
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if len(items[0].Variants) != 0 {
		t.Errorf("expected no variants, got %+v", items[0].Variants)
	}
}

func TestBoardPaginatorErrorEndsPagination(t *testing.T) {
	var requests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/resource/BoardFeedResource/get/", func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			fmt.Fprint(w, feedResponse("p2", pinJSON("101", "one", 1200)))
			return
		}
		http.Error(w, "broken", http.StatusInternalServerError)
	})
	client := newTestClient(t, mux)

	p := NewBoardPaginator(client, "8631", nil)

	first, err := p.Next(context.Background())
	if err != nil || len(first) != 1 {
		t.Fatalf("first page = (%d items, %v)", len(first), err)
	}

	if _, err := p.Next(context.Background()); err == nil {
		t.Fatal("expected error from second page")
	}
	if p.More() {
		t.Error("More() should be false after a fatal page error")
	}
}

func TestBoardPaginatorCancelDuringPageDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, feedResponse("next", pinJSON("101", "one", 1200)))
	}))
	defer server.Close()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	client, err := NewClient(&config.Config{
		BaseURL:        server.URL,
		UserAgent:      "test-agent",
		PageSize:       10,
		PageDelay:      time.Minute,
		HTTPTimeout:    5 * time.Second,
		RetryBaseDelay: time.Millisecond,
	}, logger)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	p := NewBoardPaginator(client, "8631", nil)
	if _, err := p.Next(context.Background()); err != nil {
		t.Fatalf("first page returned error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err = p.Next(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation took %s, the page delay was not interrupted", elapsed)
	}
}

func TestToMediaItemPrefersVideoVariants(t *testing.T) {
	pin := pinData{
		ID: "55",
		Videos: &videoList{
			VideoList: map[string]videoData{
				"V_720P":  {URL: "https://v.example/55_720.mp4", Width: 720, Height: 1280},
				"V_HLSV4": {URL: "https://v.example/55.m3u8", Width: 1080, Height: 1920},
				"V_EXP4":  {URL: "https://v.example/55_360.mp4", Width: 360, Height: 640},
			},
		},
		Images: map[string]imageData{
			"orig": {URL: "https://i.example/55.jpg", Width: 1080, Height: 1920},
		},
	}

	item := toMediaItem(pin, "https://www.pinterest.com")

	if len(item.Variants) != 2 {
		t.Fatalf("expected 2 mp4 variants, got %+v", item.Variants)
	}
	for _, v := range item.Variants {
		if v.Kind != models.MediaKindVideo {
			t.Errorf("variant kind = %q, want video", v.Kind)
		}
	}
	if item.Variants[0].Width != 720 || item.Variants[1].Width != 360 {
		t.Errorf("variants not ordered by size: %+v", item.Variants)
	}
	if item.PageURL != "https://www.pinterest.com/pin/55/" {
		t.Errorf("PageURL = %q", item.PageURL)
	}
}

func TestToMediaItemOrdersImageVariants(t *testing.T) {
	pin := pinData{
		ID: "56",
		Images: map[string]imageData{
			"236x": {URL: "https://i.example/56/236.jpg", Width: 236, Height: 157},
			"orig": {URL: "https://i.example/56/orig.jpg", Width: 1200, Height: 800},
			"736x": {URL: "https://i.example/56/736.jpg", Width: 736, Height: 490},
		},
	}

	item := toMediaItem(pin, "https://www.pinterest.com")

	widths := make([]int, len(item.Variants))
	for i, v := range item.Variants {
		widths[i] = v.Width
	}
	if len(widths) != 3 || widths[0] != 1200 || widths[1] != 736 || widths[2] != 236 {
		t.Errorf("widths = %v, want [1200 736 236]", widths)
	}
}
