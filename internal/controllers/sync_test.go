package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pbdl/pinterest-board-downloader/internal/config"
	"github.com/pbdl/pinterest-board-downloader/internal/metrics"
	"github.com/pbdl/pinterest-board-downloader/internal/models"
	"github.com/pbdl/pinterest-board-downloader/internal/services/pinterest"
	"github.com/pbdl/pinterest-board-downloader/internal/utils"
	"github.com/sirupsen/logrus"
)

type feedPage struct {
	pins     []string
	bookmark string
	status   int
}

// newBoardServer fakes the resource API for one board plus the media CDN
// behind it. pages maps the requested bookmark to its response, with ""
// keying the first page.
func newBoardServer(t *testing.T, pages map[string]feedPage) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/resource/BoardResource/get/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"resource_response": {"status": "success", "code": 0, "data": {"id": "b1", "name": "Summer Trip", "url": "/jane/summer-trip/", "pin_count": 3, "owner": {"username": "jane"}}}}`)
	})
	mux.HandleFunc("/resource/BoardFeedResource/get/", func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[requestBookmark(r)]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if page.status != 0 {
			w.WriteHeader(page.status)
			return
		}
		joined := strings.ReplaceAll(strings.Join(page.pins, ","), "{{host}}", r.Host)
		fmt.Fprintf(w, `{"resource_response": {"status": "success", "code": 0, "bookmark": %q, "data": [%s]}}`, page.bookmark, joined)
	})
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "media-bytes-%s", filepath.Base(r.URL.Path))
	})

	return httptest.NewServer(mux)
}

func requestBookmark(r *http.Request) string {
	var payload struct {
		Options struct {
			Bookmarks []string `json:"bookmarks"`
		} `json:"options"`
	}
	json.Unmarshal([]byte(r.URL.Query().Get("data")), &payload)
	if len(payload.Options.Bookmarks) > 0 {
		return payload.Options.Bookmarks[0]
	}
	return ""
}

func pinJSON(id, title string) string {
	return fmt.Sprintf(`{"id": %q, "type": "pin", "grid_title": %q, "domain": "example.com", "images": {"orig": {"url": "http://{{host}}/media/%s.jpg", "width": 1200, "height": 900}, "236x": {"url": "http://{{host}}/media/%s_small.jpg", "width": 236, "height": 177}}}`, id, title, id, id)
}

func newTestSync(t *testing.T, serverURL, outputDir string) *SyncController {
	t.Helper()

	cfg := &config.Config{
		OutputDir:       outputDir,
		Concurrency:     2,
		MaxRetries:      1,
		Quality:         models.QualityPrioritizeHigh,
		DownloadTimeout: 5 * time.Second,
		PageSize:        2,
		PageDelay:       time.Millisecond,
		BaseURL:         serverURL,
		UserAgent:       "test-agent",
		HTTPTimeout:     5 * time.Second,
		RetryBaseDelay:  time.Millisecond,
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	client, err := pinterest.NewClient(cfg, logger)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	resolver, err := NewMediaResolver(cfg.Quality, logger)
	if err != nil {
		t.Fatalf("NewMediaResolver() error = %v", err)
	}

	return NewSyncController(client, resolver, NewCleanupController(logger), cfg, metrics.New(), logger)
}

func twoPageBoard() map[string]feedPage {
	return map[string]feedPage{
		"": {
			pins:     []string{pinJSON("101", "Beach"), pinJSON("102", "Harbor")},
			bookmark: "cursor-2",
		},
		"cursor-2": {
			pins:     []string{pinJSON("201", "Sunset")},
			bookmark: "-end-",
		},
	}
}

func TestSyncBoardDownloadsWholeBoard(t *testing.T) {
	server := newBoardServer(t, twoPageBoard())
	defer server.Close()

	outputDir := t.TempDir()
	sync := newTestSync(t, server.URL, outputDir)

	summary, err := sync.SyncBoard(context.Background(), models.BoardRef{Owner: "jane", Slug: "summer-trip"}, utils.NewExclusionList(nil))
	if err != nil {
		t.Fatalf("SyncBoard() error = %v", err)
	}
	if summary.Succeeded != 3 || summary.Failed != 0 || summary.Skipped != 0 {
		t.Fatalf("unexpected summary: %s", summary)
	}

	for _, name := range []string{"101.jpg", "102.jpg", "201.jpg"} {
		path := filepath.Join(outputDir, "jane", "summer-trip", name)
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("expected %s on disk: %v", name, err)
		}
		if string(data) != "media-bytes-"+name {
			t.Errorf("unexpected content for %s: %q", name, data)
		}
	}
}

func TestSyncBoardSecondRunSkipsEverything(t *testing.T) {
	server := newBoardServer(t, twoPageBoard())
	defer server.Close()

	outputDir := t.TempDir()
	sync := newTestSync(t, server.URL, outputDir)
	ctx := context.Background()
	ref := models.BoardRef{Owner: "jane", Slug: "summer-trip"}

	if _, err := sync.SyncBoard(ctx, ref, utils.NewExclusionList(nil)); err != nil {
		t.Fatalf("first SyncBoard() error = %v", err)
	}

	// A fresh controller, as a new process would have
	sync = newTestSync(t, server.URL, outputDir)
	summary, err := sync.SyncBoard(ctx, ref, utils.NewExclusionList(nil))
	if err != nil {
		t.Fatalf("second SyncBoard() error = %v", err)
	}
	if summary.Skipped != 3 || summary.Succeeded != 0 {
		t.Fatalf("expected everything skipped on re-run, got %s", summary)
	}
}

func TestSyncBoardNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/resource/BoardResource/get/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	sync := newTestSync(t, server.URL, t.TempDir())
	_, err := sync.SyncBoard(context.Background(), models.BoardRef{Owner: "jane", Slug: "gone"}, utils.NewExclusionList(nil))
	if !errors.Is(err, models.ErrBoardNotFound) {
		t.Fatalf("expected ErrBoardNotFound, got %v", err)
	}
	if !IsStartupError(err) {
		t.Error("board-not-found must classify as a startup error")
	}
}

func TestSyncBoardSweepsStalePartials(t *testing.T) {
	server := newBoardServer(t, twoPageBoard())
	defer server.Close()

	outputDir := t.TempDir()
	destDir := filepath.Join(outputDir, "jane", "summer-trip")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(destDir, "999.jpg.part")
	if err := os.WriteFile(stale, []byte("half"), 0644); err != nil {
		t.Fatal(err)
	}

	sync := newTestSync(t, server.URL, outputDir)
	if _, err := sync.SyncBoard(context.Background(), models.BoardRef{Owner: "jane", Slug: "summer-trip"}, utils.NewExclusionList(nil)); err != nil {
		t.Fatalf("SyncBoard() error = %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale partial file survived the sync")
	}
}

func TestSyncBoardCountsUnresolvableItems(t *testing.T) {
	pages := map[string]feedPage{
		"": {
			pins: []string{
				pinJSON("101", "Beach"),
				`{"id": "103", "type": "pin", "grid_title": "Broken", "domain": "", "images": {}}`,
			},
			bookmark: "-end-",
		},
	}
	server := newBoardServer(t, pages)
	defer server.Close()

	sync := newTestSync(t, server.URL, t.TempDir())
	summary, err := sync.SyncBoard(context.Background(), models.BoardRef{Owner: "jane", Slug: "summer-trip"}, utils.NewExclusionList(nil))
	if err != nil {
		t.Fatalf("SyncBoard() error = %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %s", summary)
	}
}

func TestSyncBoardHonorsExclusionList(t *testing.T) {
	pages := map[string]feedPage{
		"": {
			pins:     []string{pinJSON("101", "Beach"), pinJSON("102", "Cute cats compilation")},
			bookmark: "-end-",
		},
	}
	server := newBoardServer(t, pages)
	defer server.Close()

	outputDir := t.TempDir()
	sync := newTestSync(t, server.URL, outputDir)
	summary, err := sync.SyncBoard(context.Background(), models.BoardRef{Owner: "jane", Slug: "summer-trip"}, utils.NewExclusionList([]string{"cats"}))
	if err != nil {
		t.Fatalf("SyncBoard() error = %v", err)
	}
	// Excluded items never reach the scheduler, so they are not counted
	if summary.Total() != 1 || summary.Succeeded != 1 {
		t.Fatalf("unexpected summary: %s", summary)
	}
	if _, err := os.Stat(filepath.Join(outputDir, "jane", "summer-trip", "102.jpg")); !os.IsNotExist(err) {
		t.Error("excluded item was downloaded")
	}
}

func TestSyncBoardPaginationAbortKeepsPartialWork(t *testing.T) {
	pages := map[string]feedPage{
		"": {
			pins:     []string{pinJSON("101", "Beach"), pinJSON("102", "Harbor")},
			bookmark: "cursor-2",
		},
		"cursor-2": {status: http.StatusInternalServerError},
	}
	server := newBoardServer(t, pages)
	defer server.Close()

	outputDir := t.TempDir()
	sync := newTestSync(t, server.URL, outputDir)
	summary, err := sync.SyncBoard(context.Background(), models.BoardRef{Owner: "jane", Slug: "summer-trip"}, utils.NewExclusionList(nil))
	if err == nil {
		t.Fatal("expected pagination error")
	}
	if !strings.Contains(err.Error(), "pagination aborted") {
		t.Errorf("unexpected error: %v", err)
	}
	if IsStartupError(err) {
		t.Error("a mid-run pagination failure is not a startup error")
	}
	// The first page finished downloading before the abort
	if summary.Succeeded != 2 {
		t.Errorf("expected partial work to survive, got %s", summary)
	}
}
