package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kingrea/reelscript/internal/task"
)

const threeItems = `{
  "items": [
    {"snippet": {"title": "First", "resourceId": {"videoId": "AAAAAAAAAAA"}}},
    {"snippet": {"title": "Private", "resourceId": {}}},
    {"snippet": {"title": "Second", "resourceId": {"videoId": "BBBBBBBBBBB"}}},
    {"snippet": {"title": "Third", "resourceId": {"videoId": "CCCCCCCCCCC"}}}
  ]
}`

func TestListItemsReturnsOrderedCandidates(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/playlistItems" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		gotQuery = map[string]string{
			"part":       q.Get("part"),
			"playlistId": q.Get("playlistId"),
			"maxResults": q.Get("maxResults"),
			"key":        q.Get("key"),
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(threeItems))
	}))
	defer srv.Close()

	client := New("secret", WithBaseURL(srv.URL))
	items, err := client.ListItems(context.Background(), "UU123", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[1].ID != "BBBBBBBBBBB" || items[1].Locator != "https://www.youtube.com/watch?v=BBBBBBBBBBB" || items[1].Title != "Second" {
		t.Fatalf("unexpected item: %+v", items[1])
	}
	want := map[string]string{"part": "snippet", "playlistId": "UU123", "maxResults": "50", "key": "secret"}
	for k, v := range want {
		if gotQuery[k] != v {
			t.Fatalf("query %s = %q, want %q", k, gotQuery[k], v)
		}
	}
}

func TestListItemsHonoursSmallPageSize(t *testing.T) {
	var maxResults string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		maxResults = r.URL.Query().Get("maxResults")
		_, _ = w.Write([]byte(threeItems))
	}))
	defer srv.Close()
	if _, err := New("k", WithBaseURL(srv.URL)).ListItems(context.Background(), "UU1", 10); err != nil {
		t.Fatalf("list: %v", err)
	}
	if maxResults != "10" {
		t.Fatalf("maxResults = %q", maxResults)
	}
}

func TestListItemsEmptyPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()
	_, err := New("k", WithBaseURL(srv.URL)).ListItems(context.Background(), "UU1", 50)
	if !errors.Is(err, task.ErrEmptyResult) {
		t.Fatalf("expected ErrEmptyResult, got %v", err)
	}
}

func TestListItemsMapsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "quota exceeded"}}`))
	}))
	defer srv.Close()
	_, err := New("k", WithBaseURL(srv.URL)).ListItems(context.Background(), "UU1", 50)
	if !errors.Is(err, task.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if !task.Retryable(err) {
		t.Fatalf("source unavailable should be retryable")
	}
}

func TestListItemsRejectsUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()
	_, err := New("k", WithBaseURL(srv.URL)).ListItems(context.Background(), "UU1", 50)
	if !errors.Is(err, task.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestListItemsRequiresConfiguration(t *testing.T) {
	_, err := New("").ListItems(context.Background(), "UU1", 50)
	if !errors.Is(err, task.ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
	_, err = New("k").ListItems(context.Background(), " ", 50)
	if !errors.Is(err, task.ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing for empty playlist, got %v", err)
	}
}

func TestListItemsTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New("k", WithBaseURL(srv.URL)).ListItems(ctx, "UU1", 50)
	if !errors.Is(err, task.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable on deadline, got %v", err)
	}
}

func TestParseLocator(t *testing.T) {
	cases := map[string]string{
		"dQw4w9WgXcQ":                                  "dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ":  "dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ":                 "dQw4w9WgXcQ",
		"https://m.youtube.com/shorts/dQw4w9WgXcQ":     "dQw4w9WgXcQ",
		"https://www.youtube.com/embed/dQw4w9WgXcQ":    "dQw4w9WgXcQ",
		"https://www.youtube.com/watch?v=short":        "",
		"https://example.com/watch?v=dQw4w9WgXcQ":      "",
		"write me a script":                            "",
	}
	for input, want := range cases {
		item, ok := ParseLocator(input)
		if want == "" {
			if ok {
				t.Fatalf("%q should not parse, got %+v", input, item)
			}
			continue
		}
		if !ok || item.ID != want || item.Locator != WatchURL(want) {
			t.Fatalf("%q parsed to %+v %v", input, item, ok)
		}
	}
}

func TestFindLocatorInPrompt(t *testing.T) {
	item, ok := FindLocator("write a script for https://youtu.be/dQw4w9WgXcQ, thanks")
	if !ok || item.ID != "dQw4w9WgXcQ" {
		t.Fatalf("expected locator, got %+v %v", item, ok)
	}
	if _, ok := FindLocator("write a script for a random video"); ok {
		t.Fatalf("no locator expected")
	}
}
