// Package youtube lists the items of a YouTube playlist through the Data API.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/kingrea/reelscript/internal/artifact"
	"github.com/kingrea/reelscript/internal/task"
)

const (
	// DefaultBaseURL is the public Data API root.
	DefaultBaseURL = "https://www.googleapis.com/youtube/v3"
	// WatchBaseURL prefixes a video id to form its locator.
	WatchBaseURL = "https://www.youtube.com/watch?v="

	// MaxPageSize is the largest page the playlistItems endpoint serves.
	MaxPageSize = 50
)

// Client calls the playlistItems endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root (tests, proxies).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.baseURL = base
		}
	}
}

// WithHTTPClient replaces the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New builds a client. A missing key is reported by ListItems.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  strings.TrimSpace(apiKey),
		http:    &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type playlistItemsResponse struct {
	Items []struct {
		Snippet struct {
			Title      string `json:"title"`
			ResourceID struct {
				VideoID string `json:"videoId"`
			} `json:"resourceId"`
		} `json:"snippet"`
	} `json:"items"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ListItems fetches one page of the playlist and returns its videos in
// playlist order. Entries without a video id are skipped.
func (c *Client) ListItems(ctx context.Context, collectionID string, pageSize int) ([]artifact.CandidateItem, error) {
	collectionID = strings.TrimSpace(collectionID)
	if c.apiKey == "" || collectionID == "" {
		return nil, fmt.Errorf("youtube: %w: api key and playlist id are required", task.ErrConfigurationMissing)
	}
	pageSize = clampPageSize(pageSize)

	query := url.Values{}
	query.Set("part", "snippet")
	query.Set("playlistId", collectionID)
	query.Set("maxResults", fmt.Sprint(pageSize))
	query.Set("key", c.apiKey)
	endpoint := c.baseURL + "/playlistItems?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("youtube: %w: %v", task.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("youtube: %w: %v", task.ErrSourceUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("youtube: %w: %s", task.ErrSourceUnavailable, describeError(res))
	}
	var payload playlistItemsResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("youtube: %w: decode response: %v", task.ErrSourceUnavailable, err)
	}
	items := make([]artifact.CandidateItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		id := strings.TrimSpace(item.Snippet.ResourceID.VideoID)
		if id == "" {
			continue
		}
		items = append(items, artifact.CandidateItem{
			ID:      id,
			Locator: WatchURL(id),
			Title:   item.Snippet.Title,
		})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("youtube: %w: playlist %s has no videos", task.ErrEmptyResult, collectionID)
	}
	return items, nil
}

func clampPageSize(n int) int {
	if n <= 0 || n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

func describeError(res *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Sprintf("status %d: %s", res.StatusCode, parsed.Error.Message)
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		text = http.StatusText(res.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", res.StatusCode, text)
}
