package youtube

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/kingrea/reelscript/internal/artifact"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// WatchURL returns the canonical locator for a video id.
func WatchURL(videoID string) string {
	return WatchBaseURL + videoID
}

// ParseLocator accepts a watch URL, a youtu.be short link, a shorts URL or a
// bare 11-character video id and returns the item it names.
func ParseLocator(raw string) (artifact.SelectedItem, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return artifact.SelectedItem{}, false
	}
	if videoIDPattern.MatchString(raw) {
		return selected(raw), true
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return artifact.SelectedItem{}, false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")
	var id string
	switch host {
	case "youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"):
			id = strings.TrimPrefix(u.Path, "/shorts/")
		case strings.HasPrefix(u.Path, "/embed/"):
			id = strings.TrimPrefix(u.Path, "/embed/")
		}
	case "youtu.be":
		id = strings.TrimPrefix(u.Path, "/")
	}
	id = strings.Trim(id, "/")
	if !videoIDPattern.MatchString(id) {
		return artifact.SelectedItem{}, false
	}
	return selected(id), true
}

// FindLocator scans free-form text for the first token that names a video.
func FindLocator(text string) (artifact.SelectedItem, bool) {
	for _, field := range strings.Fields(text) {
		field = strings.Trim(field, `"'()<>,.;`)
		if !strings.Contains(field, "youtu") {
			continue
		}
		if item, ok := ParseLocator(field); ok {
			return item, true
		}
	}
	return artifact.SelectedItem{}, false
}

func selected(id string) artifact.SelectedItem {
	return artifact.SelectedItem{ID: id, Locator: WatchURL(id)}
}
