package pipeline

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kingrea/reelscript/internal/artifact"
)

// Keyword groups, checked from the last chain step back to the first so a
// prompt naming a later step wins.
var routes = []struct {
	target   string
	keywords []string
}{
	{artifact.GeneratedArtifact.ID, []string{"script", "scripts", "voiceover", "voice", "shorts", "reel"}},
	{artifact.ExtractedContent.ID, []string{"transcript", "transcribe", "extract", "text"}},
	{artifact.Selected.ID, []string{"choose", "pick", "random", "select"}},
	{artifact.Candidates.ID, []string{"list", "videos", "show", "playlist"}},
}

// ParseTarget routes a free-form prompt to the state key it asks for.
// Anything unrecognised asks for the generated script.
func ParseTarget(prompt string) string {
	words := map[string]bool{}
	for _, word := range strings.FieldsFunc(strings.ToLower(prompt), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		words[word] = true
	}
	for _, route := range routes {
		for _, keyword := range route.keywords {
			if words[keyword] {
				return route.target
			}
		}
	}
	return artifact.GeneratedArtifact.ID
}

// Text renders a result value for terminal output.
func (r Result) Text() string {
	switch v := r.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case artifact.SelectedItem:
		return describe(v.Title, v.Locator)
	case []artifact.CandidateItem:
		lines := make([]string, 0, len(v))
		for i, item := range v {
			lines = append(lines, fmt.Sprintf("%2d. %s", i+1, describe(item.Title, item.Locator)))
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprint(v)
	}
}

func describe(title, locator string) string {
	if strings.TrimSpace(title) == "" {
		return locator
	}
	return title + "  " + locator
}
