package transform

import (
	"fmt"
	"strings"
)

// Style carries the directives that shape the script.
type Style struct {
	Audience string
	Tone     string
	MaxWords int
	Focus    string
}

// DefaultStyle is the voiceover style the chain was built around.
func DefaultStyle() Style {
	return Style{
		Audience: "female",
		Tone:     "direct, simple, animated, engaging and inclusive",
		MaxWords: 150,
		Focus:    "the most engaging section or one specific topic",
	}
}

func (s Style) withDefaults() Style {
	def := DefaultStyle()
	if strings.TrimSpace(s.Audience) == "" {
		s.Audience = def.Audience
	}
	if strings.TrimSpace(s.Tone) == "" {
		s.Tone = def.Tone
	}
	if s.MaxWords <= 0 {
		s.MaxWords = def.MaxWords
	}
	if strings.TrimSpace(s.Focus) == "" {
		s.Focus = def.Focus
	}
	return s
}

// Instruction renders the system instruction for the generation call.
func (s Style) Instruction() string {
	s = s.withDefaults()
	var b strings.Builder
	fmt.Fprintf(&b, "You will receive the extracted text of a video. Identify and focus on %s discussed within the text. Do not attempt to summarize the entire video.\n\n", s.Focus)
	fmt.Fprintf(&b, "Write a concise, highly engaging voiceover script for a short video (YouTube Shorts, Instagram Reels, TikTok) based on that portion, tailored to a %s audience. ", s.Audience)
	b.WriteString("The script must flow naturally when read aloud and grab attention in the first line.\n\n")
	fmt.Fprintf(&b, "Communication style: %s.\n", s.Tone)
	fmt.Fprintf(&b, "Keep it under %d words. Return only the script text.", s.MaxWords)
	return b.String()
}
