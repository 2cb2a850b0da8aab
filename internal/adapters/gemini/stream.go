package gemini

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kingrea/reelscript/internal/task"
)

const maxEventSize = 4 << 20

// ChunkStream yields the text of a streamed response one event at a time.
// Recv returns io.EOF only after the server signalled a finish reason; a body
// that ends earlier, or breaks mid-read, yields task.ErrExtractionIncomplete.
type ChunkStream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	finished bool
	finish   string
	err      error
}

func newChunkStream(body io.ReadCloser) *ChunkStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxEventSize)
	return &ChunkStream{body: body, scanner: scanner}
}

// Recv returns the next non-empty text chunk.
func (s *ChunkStream) Recv() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	for {
		if s.finished {
			s.err = io.EOF
			return "", s.err
		}
		data, ok := s.nextEvent()
		if !ok {
			if err := s.scanner.Err(); err != nil {
				s.err = fmt.Errorf("gemini: %w: read stream: %v", task.ErrExtractionIncomplete, err)
			} else {
				s.err = fmt.Errorf("gemini: %w: stream ended without a finish reason", task.ErrExtractionIncomplete)
			}
			return "", s.err
		}
		var event generateResponse
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			s.err = fmt.Errorf("gemini: %w: decode event: %v", task.ErrExtractionIncomplete, err)
			return "", s.err
		}
		if event.Error != nil {
			s.err = fmt.Errorf("gemini: %w: %s", task.ErrExtractionIncomplete, event.Error.Message)
			return "", s.err
		}
		if reason := event.blockReason(); reason != "" {
			s.err = fmt.Errorf("gemini: %w: prompt blocked (%s)", task.ErrExtractionIncomplete, reason)
			return "", s.err
		}
		if reason := event.finishReason(); reason != "" {
			s.finished = true
			s.finish = reason
		}
		if text := event.text(); text != "" {
			return text, nil
		}
	}
}

// FinishReason reports the reason the server gave for ending the stream.
func (s *ChunkStream) FinishReason() string {
	return s.finish
}

// Close releases the response body.
func (s *ChunkStream) Close() error {
	if s == nil || s.body == nil {
		return nil
	}
	return s.body.Close()
}

// nextEvent returns the payload of the next "data:" event. Multi-line events
// are joined with newlines; comment and field lines other than data are ignored.
func (s *ChunkStream) nextEvent() (string, bool) {
	var lines []string
	for s.scanner.Scan() {
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if line == "" {
			if len(lines) > 0 {
				return strings.Join(lines, "\n"), true
			}
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
		if payload == "[DONE]" {
			continue
		}
		lines = append(lines, payload)
	}
	if len(lines) > 0 && s.scanner.Err() == nil {
		return strings.Join(lines, "\n"), true
	}
	return "", false
}

// Collect drains the stream into a single string.
func Collect(stream *ChunkStream) (string, error) {
	var b strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			return b.String(), nil
		}
		if err != nil {
			return "", err
		}
		b.WriteString(chunk)
	}
}
