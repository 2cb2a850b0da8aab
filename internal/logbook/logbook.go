package logbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a journal entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logbook journals the progress of a single run. Entries are always kept in
// memory; when a path is configured they are also appended to that file.
type Logbook struct {
	path  string
	mu    sync.Mutex
	lines []string
	now   func() time.Time
}

// New creates a logbook that also writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path, now: time.Now}, nil
}

// NewMemory creates a logbook that is never written to disk.
func NewMemory() *Logbook {
	return &Logbook{now: time.Now}
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single entry to the logbook.
func (l *Logbook) Append(level Level, message string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	line := fmt.Sprintf("%s %-5s %s",
		now().UTC().Format(time.RFC3339),
		string(level),
		strings.TrimSpace(message),
	)
	l.lines = append(l.lines, line)
	if l.path == "" {
		return
	}
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer file.Close()
	_, _ = file.WriteString(line + "\n")
}

// Tail returns up to maxLines of the most recent entries plus the total count.
func (l *Logbook) Tail(maxLines int) ([]string, int) {
	if l == nil {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	total := len(l.lines)
	if maxLines <= 0 || total == 0 {
		return nil, total
	}
	start := 0
	if total > maxLines {
		start = total - maxLines
	}
	return append([]string{}, l.lines[start:]...), total
}

// Info appends an informational entry.
func (l *Logbook) Info(format string, args ...any) {
	l.Append(LevelInfo, fmt.Sprintf(format, args...))
}

// Warn appends a warning entry.
func (l *Logbook) Warn(format string, args ...any) {
	l.Append(LevelWarn, fmt.Sprintf(format, args...))
}

// Error appends an error entry.
func (l *Logbook) Error(format string, args ...any) {
	l.Append(LevelError, fmt.Sprintf(format, args...))
}
