package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/reelscript/internal/workflow"
)

// Logger appends timestamped lines to .reelscript/logs/reelscript.log so
// failed runs can be inspected after the process exits.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	mirror io.Writer
	now    func() time.Time
}

// New creates (or reuses) the process log file for the data directory.
func New(wf *workflow.Workflow) (*Logger, error) {
	if err := os.MkdirAll(wf.LogsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := wf.LogPath()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return &Logger{file: f, now: time.Now}, nil
}

// Mirror copies every line to w as well (stderr in verbose mode).
func (l *Logger) Mirror(w io.Writer) *Logger {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	l.mirror = w
	l.mu.Unlock()
	return l
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Printf writes a single timestamped line to the log file.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.file == nil {
		return
	}
	line := fmt.Sprintf(format, args...)
	line = strings.TrimRight(line, "\n")
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	timestamp := now().Format(time.RFC3339)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.file, "[%s] %s\n", timestamp, line)
	if l.mirror != nil {
		fmt.Fprintf(l.mirror, "[%s] %s\n", timestamp, line)
	}
}
