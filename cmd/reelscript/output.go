package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/reelscript/internal/pipeline"
	"github.com/kingrea/reelscript/internal/task"
)

var styles = struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	body    lipgloss.Style
	failure lipgloss.Style
}{
	title: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")),
	muted: lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")),
	body: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(88),
	failure: lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")),
}

func render(res pipeline.Result) string {
	header := styles.title.Render(res.Target)
	if res.RunID != "" {
		header += " " + styles.muted.Render("run "+res.RunID)
	}
	if res.Err != nil {
		lines := []string{header, renderFailure(res.Err)}
		for _, line := range res.Journal {
			lines = append(lines, styles.muted.Render("  "+line))
		}
		return strings.Join(lines, "\n")
	}
	lines := []string{header, styles.body.Render(res.Text())}
	for _, path := range res.Exported {
		lines = append(lines, styles.muted.Render("exported "+path))
	}
	return strings.Join(lines, "\n")
}

func renderFailure(err error) string {
	msg := err.Error()
	var failure *task.Failure
	if errors.As(err, &failure) {
		msg = fmt.Sprintf("failed in %s (%s): %v", failure.Phase, failure.TaskID, failure.Err)
	}
	out := styles.failure.Render(msg)
	if task.Retryable(err) {
		out += "\n" + styles.muted.Render("transient failure; running again may succeed")
	}
	return out
}
