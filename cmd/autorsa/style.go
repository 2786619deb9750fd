package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	totalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	noteStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// styledConsole prints report messages to a terminal, highlighting errors
// and totals.
type styledConsole struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *styledConsole) Report(_ context.Context, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, styleLine(msg))
}

func styleLine(msg string) string {
	switch {
	case strings.HasPrefix(msg, "Error"):
		return errorStyle.Render(msg)
	case strings.HasPrefix(msg, "Total Value"):
		return totalStyle.Render(msg)
	case strings.HasPrefix(msg, "Note:"):
		return noteStyle.Render(msg)
	case strings.HasPrefix(msg, "All ") && strings.HasSuffix(msg, "complete"),
		msg == "All commands complete in all brokers":
		return doneStyle.Render(msg)
	}
	return msg
}
