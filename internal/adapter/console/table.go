// Package console renders the worker status table for terminal output.
package console

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"hivescan/internal/app/status"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89b4fa"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#cdd6f4"))
	cellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6adc8"))
	pausedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f38ba8"))
)

type column struct {
	title string
	width int
	value func(status.WorkerStatus) string
}

var columns = []column{
	{"Worker", 7, func(s status.WorkerStatus) string { return s.WorkerID }},
	{"Username", 16, func(s status.WorkerStatus) string { return s.Username }},
	{"Success", 8, func(s status.WorkerStatus) string { return strconv.Itoa(s.Success) }},
	{"Failed", 7, func(s status.WorkerStatus) string { return strconv.Itoa(s.Fail) }},
	{"Empty", 6, func(s status.WorkerStatus) string { return strconv.Itoa(s.NoItems) }},
	{"Skipped", 8, func(s status.WorkerStatus) string { return strconv.Itoa(s.Skip) }},
	{"Captchas", 9, func(s status.WorkerStatus) string { return strconv.Itoa(s.Captcha) }},
	{"Message", 48, func(s status.WorkerStatus) string { return s.Message }},
}

type Snapshotter interface {
	Snapshot() status.Snapshot
}

// Render draws the overseer line and one row per worker, ordered by id.
func Render(snap status.Snapshot) string {
	var b strings.Builder
	title := titleStyle.Render(snap.Overseer.Message)
	if snap.Overseer.Paused {
		title = pausedStyle.Render("PAUSED") + " " + title
	}
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Accounts working: %d  captcha: %d  failed: %d\n",
		snap.Overseer.AccountsWorking, snap.Overseer.AccountsCaptcha, snap.Overseer.AccountsFailed))

	headers := make([]string, 0, len(columns))
	for _, c := range columns {
		headers = append(headers, headerStyle.Width(c.width).MaxWidth(c.width).Render(c.title))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, headers...))
	b.WriteString("\n")

	ids := make([]string, 0, len(snap.Workers))
	for id := range snap.Workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		w := snap.Workers[id]
		cells := make([]string, 0, len(columns))
		for _, c := range columns {
			cells = append(cells, cellStyle.Width(c.width).MaxWidth(c.width).Render(c.value(w)))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
		b.WriteString("\n")
	}
	return b.String()
}

// Run writes the table to out every interval until ctx is done.
func Run(ctx context.Context, src Snapshotter, out io.Writer, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = io.WriteString(out, Render(src.Snapshot()))
		}
	}
}
