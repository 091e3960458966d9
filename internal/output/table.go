// Package output provides terminal output utilities for fsauditd.
//
// This package includes:
//   - Table rendering for stored audit entries and resolved watch targets
//   - A waiter that reports daemon and service transitions while polling their state
//
// Tables use box-drawing separators and ANSI colors when stdout is a terminal.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/fsauditd/internal/audit"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// RenderEntryTable renders audit entries in the order given, newest first
// when they come from ListRecent.
func RenderEntryTable(entries []*audit.Entry) string {
	if len(entries) == 0 {
		return "No audit entries found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-6s %-26s %-16s %-12s %-10s %s\n",
		"ID", "Timestamp", "User", "Role", "Source", "Message"))
	sb.WriteString(strings.Repeat("─", 110))
	sb.WriteString("\n")

	for _, e := range entries {
		source := padRight(truncate(e.Source, 10), 10)
		sb.WriteString(fmt.Sprintf("%-6d %-26s %s %s %s %s\n",
			e.ID,
			e.Timestamp.Local().Format("2006-01-02 15:04:05.000000"),
			padRight(truncate(e.Username, 16), 16),
			padRight(truncate(e.Role, 12), 12),
			colorize(sourceColor(e.Source), source),
			truncate(e.Message, 80)))
	}
	return sb.String()
}

// RenderEntrySummary renders the footer under the entries table.
func RenderEntrySummary(shown int, total int64, newest time.Time) string {
	if total == 0 {
		return "0 entries stored."
	}
	return fmt.Sprintf("Showing %d of %d entries · newest %s", shown, total, formatRelativeTime(newest))
}

// TargetRow describes how a configured watch target resolved.
type TargetRow struct {
	Path      string
	Kind      string // "directory" or "file"
	Filter    string
	Recursive bool
	Security  bool
	Err       error
}

// RenderTargetTable renders configured watch targets and their status.
func RenderTargetTable(rows []TargetRow) string {
	if len(rows) == 0 {
		return "No watch targets configured.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-40s %-10s %-12s %-10s %s\n",
		"Path", "Kind", "Filter", "Recursive", "Status"))
	sb.WriteString(strings.Repeat("─", 90))
	sb.WriteString("\n")

	for _, r := range rows {
		filter := r.Filter
		if filter == "" {
			filter = "*"
		}
		recursive := "no"
		if r.Recursive {
			recursive = "yes"
		}

		var status string
		switch {
		case r.Err != nil:
			status = colorize(colorRed, "skipped: "+r.Err.Error())
		case r.Security:
			status = colorize(colorYellow, "active (security log)")
		default:
			status = colorize(colorGreen, "active")
		}

		sb.WriteString(fmt.Sprintf("%-40s %-10s %-12s %-10s %s\n",
			truncate(r.Path, 40),
			r.Kind,
			truncate(filter, 12),
			recursive,
			status))
	}
	return sb.String()
}

// sourceColor returns the ANSI color code for an entry source.
func sourceColor(source string) string {
	switch source {
	case audit.DefaultSourceSecurity:
		return colorYellow
	case audit.DefaultSourceFS:
		return colorGreen
	default:
		return colorGray
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	case diff < 30*24*time.Hour:
		return plural(int(diff.Hours()/24/7), "week")
	case diff < 365*24*time.Hour:
		return plural(int(diff.Hours()/24/30), "month")
	default:
		return plural(int(diff.Hours()/24/365), "year")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// truncate shortens s to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// padRight pads s with spaces to width runes. Colored columns must be padded
// before colorize is applied.
func padRight(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
