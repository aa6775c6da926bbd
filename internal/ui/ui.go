// Package ui provides formatted output utilities for the CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
)

// Color functions for consistent styling.
var (
	Green  = color.New(color.FgGreen).SprintFunc()
	Red    = color.New(color.FgRed).SprintFunc()
	Yellow = color.New(color.FgYellow).SprintFunc()
	Blue   = color.New(color.FgBlue).SprintFunc()
	Cyan   = color.New(color.FgCyan).SprintFunc()
	Dim    = color.New(color.Faint).SprintFunc() // Dimmed text (more readable than gray)
	Bold   = color.New(color.Bold).SprintFunc()
)

// Output is the destination for UI output.
// Defaults to os.Stdout but can be overridden for testing.
var Output io.Writer = os.Stdout

// Daemon states shown by StatusBadge.
const (
	StateRunning    = "running"
	StateStale      = "stale"
	StateNotRunning = "not-running"
)

// StatusBadge returns a colored status indicator with label.
func StatusBadge(state string) string {
	switch state {
	case StateRunning:
		return Green("● Running")
	case StateStale:
		return Yellow("◐ Stale")
	default:
		return Red("○ Not Running")
	}
}

// DaemonStatus is the daemon information shown by `btu status`.
type DaemonStatus struct {
	State   string
	PID     int
	Socket  string
	Latency string // round trip of a ping, empty when not answered
	LogPath string
}

// PrintStatus prints daemon status in a formatted style.
func PrintStatus(s DaemonStatus) {
	fmt.Fprintf(Output, "%s %s\n", Bold("Status:"), StatusBadge(s.State))
	if s.PID > 0 {
		fmt.Fprintf(Output, "%s %d\n", Bold("PID:"), s.PID)
	}
	fmt.Fprintf(Output, "%s %s\n", Bold("Socket:"), Blue(s.Socket))
	if s.Latency != "" {
		fmt.Fprintf(Output, "%s %s\n", Bold("Ping:"), Dim(s.Latency))
	}
	fmt.Fprintf(Output, "%s %s\n", Bold("Logs:"), s.LogPath)
}

// ScheduleInfo represents a schedule definition for display.
type ScheduleInfo struct {
	ID          string
	Task        string
	Cron        string
	Enabled     bool
	Description string
}

// PrintScheduleList prints schedule definitions as an aligned table.
func PrintScheduleList(schedules []ScheduleInfo) {
	if len(schedules) == 0 {
		fmt.Fprintln(Output, "No task schedules defined.")
		return
	}

	fmt.Fprintln(Output, Bold("Task schedules:"))
	tw := tabwriter.NewWriter(Output, 0, 4, 2, ' ', 0)
	for _, s := range schedules {
		state := ""
		if !s.Enabled {
			state = Yellow("disabled")
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", Cyan(s.ID), Dim(s.Cron), s.Task, state)
	}
	tw.Flush()
}

// PrintScheduleDetails prints a single schedule definition.
func PrintScheduleDetails(s ScheduleInfo) {
	fmt.Fprintf(Output, "%s %s\n", Bold("ID:"), Cyan(s.ID))
	fmt.Fprintf(Output, "%s %s\n", Bold("Task:"), s.Task)
	if s.Cron != "" {
		fmt.Fprintf(Output, "%s %s\n", Bold("Cron:"), s.Cron)
	}
	enabled := Green("yes")
	if !s.Enabled {
		enabled = Yellow("no")
	}
	fmt.Fprintf(Output, "%s %s\n", Bold("Enabled:"), enabled)
	if s.Description != "" {
		fmt.Fprintf(Output, "%s %s\n", Bold("Description:"), s.Description)
	}
}

// PrintSuccess prints a success message with green checkmark.
func PrintSuccess(message string) {
	fmt.Fprintf(Output, "%s %s\n", Green("✓"), message)
}

// PrintError prints an error message with red X.
func PrintError(message string) {
	fmt.Fprintf(Output, "%s %s\n", Red("✗"), message)
}

// PrintWarning prints a warning message with yellow exclamation.
func PrintWarning(message string) {
	fmt.Fprintf(Output, "%s %s\n", Yellow("⚠"), message)
}

// PrintInfo prints an info message with blue dot.
func PrintInfo(message string) {
	fmt.Fprintf(Output, "%s %s\n", Blue("•"), message)
}
