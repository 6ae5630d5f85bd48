// Package tui renders the execution state model, either as a live Bubble
// Tea view or as plain log lines for non-interactive output.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/vinayprograms/execmon/internal/state"
)

// Component color scheme - each entity kind has a distinct, consistent color.
var (
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")) // Gray - timestamps, metadata

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")) // White bold - section headers

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	// Root message flow - white
	flowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15"))

	// Invocations - blue
	toolStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	// Sub-executions - magenta
	subagentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13"))

	subagentDimStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("5"))

	// Outcomes
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")) // Green

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")) // Red

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11")) // Yellow

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))
)

// categoryStyle picks the log line color for a category.
func categoryStyle(c state.LogCategory) lipgloss.Style {
	switch c {
	case state.LogTool:
		return toolStyle
	case state.LogSubagent:
		return subagentStyle
	case state.LogMessage:
		return flowStyle
	case state.LogError:
		return errorStyle
	default:
		return dimStyle
	}
}

// statusStyle picks the color for the overall status.
func statusStyle(s state.Status) lipgloss.Style {
	switch s {
	case state.StatusCompleted:
		return successStyle
	case state.StatusError:
		return errorStyle
	case state.StatusRunning:
		return warnStyle
	default:
		return dimStyle
	}
}
