package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"github.com/vinayprograms/execmon/internal/state"
	"github.com/vinayprograms/execmon/internal/stream"
)

const (
	minWidth        = 40
	rootTailLines   = 8
	finishedShown   = 5
	logLinesShown   = 20
	previewIndent   = "      "
	continuationPad = "  "
)

// renderHeader renders the one-line status bar.
func renderHeader(snap state.Snapshot, spin string, now time.Time) string {
	elapsed := time.Duration(0)
	if !snap.Started.IsZero() {
		end := now
		if !snap.Ended.IsZero() {
			end = snap.Ended
		}
		elapsed = end.Sub(snap.Started).Round(100 * time.Millisecond)
	}

	active := len(snap.ActiveSubExecutions())
	done := len(snap.SubExecutions) - active
	status := statusStyle(snap.Status).Render(string(snap.Status))
	if snap.Status == state.StatusRunning && spin != "" {
		status = spin + " " + status
	}
	return fmt.Sprintf("%s %s  %s  %s",
		headerStyle.Render("execmon"),
		status,
		dimStyle.Render(elapsed.String()),
		dimStyle.Render(fmt.Sprintf("%d active · %d done · %d invocations · %d artifacts",
			active, done, len(snap.Invocations), snap.Artifacts)),
	)
}

// renderBody renders every section of the snapshot wrapped to width.
func renderBody(snap state.Snapshot, width int, now time.Time) string {
	if width < minWidth {
		width = minWidth
	}
	var b strings.Builder

	if snap.Diagnostic != "" {
		b.WriteString(errorStyle.Render("Engine failure") + "\n")
		for _, line := range strings.Split(wordwrap.String(snap.Diagnostic, width-2), "\n") {
			b.WriteString(continuationPad + errorStyle.Render(line) + "\n")
		}
		b.WriteString("\n")
	}

	if len(snap.Tasks) > 0 {
		b.WriteString(titleStyle.Render("Tasks") + "\n")
		for _, t := range snap.Tasks {
			b.WriteString(continuationPad + taskLine(t, width-2) + "\n")
		}
		b.WriteString("\n")
	}

	if len(snap.SubExecutions) > 0 {
		b.WriteString(titleStyle.Render("Sub-executions") + "\n")
		for _, sub := range visibleSubExecutions(snap.SubExecutions) {
			b.WriteString(subLines(sub, width, now))
		}
		b.WriteString("\n")
	}

	if root := strings.TrimSpace(snap.RootMessage); root != "" {
		b.WriteString(titleStyle.Render("Message") + "\n")
		lines := strings.Split(wordwrap.String(root, width-2), "\n")
		if len(lines) > rootTailLines {
			lines = lines[len(lines)-rootTailLines:]
		}
		for _, line := range lines {
			b.WriteString(continuationPad + flowStyle.Render(line) + "\n")
		}
		b.WriteString("\n")
	}

	if len(snap.Logs) > 0 {
		b.WriteString(titleStyle.Render(fmt.Sprintf("Log (%d/%d)", len(snap.Logs), snap.LogCapacity)) + "\n")
		logs := snap.Logs
		if len(logs) > logLinesShown {
			logs = logs[len(logs)-logLinesShown:]
		}
		for _, e := range logs {
			b.WriteString(continuationPad + logLine(e, width-2) + "\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// visibleSubExecutions keeps every active sub-execution and the most recent
// finished ones.
func visibleSubExecutions(subs []state.SubExecution) []state.SubExecution {
	var active, finished []state.SubExecution
	for _, s := range subs {
		if s.Status.IsTerminal() {
			finished = append(finished, s)
		} else {
			active = append(active, s)
		}
	}
	if len(finished) > finishedShown {
		finished = finished[len(finished)-finishedShown:]
	}
	return append(active, finished...)
}

func subLines(sub state.SubExecution, width int, now time.Time) string {
	var icon string
	switch sub.Status {
	case state.SubCompleted:
		icon = successStyle.Render("✓")
	case state.SubError:
		icon = errorStyle.Render("✗")
	case state.SubSpawning:
		icon = subagentDimStyle.Render("◌")
	default:
		icon = subagentStyle.Render("●")
	}

	dur := sub.Duration(now).Round(100 * time.Millisecond)
	head := fmt.Sprintf("%s %s %s", subagentStyle.Render(sub.Name), dimStyle.Render(string(sub.Status)), dimStyle.Render(dur.String()))
	if sub.ToolCalls > 0 {
		head += dimStyle.Render(fmt.Sprintf(" · %d tools", sub.ToolCalls))
	}
	if !sub.Status.IsTerminal() && sub.Activity != "" {
		head += dimStyle.Render(" · → " + sub.Activity)
	}

	var b strings.Builder
	b.WriteString(continuationPad + icon + " " + head + "\n")
	if sub.Description != "" {
		b.WriteString(previewIndent + truncate.StringWithTail(sub.Description, uint(width-len(previewIndent)), "…") + "\n")
	}
	detail := sub.Preview
	if sub.Status.IsTerminal() {
		detail = sub.Result
	}
	if detail = lastLine(detail); detail != "" {
		style := subagentDimStyle
		if sub.Status == state.SubError {
			style = errorStyle
		}
		b.WriteString(previewIndent + style.Render(truncate.StringWithTail(detail, uint(width-len(previewIndent)), "…")) + "\n")
	}
	return b.String()
}

func taskLine(t state.TaskItem, width int) string {
	var icon string
	style := flowStyle
	switch t.Status {
	case stream.TaskCompleted:
		icon, style = successStyle.Render("✓"), dimStyle
	case stream.TaskInProgress:
		icon = warnStyle.Render("▸")
	case stream.TaskCancelled:
		icon, style = dimStyle.Render("–"), dimStyle
	default:
		icon = dimStyle.Render("○")
	}
	return icon + " " + style.Render(truncate.StringWithTail(t.Content, uint(width-2), "…"))
}

func logLine(e state.LogEntry, width int) string {
	prefix := e.Time.Format("15:04:05") + " " + fmt.Sprintf("%-8s", e.Category) + " "
	text := strings.ReplaceAll(e.Text, "\n", " ")
	text = truncate.StringWithTail(text, uint(max(width-len(prefix), 10)), "…")
	return dimStyle.Render(prefix) + categoryStyle(e.Category).Render(text)
}

// lastLine returns the last non-empty line of s.
func lastLine(s string) string {
	s = strings.TrimRight(s, "\n ")
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
