package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vinayprograms/execmon/internal/monitor"
	"github.com/vinayprograms/execmon/internal/state"
	"github.com/vinayprograms/execmon/internal/stream"
)

func sampleModel() *state.Model {
	m := state.NewModel(50)
	m.Start()
	m.ReplaceTasks([]state.TaskItem{
		{Content: "plan the work", Status: stream.TaskCompleted},
		{Content: "index docs", Status: stream.TaskInProgress},
	})
	m.SpawnSubExecution("t1", "researcher", "index the docs folder", state.SubRunning)
	m.AppendPreview("t1", "reading README.md", 160)
	m.NoteSubActivity("t1", "read_file")
	m.SpawnSubExecution("t2", "writer", "draft summary", state.SubRunning)
	m.FinishSubExecution("t2", true, "Error: quota exceeded")
	m.AppendRoot("Let me look at the repository.")
	m.AddLog(state.LogTool, "ls completed")
	return m
}

func TestRenderBody_Sections(t *testing.T) {
	out := renderBody(sampleModel().Snapshot(), 100, time.Now())

	for _, want := range []string{
		"Tasks", "plan the work", "index docs",
		"Sub-executions", "researcher", "index the docs folder", "reading README.md", "→ read_file",
		"writer", "quota exceeded",
		"Message", "Let me look at the repository.",
		"Log (1/50)", "ls completed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderBody_Diagnostic(t *testing.T) {
	m := state.NewModel(10)
	m.Start()
	m.Fail("engine crashed (exit code 2)")

	out := renderBody(m.Snapshot(), 80, time.Now())
	if !strings.Contains(out, "Engine failure") || !strings.Contains(out, "exit code 2") {
		t.Errorf("expected diagnostic in output:\n%s", out)
	}
}

func TestRenderBody_TruncatesLongLines(t *testing.T) {
	m := state.NewModel(10)
	m.AddLog(state.LogInfo, strings.Repeat("x", 500))

	out := renderBody(m.Snapshot(), 60, time.Now())
	for _, line := range strings.Split(out, "\n") {
		if len([]rune(line)) > 80 {
			t.Errorf("line not truncated (%d runes): %q", len([]rune(line)), line)
		}
	}
}

func TestRenderHeader(t *testing.T) {
	snap := sampleModel().Snapshot()
	out := renderHeader(snap, "", time.Now())
	if !strings.Contains(out, "running") || !strings.Contains(out, "1 active · 1 done") {
		t.Errorf("unexpected header %q", out)
	}
}

func TestNotifierCoalesces(t *testing.T) {
	m := state.NewModel(10)
	ch := make(chan struct{}, 1)
	unsub := m.Subscribe(notifier(ch))
	defer unsub()

	for i := 0; i < 100; i++ {
		m.AddLog(state.LogInfo, "burst")
	}
	if len(ch) != 1 {
		t.Errorf("expected one pending signal, got %d", len(ch))
	}
}

func TestPrinter_WritesNewEntries(t *testing.T) {
	m := state.NewModel(10)
	var buf bytes.Buffer
	p := Plain(&buf, m)

	m.AddLog(state.LogTool, "ls completed")
	m.AddLog(state.LogError, "grep failed:\nboom")
	p.Close()

	out := buf.String()
	if !strings.Contains(out, "tool     ls completed") {
		t.Errorf("missing tool line:\n%s", out)
	}
	if !strings.Contains(out, "grep failed: | boom") {
		t.Errorf("multi-line text should be joined:\n%s", out)
	}
	if strings.Count(out, "ls completed") != 1 {
		t.Errorf("entries must be written once:\n%s", out)
	}

	m.AddLog(state.LogInfo, "after close")
	p.Close()
	if strings.Contains(buf.String(), "after close") {
		t.Error("closed printer should not write")
	}
}

func TestPrinter_ReportsDroppedEntries(t *testing.T) {
	m := state.NewModel(3)
	var buf bytes.Buffer
	p := &Printer{w: &buf, model: m}

	for i := 0; i < 5; i++ {
		m.AddLog(state.LogInfo, "entry")
	}
	p.Flush()

	out := buf.String()
	if !strings.Contains(out, "2 log entries dropped") {
		t.Errorf("expected gap report:\n%s", out)
	}
	if strings.Count(out, "entry") != 3 {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestViewModel_RefreshAndDone(t *testing.T) {
	m := state.NewModel(10)
	m.Start()
	refresh := make(chan struct{}, 1)
	done := make(chan monitor.Summary, 1)
	vm := newViewModel(m, refresh, done, time.Millisecond)

	vm.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	m.AddLog(state.LogInfo, "hello")
	vm.Update(refreshMsg{})
	if !strings.Contains(vm.View(), "hello") {
		t.Errorf("refresh should pull a new snapshot:\n%s", vm.View())
	}

	m.Complete()
	_, cmd := vm.Update(doneMsg{summary: monitor.Summary{Status: state.StatusCompleted, Artifacts: 2}})
	if cmd == nil {
		t.Fatal("done should quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected a quit message")
	}
	if !strings.Contains(vm.View(), "completed: 2 artifacts") {
		t.Errorf("final view should show the summary:\n%s", vm.View())
	}
	if vm.quit {
		t.Error("normal completion is not a user quit")
	}
}

func TestViewModel_UserQuit(t *testing.T) {
	m := state.NewModel(10)
	vm := newViewModel(m, make(chan struct{}), make(chan monitor.Summary), time.Millisecond)

	_, cmd := vm.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil || !vm.quit {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected a quit message")
	}
}
