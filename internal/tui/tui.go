package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/vinayprograms/execmon/internal/monitor"
	"github.com/vinayprograms/execmon/internal/state"
)

// ErrQuit is returned by Run when the user leaves before the run ends.
var ErrQuit = errors.New("tui: quit before run completed")

// refreshMsg asks the view to re-read the model.
type refreshMsg struct{}

// doneMsg carries the final summary once the monitor stops.
type doneMsg struct {
	summary monitor.Summary
}

// viewModel is the Bubble Tea model for the live view.
type viewModel struct {
	state    *state.Model
	snap     state.Snapshot
	viewport viewport.Model
	spinner  spinner.Model
	ready    bool
	follow   bool
	width    int

	refresh  <-chan struct{}
	done     <-chan monitor.Summary
	interval time.Duration

	summary *monitor.Summary
	quit    bool
	now     func() time.Time
}

func newViewModel(model *state.Model, refresh <-chan struct{}, done <-chan monitor.Summary, interval time.Duration) *viewModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = subagentStyle
	return &viewModel{
		state:    model,
		snap:     model.Snapshot(),
		spinner:  sp,
		follow:   true,
		refresh:  refresh,
		done:     done,
		interval: interval,
		now:      time.Now,
	}
}

// Run shows the live view until the monitor reports on done, the user quits,
// or ctx is cancelled. Repaints happen at most once per refresh interval.
// Keys are read from the controlling terminal so stdin stays free for the
// event stream.
func Run(ctx context.Context, model *state.Model, done <-chan monitor.Summary, refresh time.Duration) error {
	if refresh <= 0 {
		refresh = 50 * time.Millisecond
	}
	signal := make(chan struct{}, 1)
	unsub := model.Subscribe(notifier(signal))
	defer unsub()

	vm := newViewModel(model, signal, done, refresh)
	prog := tea.NewProgram(vm, tea.WithContext(ctx), tea.WithInputTTY(), tea.WithMouseCellMotion())
	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if m, ok := final.(*viewModel); ok && m.quit && m.summary == nil {
		return ErrQuit
	}
	return nil
}

func (m *viewModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForRefresh(), m.waitForDone())
}

// waitForRefresh blocks until the model changes, then holds the repaint for
// one interval so further changes coalesce into it.
func (m *viewModel) waitForRefresh() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-m.refresh; !ok {
			return nil
		}
		time.Sleep(m.interval)
		return refreshMsg{}
	}
}

func (m *viewModel) waitForDone() tea.Cmd {
	return func() tea.Msg {
		s, ok := <-m.done
		if !ok {
			return doneMsg{summary: monitor.Summary{Status: m.state.Status()}}
		}
		return doneMsg{summary: s}
	}
}

func (m *viewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case refreshMsg:
		m.repaint()
		cmds = append(cmds, m.waitForRefresh())

	case doneMsg:
		m.summary = &msg.summary
		m.repaint()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quit = true
			return m, tea.Quit
		case "g":
			m.follow = false
			m.viewport.GotoTop()
		case "G", "f":
			m.follow = true
			m.viewport.GotoBottom()
		case "up", "k", "pgup":
			m.follow = false
		}

	case tea.WindowSizeMsg:
		headerHeight, footerHeight := 1, 1
		height := msg.Height - headerHeight - footerHeight
		if height < 1 {
			height = 1
		}
		m.width = msg.Width
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.viewport.YPosition = headerHeight
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.setContent()
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// repaint pulls a fresh snapshot from the model.
func (m *viewModel) repaint() {
	m.snap = m.state.Snapshot()
	m.setContent()
}

func (m *viewModel) setContent() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderBody(m.snap, m.width, m.now()))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *viewModel) View() string {
	header := renderHeader(m.snap, m.spinner.View(), m.now())
	if !m.ready {
		return header + "\n" + renderBody(m.snap, minWidth, m.now())
	}
	footer := helpStyle.Render("q quit · ↑/↓ scroll · g top · f follow")
	if m.summary != nil {
		footer = statusStyle(m.summary.Status).Render(m.summary.String())
	}
	return header + "\n" + m.viewport.View() + "\n" + footer
}
