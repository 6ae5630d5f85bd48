package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/vinayprograms/execmon/internal/state"
)

// Printer writes new log entries as plain lines, for output that is not a
// terminal. Notifications are coalesced: the subscriber only signals and a
// single goroutine does the writing.
type Printer struct {
	w      io.Writer
	model  *state.Model
	signal chan struct{}
	done   chan struct{}
	unsub  func()
	once   sync.Once

	mu     sync.Mutex
	lastID uint64
}

// Plain starts a Printer for model. Call Close to flush and stop it.
func Plain(w io.Writer, model *state.Model) *Printer {
	p := &Printer{
		w:      w,
		model:  model,
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	p.unsub = model.Subscribe(notifier(p.signal))
	go p.loop()
	return p
}

func (p *Printer) loop() {
	for {
		select {
		case <-p.signal:
			p.Flush()
		case <-p.done:
			return
		}
	}
}

// Flush writes every entry logged since the previous flush. Entries evicted
// from the ring before they could be written are reported as a gap.
func (p *Printer) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.model.LogsSince(p.lastID)
	if len(entries) == 0 {
		return
	}
	if skipped := entries[0].ID - p.lastID - 1; skipped > 0 {
		fmt.Fprintf(p.w, "... %d log entries dropped\n", skipped)
	}
	for _, e := range entries {
		fmt.Fprintf(p.w, "%s %-8s %s\n", e.Time.Format("15:04:05"), e.Category, strings.ReplaceAll(e.Text, "\n", " | "))
	}
	p.lastID = entries[len(entries)-1].ID
}

// Close unsubscribes, stops the writer goroutine and flushes what is left.
func (p *Printer) Close() {
	p.once.Do(func() {
		p.unsub()
		close(p.done)
		p.Flush()
	})
}

// notifier returns a subscriber callback that performs a non-blocking send
// into a one-slot channel, so bursts of mutations collapse into one wakeup.
func notifier(ch chan<- struct{}) func() {
	return func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
