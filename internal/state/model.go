package state

import (
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Model is the mutable execution snapshot. The consumption loop is its only
// writer; renderers read it through Snapshot from their own goroutine. Every
// mutation synchronously notifies all subscribers after the change is
// applied. There is no batching: throttling belongs to subscribers.
//
// Once the overall status is terminal, mutations are ignored.
type Model struct {
	mu sync.RWMutex

	status     Status
	diagnostic string
	root       strings.Builder

	subs        map[string]*SubExecution
	invocations map[string]*Invocation
	tasks       []TaskItem
	logs        *LogBuffer
	artifacts   int

	started time.Time
	ended   time.Time

	subMu       sync.Mutex
	subscribers map[uint64]func()
	nextSubID   uint64

	now func() time.Time
}

// NewModel creates a model whose log keeps at most logCapacity entries.
func NewModel(logCapacity int) *Model {
	return &Model{
		status:      StatusInitializing,
		subs:        make(map[string]*SubExecution),
		invocations: make(map[string]*Invocation),
		logs:        NewLogBuffer(logCapacity),
		subscribers: make(map[uint64]func()),
		now:         time.Now,
	}
}

// Subscribe registers fn to be called after every mutation. Subscribers
// receive no payload; they re-read Snapshot. The returned function removes
// the subscription and is safe to call more than once.
func (m *Model) Subscribe(fn func()) (unsubscribe func()) {
	m.subMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subscribers, id)
		m.subMu.Unlock()
	}
}

func (m *Model) notify() {
	m.subMu.Lock()
	ids := make([]uint64, 0, len(m.subscribers))
	for id := range m.subscribers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, m.subscribers[id])
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// mutate runs fn under the write lock and notifies subscribers when fn
// reports a change.
func (m *Model) mutate(fn func() bool) bool {
	m.mu.Lock()
	if m.status.IsTerminal() {
		m.mu.Unlock()
		return false
	}
	changed := fn()
	m.mu.Unlock()

	if changed {
		m.notify()
	}
	return changed
}

// Start moves the model from initializing to running.
func (m *Model) Start() bool {
	return m.mutate(func() bool {
		if m.status != StatusInitializing {
			return false
		}
		m.status = StatusRunning
		m.started = m.now()
		return true
	})
}

// Complete marks normal stream exhaustion.
func (m *Model) Complete() bool {
	return m.mutate(func() bool {
		m.status = StatusCompleted
		m.ended = m.now()
		return true
	})
}

// Fail marks a fatal transport or engine failure and records the diagnostic
// as an error log entry.
func (m *Model) Fail(diagnostic string) bool {
	return m.mutate(func() bool {
		m.status = StatusError
		m.diagnostic = diagnostic
		m.ended = m.now()
		m.logs.Append(LogError, diagnostic, m.ended)
		return true
	})
}

// SpawnSubExecution creates a sub-execution or, when it already exists and
// is not terminal, fills in its name and description and advances it to
// status. It reports whether a new sub-execution was created.
func (m *Model) SpawnSubExecution(id, name, description string, status SubStatus) (created bool) {
	m.mutate(func() bool {
		if s, ok := m.subs[id]; ok {
			if s.Status.IsTerminal() {
				return false
			}
			changed := false
			if name != "" && s.Name != name {
				s.Name = name
				changed = true
			}
			if description != "" && s.Description != description {
				s.Description = description
				changed = true
			}
			if status == SubRunning && s.Status == SubSpawning {
				s.Status = SubRunning
				changed = true
			}
			return changed
		}
		m.subs[id] = &SubExecution{
			ID:          id,
			Name:        name,
			Description: description,
			Status:      status,
			Started:     m.now(),
		}
		created = true
		return true
	})
	return created
}

// AppendPreview appends text to a sub-execution's rolling preview, keeping
// only the last limit runes.
func (m *Model) AppendPreview(id, text string, limit int) bool {
	if text == "" {
		return false
	}
	return m.mutate(func() bool {
		s, ok := m.subs[id]
		if !ok || s.Status.IsTerminal() {
			return false
		}
		s.Preview = lastRunes(s.Preview+text, limit)
		return true
	})
}

// NoteSubActivity records an action requested inside a sub-execution.
func (m *Model) NoteSubActivity(id, action string) bool {
	return m.mutate(func() bool {
		s, ok := m.subs[id]
		if !ok || s.Status.IsTerminal() {
			return false
		}
		s.ToolCalls++
		s.Activity = action
		return true
	})
}

// FinishSubExecution moves a sub-execution to its terminal state. It is a
// no-op for unknown or already-terminal sub-executions.
func (m *Model) FinishSubExecution(id string, failed bool, result string) bool {
	return m.mutate(func() bool {
		s, ok := m.subs[id]
		if !ok || s.Status.IsTerminal() {
			return false
		}
		s.Status = SubCompleted
		if failed {
			s.Status = SubError
		}
		s.Result = result
		now := m.now()
		s.Ended = &now
		return true
	})
}

// AppendRoot appends text to the root message buffer.
func (m *Model) AppendRoot(text string) bool {
	if text == "" {
		return false
	}
	return m.mutate(func() bool {
		m.root.WriteString(text)
		return true
	})
}

// ClearRoot empties the root message buffer.
func (m *Model) ClearRoot() bool {
	return m.mutate(func() bool {
		if m.root.Len() == 0 {
			return false
		}
		m.root.Reset()
		return true
	})
}

// StartInvocation records a root-level action request. An id that is already
// known is left untouched.
func (m *Model) StartInvocation(id, action, args string) bool {
	return m.mutate(func() bool {
		if _, ok := m.invocations[id]; ok {
			return false
		}
		m.invocations[id] = &Invocation{
			ID:      id,
			Action:  action,
			Status:  InvocationRunning,
			Args:    args,
			Started: m.now(),
		}
		return true
	})
}

// FinishInvocation moves an invocation to its terminal state. It is a no-op
// for unknown or already-terminal invocations.
func (m *Model) FinishInvocation(id string, failed bool, result string) bool {
	return m.mutate(func() bool {
		inv, ok := m.invocations[id]
		if !ok || inv.Status.IsTerminal() {
			return false
		}
		inv.Status = InvocationCompleted
		if failed {
			inv.Status = InvocationError
		}
		inv.Result = result
		now := m.now()
		inv.Ended = &now
		return true
	})
}

// ReplaceTasks replaces the whole task list. Items are renumbered by
// position.
func (m *Model) ReplaceTasks(items []TaskItem) bool {
	return m.mutate(func() bool {
		tasks := make([]TaskItem, len(items))
		for i, it := range items {
			it.ID = i
			tasks[i] = it
		}
		m.tasks = tasks
		return true
	})
}

// AddLog appends a log entry.
func (m *Model) AddLog(category LogCategory, text string) bool {
	return m.mutate(func() bool {
		m.logs.Append(category, text, m.now())
		return true
	})
}

// RecordArtifact increments the count of artifacts produced.
func (m *Model) RecordArtifact() bool {
	return m.mutate(func() bool {
		m.artifacts++
		return true
	})
}

// Status returns the overall status.
func (m *Model) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// LogsSince returns the retained log entries whose id is greater than
// after, oldest first.
func (m *Model) LogsSince(after uint64) []LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []LogEntry
	for _, e := range m.logs.Entries() {
		if e.ID > after {
			out = append(out, e)
		}
	}
	return out
}

// Artifacts returns the number of artifacts produced.
func (m *Model) Artifacts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.artifacts
}

// SubExecution returns a copy of one sub-execution.
func (m *Model) SubExecution(id string) (SubExecution, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subs[id]
	if !ok {
		return SubExecution{}, false
	}
	return copySub(s), true
}

// Invocation returns a copy of one invocation.
func (m *Model) Invocation(id string) (Invocation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invocations[id]
	if !ok {
		return Invocation{}, false
	}
	return copyInvocation(inv), true
}

func copySub(s *SubExecution) SubExecution {
	c := *s
	if s.Ended != nil {
		t := *s.Ended
		c.Ended = &t
	}
	return c
}

func copyInvocation(inv *Invocation) Invocation {
	c := *inv
	if inv.Ended != nil {
		t := *inv.Ended
		c.Ended = &t
	}
	return c
}

// lastRunes keeps the last limit runes of s without any marker.
func lastRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-limit:])
}
