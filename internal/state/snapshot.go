package state

import (
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Snapshot is a deep copy of the model at one instant.
type Snapshot struct {
	Status        Status         `yaml:"status"`
	Diagnostic    string         `yaml:"diagnostic,omitempty"`
	RootMessage   string         `yaml:"root_message,omitempty"`
	SubExecutions []SubExecution `yaml:"sub_executions"`
	Invocations   []Invocation   `yaml:"invocations"`
	Tasks         []TaskItem     `yaml:"tasks"`
	Logs          []LogEntry     `yaml:"logs"`
	LogCapacity   int            `yaml:"log_capacity"`
	Artifacts     int            `yaml:"artifacts"`
	Started       time.Time      `yaml:"started"`
	Ended         time.Time      `yaml:"ended,omitempty"`
}

// Snapshot copies the current state. Sub-executions and invocations are
// ordered by start time, then id.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{
		Status:        m.status,
		Diagnostic:    m.diagnostic,
		RootMessage:   m.root.String(),
		SubExecutions: make([]SubExecution, 0, len(m.subs)),
		Invocations:   make([]Invocation, 0, len(m.invocations)),
		Tasks:         append([]TaskItem(nil), m.tasks...),
		Logs:          m.logs.Entries(),
		LogCapacity:   m.logs.Cap(),
		Artifacts:     m.artifacts,
		Started:       m.started,
		Ended:         m.ended,
	}
	for _, s := range m.subs {
		snap.SubExecutions = append(snap.SubExecutions, copySub(s))
	}
	for _, inv := range m.invocations {
		snap.Invocations = append(snap.Invocations, copyInvocation(inv))
	}
	sort.Slice(snap.SubExecutions, func(i, j int) bool {
		a, b := snap.SubExecutions[i], snap.SubExecutions[j]
		if !a.Started.Equal(b.Started) {
			return a.Started.Before(b.Started)
		}
		return a.ID < b.ID
	})
	sort.Slice(snap.Invocations, func(i, j int) bool {
		a, b := snap.Invocations[i], snap.Invocations[j]
		if !a.Started.Equal(b.Started) {
			return a.Started.Before(b.Started)
		}
		return a.ID < b.ID
	})
	return snap
}

// ActiveSubExecutions returns the sub-executions that have not finished.
func (s Snapshot) ActiveSubExecutions() []SubExecution {
	var out []SubExecution
	for _, sub := range s.SubExecutions {
		if !sub.Status.IsTerminal() {
			out = append(out, sub)
		}
	}
	return out
}

// CountSubExecutions returns how many sub-executions have the given status.
func (s Snapshot) CountSubExecutions(status SubStatus) int {
	n := 0
	for _, sub := range s.SubExecutions {
		if sub.Status == status {
			n++
		}
	}
	return n
}

// WriteYAML exports the snapshot as a YAML document.
func (s Snapshot) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return enc.Close()
}
