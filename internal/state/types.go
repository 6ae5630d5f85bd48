// Package state holds the execution state model that the consumption loop
// mutates and renderers read.
package state

import (
	"time"

	"github.com/vinayprograms/execmon/internal/stream"
)

// Status is the overall monitor status.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusError        Status = "error"
)

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// SubStatus is the lifecycle state of a sub-execution.
//
// State machine: spawning → running → completed | error
type SubStatus string

const (
	SubSpawning  SubStatus = "spawning"
	SubRunning   SubStatus = "running"
	SubCompleted SubStatus = "completed"
	SubError     SubStatus = "error"
)

// IsTerminal reports whether the sub-execution has finished.
func (s SubStatus) IsTerminal() bool {
	return s == SubCompleted || s == SubError
}

// InvocationStatus is the lifecycle state of an invocation.
type InvocationStatus string

const (
	InvocationRunning   InvocationStatus = "running"
	InvocationCompleted InvocationStatus = "completed"
	InvocationError     InvocationStatus = "error"
)

// IsTerminal reports whether the invocation has finished.
func (s InvocationStatus) IsTerminal() bool {
	return s == InvocationCompleted || s == InvocationError
}

// LogCategory classifies a log entry for display.
type LogCategory string

const (
	LogInfo     LogCategory = "info"
	LogTool     LogCategory = "tool"
	LogSubagent LogCategory = "subagent"
	LogMessage  LogCategory = "message"
	LogError    LogCategory = "error"
)

// SubExecution is one dynamically spawned child unit of work.
type SubExecution struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Status      SubStatus  `yaml:"status"`
	Preview     string     `yaml:"preview,omitempty"`
	Result      string     `yaml:"result,omitempty"`
	Activity    string     `yaml:"activity,omitempty"` // Last action the sub-execution requested
	ToolCalls   int        `yaml:"tool_calls"`
	Started     time.Time  `yaml:"started"`
	Ended       *time.Time `yaml:"ended,omitempty"`
}

// Duration returns how long the sub-execution ran, up to now if unfinished.
func (s SubExecution) Duration(now time.Time) time.Duration {
	if s.Ended != nil {
		return s.Ended.Sub(s.Started)
	}
	return now.Sub(s.Started)
}

// Invocation is one discrete action request issued by the root execution.
type Invocation struct {
	ID      string           `yaml:"id"`
	Action  string           `yaml:"action"`
	Status  InvocationStatus `yaml:"status"`
	Args    string           `yaml:"args,omitempty"`
	Result  string           `yaml:"result,omitempty"`
	Started time.Time        `yaml:"started"`
	Ended   *time.Time       `yaml:"ended,omitempty"`
}

// TaskItem is one user-visible planning entry. ID is its position.
type TaskItem struct {
	ID      int               `yaml:"id"`
	Content string            `yaml:"content"`
	Status  stream.TaskStatus `yaml:"status"`
}

// LogEntry is an immutable diagnostic record.
type LogEntry struct {
	ID       uint64      `yaml:"id"`
	Category LogCategory `yaml:"category"`
	Text     string      `yaml:"text"`
	Time     time.Time   `yaml:"time"`
}
