// Package stream models the engine's dual-channel event stream and the
// sources it can be read from.
//
// The engine emits two logical channels: "messages" carries incremental
// content and action requests, "updates" carries one structured payload per
// execution step. Both are decoded into closed sum types here so the rest of
// the monitor never inspects raw payload shapes.
package stream

import (
	"fmt"
	"strings"
)

// Wire channel names.
const (
	ChannelMessages = "messages"
	ChannelUpdates  = "updates"
	ChannelArtifact = "artifact"
	ChannelError    = "error"
	ChannelEnd      = "end"
)

// InterruptNode is the node name the engine uses for suspension updates.
const InterruptNode = "__interrupt__"

// Event is one decoded stream event. Implementations: Content, Update,
// Artifact, Unknown, Malformed.
type Event interface {
	isEvent()
}

// ActionRequest is a structured request for a tool call or a sub-execution
// dispatch. Token is reused verbatim by the matching completion record.
type ActionRequest struct {
	Token string
	Name  string
	Args  map[string]interface{}
}

// Content is one fragment from the messages channel.
type Content struct {
	Namespace []string
	Text      string
	Requests  []ActionRequest
}

// Update is one step update from the updates channel. Payloads is ordered:
// task list, completions, turn complete, interrupt.
type Update struct {
	Namespace []string
	Node      string
	Payloads  []Payload
}

// Artifact reports that the artifact writer persisted a file.
type Artifact struct {
	Path string
}

// Unknown is an event on a channel the monitor does not understand.
type Unknown struct {
	Channel string
}

// Malformed is a line that could not be parsed as an event at all. Sources
// deliver it instead of dropping the line.
type Malformed struct {
	Line int
	Raw  string
	Err  string
}

func (Content) isEvent()   {}
func (Update) isEvent()    {}
func (Artifact) isEvent()  {}
func (Unknown) isEvent()   {}
func (Malformed) isEvent() {}

// Payload is one recognized shape inside an update. Implementations:
// TaskList, Completions, TurnComplete, Interrupt, Unrecognized.
type Payload interface {
	isPayload()
}

// TaskStatus is the status of a task-list item.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
)

// ParseTaskStatus normalizes a wire status. Unknown values are pending.
func ParseTaskStatus(s string) TaskStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "in_progress", "in-progress", "active":
		return TaskInProgress
	case "completed", "done":
		return TaskCompleted
	case "cancelled", "canceled":
		return TaskCancelled
	default:
		return TaskPending
	}
}

// TaskItem is one entry of a task-list replacement.
type TaskItem struct {
	Content string
	Status  TaskStatus
}

// TaskList replaces the whole task list.
type TaskList struct {
	Items []TaskItem
}

// CompletionRecord is the result of one action request.
type CompletionRecord struct {
	Token  string
	Name   string
	Result string
	Failed bool
}

// Completions carries the completion records of one step.
type Completions struct {
	Records []CompletionRecord
}

// TurnComplete marks the end of a model turn; Text is the final message.
type TurnComplete struct {
	Text string
}

// Interrupt is an explicit suspension signal from the engine.
type Interrupt struct {
	Value string
}

// Unrecognized is an update whose payload has no shape the monitor uses.
type Unrecognized struct {
	Keys []string
}

func (TaskList) isPayload()     {}
func (Completions) isPayload()  {}
func (TurnComplete) isPayload() {}
func (Interrupt) isPayload()    {}
func (Unrecognized) isPayload() {}

// EngineError is a failure raised by the execution engine itself rather than
// reported through a completion record. It terminates the stream.
type EngineError struct {
	Message  string
	ExitCode *int
	Stdout   string
	Stderr   string
	Cause    error
}

func (e *EngineError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "engine failure"
	}
	if e.ExitCode != nil {
		msg = fmt.Sprintf("%s (exit code %d)", msg, *e.ExitCode)
	}
	return msg
}

func (e *EngineError) Unwrap() error {
	return e.Cause
}
