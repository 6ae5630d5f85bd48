package classify

import "github.com/vinayprograms/execmon/internal/state"

// Command is one state mutation produced by classification. Implementations
// are the types in this file; appliers switch over them exhaustively.
type Command interface {
	isCommand()
}

// Spawn origins.
const (
	ViaContent  = "content"
	ViaDispatch = "dispatch"
)

// SpawnSubExecution creates or acknowledges a sub-execution.
type SpawnSubExecution struct {
	ID          string
	Name        string
	Description string
	Status      state.SubStatus
	Via         string
}

// UpdatePreview routes a text fragment to a sub-execution's rolling preview.
type UpdatePreview struct {
	ID   string
	Text string
}

// NoteSubActivity records an action requested inside a sub-execution.
type NoteSubActivity struct {
	ID     string
	Action string
}

// AppendRoot appends a text fragment to the root message buffer.
type AppendRoot struct {
	Text string
}

// ClearRoot empties the root message buffer at the end of a model turn.
type ClearRoot struct{}

// StartInvocation records a root-level action request.
type StartInvocation struct {
	ID     string
	Action string
	Args   string
}

// FinishSubExecution moves a sub-execution to a terminal state. Heuristic is
// set when the completion was matched by the fallback rule.
type FinishSubExecution struct {
	ID        string
	Failed    bool
	Result    string
	Heuristic bool
}

// FinishInvocation moves an invocation to a terminal state.
type FinishInvocation struct {
	ID     string
	Action string
	Failed bool
	Result string
}

// ReplaceTasks replaces the task list wholesale.
type ReplaceTasks struct {
	Items []state.TaskItem
}

// RecordArtifact counts one artifact written by the artifact writer.
type RecordArtifact struct {
	Path string
}

// AppendLog appends a user-visible log entry.
type AppendLog struct {
	Category state.LogCategory
	Text     string
}

func (SpawnSubExecution) isCommand()  {}
func (UpdatePreview) isCommand()      {}
func (NoteSubActivity) isCommand()    {}
func (AppendRoot) isCommand()         {}
func (ClearRoot) isCommand()          {}
func (StartInvocation) isCommand()    {}
func (FinishSubExecution) isCommand() {}
func (FinishInvocation) isCommand()   {}
func (ReplaceTasks) isCommand()       {}
func (RecordArtifact) isCommand()     {}
func (AppendLog) isCommand()          {}
