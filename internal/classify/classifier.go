// Package classify turns raw stream events into state mutation commands,
// consulting and updating the correlation registry along the way.
package classify

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vinayprograms/agentkit/logging"

	"github.com/vinayprograms/execmon/internal/config"
	"github.com/vinayprograms/execmon/internal/correlation"
	"github.com/vinayprograms/execmon/internal/failure"
	"github.com/vinayprograms/execmon/internal/state"
	"github.com/vinayprograms/execmon/internal/stream"
)

// Classifier maps events to commands. It is owned by the consumption loop.
type Classifier struct {
	cfg      *config.Config
	registry *correlation.Registry
	logger   *logging.Logger
}

// New creates a classifier over registry.
func New(cfg *config.Config, registry *correlation.Registry) *Classifier {
	return &Classifier{
		cfg:      cfg,
		registry: registry,
		logger:   logging.New().WithComponent("classify"),
	}
}

// SetLogger derives the classifier's logger from l.
func (c *Classifier) SetLogger(l *logging.Logger) {
	c.logger = l.WithComponent("classify")
}

// Registry returns the correlation registry the classifier updates.
func (c *Classifier) Registry() *correlation.Registry {
	return c.registry
}

// Classify returns the mutations implied by ev. It never fails: missing
// fields are treated as absent and uncorrelatable events degrade to
// unattributed log entries.
func (c *Classifier) Classify(ev stream.Event) []Command {
	switch e := ev.(type) {
	case stream.Content:
		return c.classifyContent(e)
	case stream.Update:
		return c.classifyUpdate(e)
	case stream.Artifact:
		text := "Artifact written"
		if e.Path != "" {
			text = "Artifact written: " + e.Path
		}
		return []Command{
			RecordArtifact{Path: e.Path},
			AppendLog{Category: state.LogInfo, Text: text},
		}
	case stream.Unknown:
		return []Command{AppendLog{
			Category: state.LogInfo,
			Text:     fmt.Sprintf("Unattributed event on channel %q", e.Channel),
		}}
	case stream.Malformed:
		return []Command{AppendLog{
			Category: state.LogInfo,
			Text:     fmt.Sprintf("Unattributed event on line %d could not be parsed: %s", e.Line, c.excerpt(e.Raw)),
		}}
	default:
		return []Command{AppendLog{
			Category: state.LogInfo,
			Text:     fmt.Sprintf("Unattributed event %T", ev),
		}}
	}
}

func (c *Classifier) classifyContent(e stream.Content) []Command {
	var cmds []Command

	if nsID, ok := c.registry.ResolveNamespace(e.Namespace); ok {
		id, created, bound := c.registry.SubExecutionFor(nsID)
		if created {
			cmds = append(cmds,
				SpawnSubExecution{
					ID:          id,
					Name:        c.cfg.Protocol.DispatchAction,
					Description: c.cfg.Protocol.PlaceholderDescription,
					Status:      state.SubSpawning,
					Via:         ViaContent,
				},
				AppendLog{Category: state.LogSubagent, Text: fmt.Sprintf("Sub-execution %s observed before its dispatch", id)},
			)
		} else if bound {
			c.logger.Debug("namespace bound to dispatched sub-execution", map[string]interface{}{
				"namespace": nsID,
				"id":        id,
			})
		}
		if e.Text != "" {
			cmds = append(cmds, UpdatePreview{ID: id, Text: e.Text})
		}
		for _, req := range e.Requests {
			if req.Name == "" {
				continue
			}
			cmds = append(cmds, NoteSubActivity{ID: id, Action: req.Name})
			if req.Name == c.cfg.Protocol.DispatchAction && req.Token != "" {
				cmds = append(cmds, c.dispatch(req, id)...)
			}
		}
		return cmds
	}

	for _, req := range e.Requests {
		if req.Token == "" || req.Name == "" {
			c.logger.Debug("ignoring incomplete action request", map[string]interface{}{
				"token":  req.Token,
				"action": req.Name,
			})
			continue
		}
		if req.Name == c.cfg.Protocol.DispatchAction {
			cmds = append(cmds, c.dispatch(req, "")...)
			continue
		}
		if _, replaced := c.registry.RegisterDispatch(req.Token, req.Name, ""); replaced {
			cmds = append(cmds, c.duplicateToken(req))
		}
		cmds = append(cmds, StartInvocation{
			ID:     req.Token,
			Action: req.Name,
			Args:   c.serializeArgs(req.Args),
		})
	}

	if e.Text != "" && len(e.Requests) == 0 {
		cmds = append(cmds, AppendRoot{Text: e.Text})
	}
	return cmds
}

// dispatch registers a dispatch request and spawns its sub-execution. parent
// is the sub-execution the request was made from, empty at root.
func (c *Classifier) dispatch(req stream.ActionRequest, parent string) []Command {
	var cmds []Command
	name := c.pickArg(req.Args, c.cfg.Protocol.NameKeys, req.Name)
	desc := c.pickArg(req.Args, c.cfg.Protocol.DescriptionKeys, c.cfg.Protocol.PlaceholderDescription)
	desc = state.Truncate(desc, c.cfg.Monitor.PreviewChars)

	if _, replaced := c.registry.RegisterDispatch(req.Token, name, desc); replaced {
		cmds = append(cmds, c.duplicateToken(req))
	}
	id, adopted := c.registry.AdoptForDispatch(req.Token, parent)
	if adopted {
		c.logger.Debug("dispatch adopted content-spawned sub-execution", map[string]interface{}{
			"token": req.Token,
			"id":    id,
		})
	}
	text := fmt.Sprintf("Spawned %s: %s", name, desc)
	if parent != "" {
		text = fmt.Sprintf("Spawned %s from %s: %s", name, parent, desc)
	}
	return append(cmds,
		SpawnSubExecution{
			ID:          id,
			Name:        name,
			Description: desc,
			Status:      state.SubRunning,
			Via:         ViaDispatch,
		},
		AppendLog{Category: state.LogSubagent, Text: text},
	)
}

func (c *Classifier) duplicateToken(req stream.ActionRequest) Command {
	c.logger.Warn("correlation token registered twice", map[string]interface{}{
		"token":  req.Token,
		"action": req.Name,
	})
	return AppendLog{
		Category: state.LogInfo,
		Text:     fmt.Sprintf("Token %s reused by %s; previous request replaced", req.Token, req.Name),
	}
}

func (c *Classifier) classifyUpdate(e stream.Update) []Command {
	if nsID, ok := c.registry.ResolveNamespace(e.Namespace); ok {
		return c.classifySubUpdate(nsID, e)
	}

	var cmds []Command
	for _, p := range e.Payloads {
		switch pl := p.(type) {
		case stream.TaskList:
			cmds = append(cmds, c.taskList(pl)...)
		case stream.Completions:
			for _, rec := range pl.Records {
				cmds = append(cmds, c.completion(rec)...)
			}
		case stream.TurnComplete:
			text := strings.TrimSpace(pl.Text)
			if text == "" {
				text = "Model turn complete"
			}
			cmds = append(cmds,
				ClearRoot{},
				AppendLog{Category: state.LogMessage, Text: state.Truncate(text, c.cfg.Monitor.ResultChars)},
			)
		case stream.Interrupt:
			cmds = append(cmds, c.interrupt(pl))
		case stream.Unrecognized:
			c.logger.Debug("update without recognized payload", map[string]interface{}{
				"node": e.Node,
				"keys": strings.Join(pl.Keys, ","),
			})
		}
	}
	return cmds
}

// classifySubUpdate handles updates emitted inside a sub-execution. Its
// task lists, tool completions and turn markers are internal to it and never
// touch root-level state, except completions of sub-executions it dispatched.
func (c *Classifier) classifySubUpdate(nsID string, e stream.Update) []Command {
	var cmds []Command
	for _, p := range e.Payloads {
		switch pl := p.(type) {
		case stream.Interrupt:
			cmds = append(cmds, c.interrupt(pl))
		case stream.Completions:
			for _, rec := range pl.Records {
				cmds = append(cmds, c.nestedCompletion(nsID, rec)...)
			}
		case stream.TaskList, stream.TurnComplete, stream.Unrecognized:
			c.logger.Debug("sub-execution internal update", map[string]interface{}{
				"namespace": nsID,
				"node":      e.Node,
				"payload":   fmt.Sprintf("%T", pl),
			})
		}
	}
	return cmds
}

func (c *Classifier) taskList(pl stream.TaskList) []Command {
	items := make([]state.TaskItem, len(pl.Items))
	completed := 0
	for i, it := range pl.Items {
		items[i] = state.TaskItem{ID: i, Content: it.Content, Status: it.Status}
		if it.Status == stream.TaskCompleted {
			completed++
		}
	}
	return []Command{
		ReplaceTasks{Items: items},
		AppendLog{Category: state.LogInfo, Text: fmt.Sprintf("Task list updated: %d items, %d completed", len(items), completed)},
	}
}

func (c *Classifier) completion(rec stream.CompletionRecord) []Command {
	if c.registry.WasResolved(rec.Token) {
		c.logger.Debug("duplicate completion ignored", map[string]interface{}{
			"token":  rec.Token,
			"action": rec.Name,
		})
		return nil
	}
	failed := failure.LooksFailed(rec.Failed, rec.Result, c.cfg.Protocol.FailurePatterns)
	if rec.Name == c.cfg.Protocol.DispatchAction {
		return c.dispatchCompletion(rec, failed)
	}

	pending, ok := c.registry.ResolveCompletion(rec.Token)
	c.registry.MarkResolved(rec.Token)
	if !ok {
		c.logger.Info("orphaned completion", map[string]interface{}{
			"token":  rec.Token,
			"action": rec.Name,
		})
		return []Command{AppendLog{
			Category: state.LogInfo,
			Text:     fmt.Sprintf("Completion for unknown invocation %s (%s)", rec.Token, rec.Name),
		}}
	}

	action := rec.Name
	if action == "" {
		action = pending.Action
	}
	cmds := []Command{FinishInvocation{
		ID:     rec.Token,
		Action: action,
		Failed: failed,
		Result: state.Truncate(rec.Result, c.cfg.Monitor.ResultChars),
	}}
	if action != c.cfg.Protocol.TaskListAction {
		if failed {
			cmds = append(cmds, AppendLog{
				Category: state.LogError,
				Text:     fmt.Sprintf("%s failed: %s", action, c.excerpt(rec.Result)),
			})
		} else {
			cmds = append(cmds, AppendLog{Category: state.LogTool, Text: action + " completed"})
		}
	}
	if !failed && c.cfg.IsArtifactAction(action) {
		cmds = append(cmds, RecordArtifact{})
	}
	return cmds
}

// nestedCompletion handles a completion record emitted inside a
// sub-execution. Only completions strictly matching a sub-execution it
// dispatched are surfaced; the rest belong to its own tools.
func (c *Classifier) nestedCompletion(nsID string, rec stream.CompletionRecord) []Command {
	id, ok := c.registry.DispatchedBy(rec.Token)
	if !ok || c.registry.WasResolved(rec.Token) {
		c.logger.Debug("sub-execution internal completion", map[string]interface{}{
			"namespace": nsID,
			"token":     rec.Token,
			"action":    rec.Name,
		})
		return nil
	}
	failed := failure.LooksFailed(rec.Failed, rec.Result, c.cfg.Protocol.FailurePatterns)
	pending, _ := c.registry.ResolveCompletion(rec.Token)
	c.registry.MarkResolved(rec.Token)
	return c.finishDispatch(id, pending, rec, failed, false)
}

func (c *Classifier) dispatchCompletion(rec stream.CompletionRecord, failed bool) []Command {
	pending, _ := c.registry.ResolveCompletion(rec.Token)
	c.registry.MarkResolved(rec.Token)

	id, heuristic, ok := c.registry.MatchDispatchCompletion(rec.Token)
	if !ok {
		c.logger.Info("orphaned dispatch completion", map[string]interface{}{
			"token": rec.Token,
		})
		return []Command{AppendLog{
			Category: state.LogInfo,
			Text:     fmt.Sprintf("Completion for unknown sub-execution %s", rec.Token),
		}}
	}
	return c.finishDispatch(id, pending, rec, failed, heuristic)
}

func (c *Classifier) finishDispatch(id string, pending correlation.Pending, rec stream.CompletionRecord, failed, heuristic bool) []Command {
	c.registry.Finish(id)

	var cmds []Command
	if heuristic {
		c.logger.Warn("dispatch completion matched by fallback", map[string]interface{}{
			"token": rec.Token,
			"id":    id,
		})
		cmds = append(cmds, AppendLog{
			Category: state.LogInfo,
			Text:     fmt.Sprintf("Completion %s matched to oldest unmatched sub-execution %s", rec.Token, id),
		})
	}

	label := pending.Action
	if label == "" {
		label = id
	}
	cmds = append(cmds, FinishSubExecution{
		ID:        id,
		Failed:    failed,
		Result:    state.Truncate(rec.Result, c.cfg.Monitor.ResultChars),
		Heuristic: heuristic,
	})
	if failed {
		cmds = append(cmds, AppendLog{
			Category: state.LogError,
			Text:     fmt.Sprintf("Sub-execution %s failed: %s", label, c.excerpt(rec.Result)),
		})
	} else {
		cmds = append(cmds, AppendLog{
			Category: state.LogSubagent,
			Text:     fmt.Sprintf("Sub-execution %s completed", label),
		})
	}
	return cmds
}

func (c *Classifier) interrupt(pl stream.Interrupt) Command {
	text := "Execution suspended by engine"
	if pl.Value != "" {
		text += ": " + state.Truncate(pl.Value, c.cfg.Monitor.FailureExcerptChars)
	}
	return AppendLog{Category: state.LogInfo, Text: text}
}

// pickArg returns the first non-empty string argument among keys, or
// fallback.
func (c *Classifier) pickArg(args map[string]interface{}, keys []string, fallback string) string {
	for _, k := range keys {
		if s, ok := args[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return fallback
}

func (c *Classifier) serializeArgs(args map[string]interface{}) string {
	if len(args) == 0 {
		return ""
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprintf("%v", args)
	}
	return state.Truncate(string(b), c.cfg.Monitor.ArgsChars)
}

func (c *Classifier) excerpt(result string) string {
	result = strings.TrimSpace(result)
	if result == "" {
		return "(no output)"
	}
	return state.Truncate(result, c.cfg.Monitor.FailureExcerptChars)
}
