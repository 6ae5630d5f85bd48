// Package monitor drives the consumption loop: it pulls events from a
// source, classifies them and applies the resulting commands to the
// execution state model.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/execmon/internal/classify"
	"github.com/vinayprograms/execmon/internal/config"
	"github.com/vinayprograms/execmon/internal/correlation"
	"github.com/vinayprograms/execmon/internal/failure"
	"github.com/vinayprograms/execmon/internal/state"
	"github.com/vinayprograms/execmon/internal/stream"
)

// Summary is the final report of a monitoring run.
type Summary struct {
	SessionID     string
	Status        state.Status
	Diagnostic    string
	Artifacts     int
	SubExecutions int
	Invocations   int
	Pending       int // action requests awaiting a completion record
	Unfinished    int // sub-executions that never reached a terminal state
	Duration      time.Duration
}

// String renders the one-line completion report.
func (s Summary) String() string {
	secs := fmt.Sprintf("%.1fs", s.Duration.Seconds())
	line := fmt.Sprintf("%s: %d artifacts, %d sub-executions, %d invocations",
		s.Status, s.Artifacts, s.SubExecutions, s.Invocations)
	if s.Pending > 0 {
		line += fmt.Sprintf(", %d pending", s.Pending)
	}
	if s.Unfinished > 0 {
		line += fmt.Sprintf(", %d unfinished", s.Unfinished)
	}
	line += " (" + secs + ")"
	if s.Diagnostic != "" {
		first, _, _ := strings.Cut(s.Diagnostic, "\n")
		line += ": " + first
	}
	return line
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithModel makes the monitor mutate model instead of creating its own.
func WithModel(model *state.Model) Option {
	return func(m *Monitor) { m.model = model }
}

// WithExporter sets the telemetry exporter that receives lifecycle events.
func WithExporter(telem telemetry.Exporter) Option {
	return func(m *Monitor) { m.telem = telem }
}

// WithLogger sets the root logger the monitor and its classifier derive
// their component loggers from.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithSessionID overrides the generated session id.
func WithSessionID(id string) Option {
	return func(m *Monitor) { m.sessionID = id }
}

// Monitor consumes one event stream into one state model. A Monitor is
// single-use: Run may be called once.
type Monitor struct {
	cfg        *config.Config
	model      *state.Model
	classifier *classify.Classifier
	telem      telemetry.Exporter
	logger     *logging.Logger
	sessionID  string

	runCtx   context.Context
	subSpans map[string]trace.Span
}

// New creates a monitor.
func New(cfg *config.Config, opts ...Option) *Monitor {
	if cfg == nil {
		cfg = config.Default()
	}
	m := &Monitor{
		cfg:       cfg,
		sessionID: uuid.New().String(),
		subSpans:  make(map[string]trace.Span),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.model == nil {
		m.model = state.NewModel(cfg.Monitor.LogCapacity)
	}
	if m.telem == nil {
		m.telem = telemetry.NewNoopExporter()
	}
	if m.logger == nil {
		m.logger = logging.New()
	}
	registry := correlation.New(cfg.Protocol.NamespacePrefix, cfg.Monitor.DedupCacheSize)
	m.classifier = classify.New(cfg, registry)
	m.classifier.SetLogger(m.logger.WithTraceID(m.sessionID))
	m.logger = m.logger.WithComponent("monitor").WithTraceID(m.sessionID)
	return m
}

// Model returns the state model the monitor writes to.
func (m *Monitor) Model() *state.Model {
	return m.model
}

// SessionID returns the id tagging this run's logs and spans.
func (m *Monitor) SessionID() string {
	return m.sessionID
}

// Summary reports the current state of the run.
func (m *Monitor) Summary() Summary {
	return m.summarize()
}

// Run consumes src until it is exhausted, fails, or ctx is cancelled. Each
// event is classified and fully applied before the next is requested.
// Exhaustion completes the model; any other termination fails it and the
// cause is returned alongside the summary.
func (m *Monitor) Run(ctx context.Context, src stream.Source) (Summary, error) {
	ctx, span := m.startRunSpan(ctx)
	m.runCtx = ctx

	m.model.Start()
	m.logger.Info("run_start", map[string]interface{}{
		"session": m.sessionID,
	})

	var runErr error
	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		ev, err := src.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			runErr = err
			break
		}
		m.Apply(m.classifier.Classify(ev))
	}

	if runErr != nil {
		diag := failure.Diagnose(runErr)
		m.model.Fail(diag.String())
		m.logger.Error("stream failed", map[string]interface{}{
			"error": diag.Message,
		})
	} else {
		m.model.Complete()
	}

	m.endOpenSubSpans()
	summary := m.summarize()
	m.endRunSpan(span, summary, runErr)
	logRunComplete(m.logger, string(summary.Status), summary.Artifacts, summary.Duration)
	return summary, runErr
}

// Apply applies classified commands to the model in order.
func (m *Monitor) Apply(cmds []classify.Command) {
	for _, cmd := range cmds {
		m.apply(cmd)
	}
}

func (m *Monitor) apply(cmd classify.Command) {
	limits := m.cfg.Monitor
	switch c := cmd.(type) {
	case classify.SpawnSubExecution:
		if m.model.SpawnSubExecution(c.ID, c.Name, c.Description, c.Status) {
			m.subExecutionStarted(c)
		} else if span, ok := m.subSpans[c.ID]; ok && c.Via == classify.ViaDispatch {
			span.SetName("subexecution." + c.Name)
		}
	case classify.UpdatePreview:
		m.model.AppendPreview(c.ID, c.Text, limits.PreviewChars)
	case classify.NoteSubActivity:
		m.model.NoteSubActivity(c.ID, c.Action)
	case classify.AppendRoot:
		m.model.AppendRoot(c.Text)
	case classify.ClearRoot:
		m.model.ClearRoot()
	case classify.StartInvocation:
		m.model.StartInvocation(c.ID, c.Action, c.Args)
	case classify.FinishSubExecution:
		if m.model.FinishSubExecution(c.ID, c.Failed, c.Result) {
			m.subExecutionEnded(c.ID)
		}
	case classify.FinishInvocation:
		if m.model.FinishInvocation(c.ID, c.Failed, c.Result) {
			m.invocationEnded(c.ID)
		}
	case classify.ReplaceTasks:
		m.model.ReplaceTasks(c.Items)
	case classify.RecordArtifact:
		m.model.RecordArtifact()
	case classify.AppendLog:
		m.model.AddLog(c.Category, c.Text)
	default:
		m.logger.Warn("unhandled command", map[string]interface{}{
			"type": fmt.Sprintf("%T", cmd),
		})
	}
}

func (m *Monitor) subExecutionStarted(c classify.SpawnSubExecution) {
	logSubExecutionStart(m.logger, c.ID, c.Name, c.Via)
	m.telem.LogEvent("subexecution_start", map[string]interface{}{
		"id":   c.ID,
		"name": c.Name,
		"via":  c.Via,
	})
	m.subSpans[c.ID] = m.startSubSpan(c)
}

func (m *Monitor) subExecutionEnded(id string) {
	sub, ok := m.model.SubExecution(id)
	if !ok {
		return
	}
	dur := sub.Duration(time.Now())
	logSubExecutionEnd(m.logger, id, string(sub.Status), dur)
	m.telem.LogEvent("subexecution_complete", map[string]interface{}{
		"id":       id,
		"name":     sub.Name,
		"status":   string(sub.Status),
		"duration": dur.String(),
	})
	if span, ok := m.subSpans[id]; ok {
		m.endSubSpan(span, sub)
		delete(m.subSpans, id)
	}
}

func (m *Monitor) invocationEnded(id string) {
	inv, ok := m.model.Invocation(id)
	if !ok {
		return
	}
	var dur time.Duration
	if inv.Ended != nil {
		dur = inv.Ended.Sub(inv.Started)
	}
	failed := inv.Status == state.InvocationError
	logInvocationResult(m.logger, inv.Action, dur, failed)
	if failed {
		m.telem.LogEvent("invocation_error", map[string]interface{}{
			"id":     id,
			"action": inv.Action,
		})
	}
}

func (m *Monitor) summarize() Summary {
	snap := m.model.Snapshot()
	end := snap.Ended
	if end.IsZero() {
		end = time.Now()
	}
	var dur time.Duration
	if !snap.Started.IsZero() {
		dur = end.Sub(snap.Started)
	}
	registry := m.classifier.Registry()
	return Summary{
		SessionID:     m.sessionID,
		Status:        snap.Status,
		Diagnostic:    snap.Diagnostic,
		Artifacts:     snap.Artifacts,
		SubExecutions: len(snap.SubExecutions),
		Invocations:   len(snap.Invocations),
		Pending:       registry.PendingCount(),
		Unfinished:    len(registry.Active()),
		Duration:      dur,
	}
}
