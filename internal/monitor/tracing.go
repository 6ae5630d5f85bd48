// Tracing instrumentation for the monitor.
package monitor

import (
	"context"
	"sort"

	"github.com/vinayprograms/agentkit/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vinayprograms/execmon/internal/classify"
	"github.com/vinayprograms/execmon/internal/state"
)

// startRunSpan starts the span covering the whole run.
func (m *Monitor) startRunSpan(ctx context.Context) (context.Context, trace.Span) {
	tracer := telemetry.GetTracer()
	ctx, span := tracer.StartSpan(ctx, "monitor.run")
	span.SetAttributes(
		attribute.String("monitor.session", m.sessionID),
	)
	return ctx, span
}

// endRunSpan ends the run span with the summary.
func (m *Monitor) endRunSpan(span trace.Span, s Summary, err error) {
	span.SetAttributes(
		attribute.String("monitor.status", string(s.Status)),
		attribute.Int("monitor.artifacts", s.Artifacts),
		attribute.Int("monitor.subexecutions", s.SubExecutions),
		attribute.Int("monitor.invocations", s.Invocations),
	)
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// startSubSpan starts a child span for a sub-execution.
func (m *Monitor) startSubSpan(c classify.SpawnSubExecution) trace.Span {
	ctx := m.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	tracer := telemetry.GetTracer()
	_, span := tracer.StartSpan(ctx, "subexecution."+c.Name)
	span.SetAttributes(
		attribute.String("subexecution.id", c.ID),
		attribute.String("subexecution.name", c.Name),
		attribute.String("subexecution.via", c.Via),
	)
	return span
}

// endSubSpan ends a sub-execution span with its outcome.
func (m *Monitor) endSubSpan(span trace.Span, sub state.SubExecution) {
	tracer := telemetry.GetTracer()
	span.SetAttributes(
		attribute.String("subexecution.status", string(sub.Status)),
		attribute.Int("subexecution.tool_calls", sub.ToolCalls),
	)
	if tracer.Debug() && sub.Result != "" {
		span.SetAttributes(attribute.String("subexecution.result", sub.Result))
	}
	span.End()
}

// endOpenSubSpans closes spans of sub-executions that never reached a
// terminal state before the run ended.
func (m *Monitor) endOpenSubSpans() {
	ids := make([]string, 0, len(m.subSpans))
	for id := range m.subSpans {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		span := m.subSpans[id]
		span.SetAttributes(attribute.Bool("subexecution.unfinished", true))
		span.End()
		delete(m.subSpans, id)
	}
}
