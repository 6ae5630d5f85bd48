package monitor

import (
	"time"

	"github.com/vinayprograms/agentkit/logging"
)

// logSubExecutionStart logs a newly observed sub-execution.
func logSubExecutionStart(l *logging.Logger, id, name, via string) {
	l.Info("subexecution_start", map[string]interface{}{
		"id":   id,
		"name": name,
		"via":  via,
	})
}

// logSubExecutionEnd logs the terminal transition of a sub-execution.
func logSubExecutionEnd(l *logging.Logger, id, status string, duration time.Duration) {
	l.Info("subexecution_end", map[string]interface{}{
		"id":       id,
		"status":   status,
		"duration": duration.String(),
	})
}

func logInvocationResult(l *logging.Logger, action string, duration time.Duration, failed bool) {
	fields := map[string]interface{}{
		"action":   action,
		"duration": duration.String(),
	}
	if failed {
		l.Warn("invocation_failed", fields)
		return
	}
	l.Debug("invocation_result", fields)
}

func logRunComplete(l *logging.Logger, status string, artifacts int, duration time.Duration) {
	l.Info("run_complete", map[string]interface{}{
		"status":    status,
		"artifacts": artifacts,
		"duration":  duration.String(),
	})
}
