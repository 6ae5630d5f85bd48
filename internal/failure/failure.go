// Package failure classifies failures: fatal engine errors that end a
// monitoring run, and content-level failures reported in completion records.
package failure

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vinayprograms/execmon/internal/stream"
)

// Diagnostic is the human-readable breakdown of a fatal error.
type Diagnostic struct {
	Message  string
	ExitCode *int
	Stdout   string
	Stderr   string
	Cause    string
}

// exitCoder is satisfied by *exec.ExitError and by engine error types that
// carry a process exit code.
type exitCoder interface {
	ExitCode() int
}

// Diagnose extracts everything available from err. It never returns an
// empty diagnostic for a non-nil error.
func Diagnose(err error) Diagnostic {
	if err == nil {
		return Diagnostic{}
	}
	d := Diagnostic{Message: strings.TrimSpace(err.Error())}

	var ee *stream.EngineError
	var xe *exec.ExitError
	var ec exitCoder
	switch {
	case errors.As(err, &ee):
		d.Message = strings.TrimSpace(ee.Message)
		d.ExitCode = ee.ExitCode
		d.Stdout = strings.TrimSpace(ee.Stdout)
		d.Stderr = strings.TrimSpace(ee.Stderr)
	case errors.As(err, &xe):
		code := xe.ExitCode()
		d.ExitCode = &code
		d.Stderr = strings.TrimSpace(string(xe.Stderr))
	case errors.As(err, &ec):
		code := ec.ExitCode()
		d.ExitCode = &code
	}

	switch {
	case errors.Is(err, context.Canceled):
		d.Message = "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		d.Message = "deadline exceeded"
	}

	if ee != nil {
		if ee.Cause != nil {
			d.Cause = strings.TrimSpace(ee.Cause.Error())
		}
	} else if cause := errors.Unwrap(err); cause != nil {
		if msg := strings.TrimSpace(cause.Error()); msg != "" && !strings.Contains(d.Message, msg) {
			d.Cause = msg
		}
	}

	if d.Message == "" {
		d.Message = "engine failure"
	}
	return d
}

// String concatenates every available part into one diagnostic line group.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Message)
	if d.ExitCode != nil {
		fmt.Fprintf(&b, " (exit code %d)", *d.ExitCode)
	}
	if d.Stdout != "" {
		b.WriteString("\nstdout: ")
		b.WriteString(d.Stdout)
	}
	if d.Stderr != "" {
		b.WriteString("\nstderr: ")
		b.WriteString(d.Stderr)
	}
	if d.Cause != "" {
		b.WriteString("\ncaused by: ")
		b.WriteString(d.Cause)
	}
	return b.String()
}

// LooksFailed reports whether a completion result is a failure: either the
// engine set the failure marker or the text contains one of patterns.
func LooksFailed(marker bool, result string, patterns []string) bool {
	if marker {
		return true
	}
	for _, p := range patterns {
		if p != "" && strings.Contains(result, p) {
			return true
		}
	}
	return false
}
