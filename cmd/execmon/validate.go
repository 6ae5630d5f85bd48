package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/vinayprograms/execmon/internal/stream"
)

// maxReported caps how many malformed lines are listed individually.
const maxReported = 20

// validation is the result of checking one recorded stream.
type validation struct {
	Lines     int
	Events    map[string]int
	Malformed []malformedLine
	Ended     bool
}

type malformedLine struct {
	Line int
	Err  error
}

// runValidate checks a recorded stream and returns the process exit code.
func runValidate(cmd ValidateCmd, stdout io.Writer) int {
	f, err := os.Open(cmd.File)
	if err != nil {
		fmt.Fprintf(stdout, "Error: failed to open %s: %v\n", cmd.File, err)
		return 1
	}
	defer f.Close()

	v, err := validateStream(f)
	if err != nil {
		fmt.Fprintf(stdout, "Error: %v\n", err)
		return 1
	}
	printValidation(stdout, cmd.File, v)
	if len(v.Malformed) > 0 {
		return 1
	}
	return 0
}

// validateStream decodes every line of r, counting events per channel.
func validateStream(r io.Reader) (*validation, error) {
	v := &validation{Events: make(map[string]int)}
	reader := bufio.NewReader(r)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			v.Lines++
			v.record(line)
		} else if len(line) > 0 {
			v.Lines++
		}
		if readErr == io.EOF {
			return v, nil
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read stream: %w", readErr)
		}
	}
}

func (v *validation) record(line []byte) {
	ev, err := stream.Decode(line)
	var engineErr *stream.EngineError
	switch {
	case err == nil:
		v.Events[channelOf(ev)]++
	case errors.Is(err, io.EOF):
		v.Events[stream.ChannelEnd]++
		v.Ended = true
	case errors.As(err, &engineErr):
		v.Events[stream.ChannelError]++
		v.Ended = true
	default:
		v.Malformed = append(v.Malformed, malformedLine{Line: v.Lines, Err: err})
	}
}

func channelOf(ev stream.Event) string {
	switch e := ev.(type) {
	case stream.Content:
		return stream.ChannelMessages
	case stream.Update:
		return stream.ChannelUpdates
	case stream.Artifact:
		return stream.ChannelArtifact
	case stream.Unknown:
		if e.Channel == "" {
			return "(none)"
		}
		return e.Channel
	default:
		return "unknown"
	}
}

func printValidation(w io.Writer, path string, v *validation) {
	total := 0
	channels := make([]string, 0, len(v.Events))
	for ch, n := range v.Events {
		channels = append(channels, ch)
		total += n
	}
	sort.Strings(channels)

	if len(v.Malformed) == 0 {
		fmt.Fprintf(w, "✓ Valid: %s (%d events)\n", path, total)
	} else {
		fmt.Fprintf(w, "✗ Invalid: %s (%d events, %d malformed lines)\n", path, total, len(v.Malformed))
	}
	for _, ch := range channels {
		fmt.Fprintf(w, "  %-10s %d\n", ch, v.Events[ch])
	}
	if !v.Ended {
		fmt.Fprintln(w, "  note: stream has no end or error event")
	}
	for i, m := range v.Malformed {
		if i == maxReported {
			fmt.Fprintf(w, "  ... %d more\n", len(v.Malformed)-maxReported)
			break
		}
		fmt.Fprintf(w, "  line %d: %v\n", m.Line, m.Err)
	}
}
