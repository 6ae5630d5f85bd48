package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// ErrMalformed wraps lines that cannot be decoded at all.
var ErrMalformed = errors.New("malformed event")

// wireFields is one line split into its top-level fields. Each field is
// decoded on its own so a badly typed field degrades to absent instead of
// rejecting the whole event.
type wireFields map[string]json.RawMessage

func (f wireFields) str(key string) string {
	return scalarString(f[key])
}

type wireToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

type wireMessage struct {
	Type       string
	Content    json.RawMessage
	ToolCallID string
	Name       string
	Status     string
	ToolCalls  []wireToolCall
}

// Decode parses one NDJSON line. An "end" control line yields io.EOF and an
// "error" control line yields an *EngineError. Missing or badly typed
// fields are treated as absent; only lines that are not JSON objects fail
// with ErrMalformed.
func Decode(line []byte) (Event, error) {
	var w wireFields
	if err := json.Unmarshal(line, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	switch channel := w.str("channel"); channel {
	case ChannelMessages:
		return decodeContent(w), nil
	case ChannelUpdates:
		return decodeUpdate(w), nil
	case ChannelArtifact:
		return Artifact{Path: w.str("path")}, nil
	case ChannelEnd:
		return nil, io.EOF
	case ChannelError:
		ee := &EngineError{
			Message:  w.str("message"),
			ExitCode: scalarInt(w["exit_code"]),
			Stdout:   w.str("stdout"),
			Stderr:   w.str("stderr"),
		}
		if cause := w.str("cause"); cause != "" {
			ee.Cause = errors.New(cause)
		}
		return nil, ee
	default:
		return Unknown{Channel: channel}, nil
	}
}

func decodeContent(w wireFields) Content {
	c := Content{Namespace: decodeNamespace(w["namespace"])}
	if len(w["text"]) > 0 {
		c.Text = decodeText(w["text"])
	} else {
		c.Text = decodeText(w["content"])
	}
	for _, tc := range decodeToolCalls(w["tool_calls"]) {
		c.Requests = append(c.Requests, ActionRequest{
			Token: tc.ID,
			Name:  tc.Name,
			Args:  decodeArgs(tc.Args),
		})
	}
	return c
}

func decodeUpdate(w wireFields) Update {
	u := Update{Namespace: decodeNamespace(w["namespace"]), Node: w.str("node")}

	var data wireFields
	if raw := w["data"]; len(raw) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			data = nil
		}
	}

	if raw, ok := data["todos"]; ok {
		if todos, ok := decodeObjects(raw); ok {
			list := TaskList{Items: make([]TaskItem, 0, len(todos))}
			for _, t := range todos {
				list.Items = append(list.Items, TaskItem{
					Content: t.str("content"),
					Status:  ParseTaskStatus(t.str("status")),
				})
			}
			u.Payloads = append(u.Payloads, list)
		}
	}

	var turn *TurnComplete
	if raw, ok := data["messages"]; ok {
		if msgs, ok := decodeMessages(raw); ok {
			var done Completions
			for _, m := range msgs {
				switch {
				case m.Type == "tool" || m.ToolCallID != "":
					done.Records = append(done.Records, CompletionRecord{
						Token:  m.ToolCallID,
						Name:   m.Name,
						Result: decodeText(m.Content),
						Failed: strings.EqualFold(m.Status, "error"),
					})
				case (m.Type == "ai" || m.Type == "assistant") && len(m.ToolCalls) == 0:
					turn = &TurnComplete{Text: decodeText(m.Content)}
				}
			}
			if len(done.Records) > 0 {
				u.Payloads = append(u.Payloads, done)
			}
		}
	}
	if turn != nil {
		u.Payloads = append(u.Payloads, *turn)
	}

	if u.Node == InterruptNode {
		u.Payloads = append(u.Payloads, Interrupt{Value: compactJSON(w["data"])})
	} else if raw, ok := data[InterruptNode]; ok {
		u.Payloads = append(u.Payloads, Interrupt{Value: compactJSON(raw)})
	}

	if len(u.Payloads) == 0 {
		keys := make([]string, 0, len(data))
		for k := range data {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		u.Payloads = append(u.Payloads, Unrecognized{Keys: keys})
	}
	return u
}

// decodeObjects accepts an array and returns its object elements, skipping
// elements of any other type. ok is false when raw is not an array.
func decodeObjects(raw json.RawMessage) ([]wireFields, bool) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, false
	}
	out := make([]wireFields, 0, len(elems))
	for _, e := range elems {
		var f wireFields
		if err := json.Unmarshal(e, &f); err == nil && f != nil {
			out = append(out, f)
		}
	}
	return out, true
}

func decodeToolCalls(raw json.RawMessage) []wireToolCall {
	objs, _ := decodeObjects(raw)
	calls := make([]wireToolCall, 0, len(objs))
	for _, o := range objs {
		calls = append(calls, wireToolCall{ID: o.str("id"), Name: o.str("name"), Args: o["args"]})
	}
	return calls
}

func decodeMessages(raw json.RawMessage) ([]wireMessage, bool) {
	objs, ok := decodeObjects(raw)
	if !ok {
		return nil, false
	}
	msgs := make([]wireMessage, 0, len(objs))
	for _, o := range objs {
		msgs = append(msgs, wireMessage{
			Type:       o.str("type"),
			Content:    o["content"],
			ToolCallID: o.str("tool_call_id"),
			Name:       o.str("name"),
			Status:     o.str("status"),
			ToolCalls:  decodeToolCalls(o["tool_calls"]),
		})
	}
	return msgs, true
}

// scalarString reads a string field. Numbers and booleans keep their JSON
// text; null, objects and arrays are absent.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	switch raw[0] {
	case '{', '[', 'n':
		return ""
	}
	return string(raw)
}

// scalarInt reads an integer given as a JSON number or a numeric string.
func scalarInt(raw json.RawMessage) *int {
	if len(raw) == 0 {
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return nil
		}
		v = int(f)
	}
	return &v
}

// decodeNamespace accepts either a JSON array of segments or a single
// "|"-joined string.
func decodeNamespace(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var segs []string
	if err := json.Unmarshal(raw, &segs); err == nil {
		return segs
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil && joined != "" {
		return strings.Split(joined, "|")
	}
	return nil
}

// decodeText accepts a plain string or a list of content blocks, joining the
// text of every block that has one.
func decodeText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var b strings.Builder
		for _, blk := range blocks {
			b.WriteString(blk.Text)
		}
		return b.String()
	}
	return compactJSON(raw)
}

// decodeArgs accepts an object or a JSON-encoded object string. Anything
// else yields nil args.
func decodeArgs(raw json.RawMessage) map[string]interface{} {
	if len(raw) == 0 {
		return nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &args); err == nil {
			return args
		}
	}
	return nil
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
