package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/vinayprograms/agentkit/logging"
)

// Source yields decoded events one at a time. Next returns io.EOF when the
// stream is exhausted normally; any other error is a transport or engine
// failure and ends the stream.
type Source interface {
	Next(ctx context.Context) (Event, error)
}

// Option configures a source.
type Option func(*lineDecoder)

// WithLogger sets the logger sources derive their component logger from.
func WithLogger(l *logging.Logger) Option {
	return func(d *lineDecoder) { d.logger = l.WithComponent("stream") }
}

// lineDecoder turns raw lines into events. Blank lines are skipped; lines
// that are not events at all become Malformed events.
type lineDecoder struct {
	logger *logging.Logger
	origin string
	line   int
}

func newLineDecoder(origin string, opts []Option) *lineDecoder {
	d := &lineDecoder{
		logger: logging.New().WithComponent("stream"),
		origin: origin,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// decode returns (event, true, nil) for a usable event, (nil, false, nil)
// for a blank line, and a terminal error for control lines.
func (d *lineDecoder) decode(raw []byte) (Event, bool, error) {
	d.line++
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, false, nil
	}
	ev, err := Decode(raw)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			d.logger.Warn("malformed event", map[string]interface{}{
				"origin": d.origin,
				"line":   d.line,
				"error":  err.Error(),
			})
			return Malformed{Line: d.line, Raw: string(raw), Err: err.Error()}, true, nil
		}
		return nil, false, err
	}
	return ev, true, nil
}

// ReaderSource reads NDJSON events from an io.Reader until EOF.
type ReaderSource struct {
	reader  *bufio.Reader
	decoder *lineDecoder
}

// NewReaderSource creates a source over r. Lines of any length are accepted.
func NewReaderSource(r io.Reader, opts ...Option) *ReaderSource {
	return &ReaderSource{
		reader:  bufio.NewReaderSize(r, 64*1024),
		decoder: newLineDecoder("reader", opts),
	}
}

// Next returns the next event.
func (s *ReaderSource) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, readErr := s.reader.ReadBytes('\n')
		if len(line) > 0 {
			ev, ok, err := s.decoder.decode(line)
			if err != nil {
				return nil, err
			}
			if ok {
				return ev, nil
			}
		}
		if readErr != nil {
			return nil, readErr
		}
	}
}

// Item is one element delivered through a ChanSource.
type Item struct {
	Event Event
	Err   error
}

// ChanSource adapts a channel fed by an in-process producer. A closed channel
// is normal exhaustion.
type ChanSource struct {
	ch <-chan Item
}

// NewChanSource creates a source reading from ch.
func NewChanSource(ch <-chan Item) *ChanSource {
	return &ChanSource{ch: ch}
}

// Next returns the next event.
func (s *ChanSource) Next(ctx context.Context) (Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item, ok := <-s.ch:
		if !ok {
			return nil, io.EOF
		}
		if item.Err != nil {
			return nil, item.Err
		}
		return item.Event, nil
	}
}

// SliceSource replays a fixed list of events, then returns Err (io.EOF when
// nil).
type SliceSource struct {
	Events []Event
	Err    error
	pos    int
}

// NewSliceSource creates a source over events that ends normally.
func NewSliceSource(events ...Event) *SliceSource {
	return &SliceSource{Events: events}
}

// Next returns the next event.
func (s *SliceSource) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos < len(s.Events) {
		ev := s.Events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return nil, io.EOF
}
