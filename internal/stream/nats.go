package stream

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// natsBuffer is the subscription channel depth. The client reports a slow
// consumer instead of blocking when it fills.
const natsBuffer = 4096

// NATSSource receives one event per message on a NATS subject.
type NATSSource struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	msgs    chan *nats.Msg
	closed  chan struct{}
	decoder *lineDecoder
}

// NewNATSSource connects to url and subscribes to subject.
func NewNATSSource(url, subject string, opts ...Option) (*NATSSource, error) {
	s := &NATSSource{
		msgs:    make(chan *nats.Msg, natsBuffer),
		closed:  make(chan struct{}),
		decoder: newLineDecoder("nats:"+subject, opts),
	}

	conn, err := nats.Connect(url,
		nats.Name("execmon"),
		nats.ClosedHandler(func(*nats.Conn) {
			close(s.closed)
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			s.decoder.logger.Error("nats async error", map[string]interface{}{
				"subject": subject,
				"error":   err.Error(),
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	sub, err := conn.ChanSubscribe(subject, s.msgs)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	s.conn = conn
	s.sub = sub
	return s, nil
}

// Next returns the next event received on the subject.
func (s *NATSSource) Next(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.closed:
			return nil, fmt.Errorf("nats connection closed before the stream ended")
		case msg := <-s.msgs:
			ev, ok, err := s.decoder.decode(msg.Data)
			if err != nil {
				return nil, err
			}
			if ok {
				return ev, nil
			}
		}
	}
}

// Close unsubscribes and closes the connection.
func (s *NATSSource) Close() error {
	if err := s.sub.Unsubscribe(); err != nil {
		s.conn.Close()
		return err
	}
	s.conn.Close()
	return nil
}
