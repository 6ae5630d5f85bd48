package stream

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReaderSource_MalformedAndEnds(t *testing.T) {
	input := strings.Join([]string{
		`{"channel":"messages","text":"a"}`,
		``,
		`garbage`,
		`{"channel":"artifact","path":"x.md"}`,
		`{"channel":"end"}`,
		`{"channel":"messages","text":"after end"}`,
	}, "\n")
	src := NewReaderSource(strings.NewReader(input))
	ctx := context.Background()

	ev, err := src.Next(ctx)
	if err != nil || ev.(Content).Text != "a" {
		t.Fatalf("expected first content, got %v %v", ev, err)
	}
	ev, err = src.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m, ok := ev.(Malformed); !ok || m.Line != 3 || m.Raw != "garbage" || m.Err == "" {
		t.Errorf("expected malformed line 3 to be delivered, got %#v", ev)
	}
	ev, err = src.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a, ok := ev.(Artifact); !ok || a.Path != "x.md" {
		t.Errorf("expected artifact, got %#v", ev)
	}
	if _, err := src.Next(ctx); err != io.EOF {
		t.Errorf("expected io.EOF at end control line, got %v", err)
	}
}

func TestReaderSource_NoTrailingNewline(t *testing.T) {
	src := NewReaderSource(strings.NewReader(`{"channel":"messages","text":"tail"}`))
	ev, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.(Content).Text != "tail" {
		t.Errorf("unexpected event %#v", ev)
	}
	if _, err := src.Next(context.Background()); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestReaderSource_LargeLine(t *testing.T) {
	big := strings.Repeat("x", 2*1024*1024)
	src := NewReaderSource(strings.NewReader(`{"channel":"messages","text":"` + big + `"}` + "\n"))
	ev, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ev.(Content).Text) != len(big) {
		t.Errorf("large line truncated by reader")
	}
}

func TestChanSource(t *testing.T) {
	ch := make(chan Item, 3)
	ch <- Item{Event: Artifact{Path: "a"}}
	ch <- Item{Err: errors.New("transport down")}
	src := NewChanSource(ch)

	if _, err := src.Next(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := src.Next(context.Background()); err == nil || err.Error() != "transport down" {
		t.Errorf("expected transport error, got %v", err)
	}

	close(ch)
	if _, err := src.Next(context.Background()); err != io.EOF {
		t.Errorf("expected io.EOF on closed channel, got %v", err)
	}
}

func TestChanSource_ContextCancel(t *testing.T) {
	src := NewChanSource(make(chan Item))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSliceSource_TerminalError(t *testing.T) {
	boom := errors.New("boom")
	src := &SliceSource{Events: []Event{Artifact{}}, Err: boom}
	src.Next(context.Background())
	if _, err := src.Next(context.Background()); err != boom {
		t.Errorf("expected terminal error, got %v", err)
	}
}

func TestFollowSource_TailsAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	if err := os.WriteFile(path, []byte(`{"channel":"messages","text":"first"}`+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	src, err := NewFollowSource(path)
	if err != nil {
		t.Fatalf("follow error: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ev, err := src.Next(ctx)
	if err != nil || ev.(Content).Text != "first" {
		t.Fatalf("expected first event, got %v %v", ev, err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return
		}
		defer f.Close()
		// Split one line across two writes to exercise partial-line buffering.
		f.WriteString(`{"channel":"messages",`)
		f.Sync()
		time.Sleep(20 * time.Millisecond)
		f.WriteString(`"text":"second"}` + "\n" + `{"channel":"end"}` + "\n")
	}()

	ev, err = src.Next(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.(Content).Text != "second" {
		t.Errorf("expected second event, got %#v", ev)
	}
	if _, err := src.Next(ctx); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFollowSource_ContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.ndjson")
	os.WriteFile(path, nil, 0644)

	src, err := NewFollowSource(path)
	if err != nil {
		t.Fatalf("follow error: %v", err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
