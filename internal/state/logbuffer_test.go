package state

import (
	"fmt"
	"testing"
	"time"
)

func TestLogBuffer_NeverExceedsCapacity(t *testing.T) {
	b := NewLogBuffer(100)
	now := time.Now()
	for i := 0; i < 150; i++ {
		b.Append(LogInfo, fmt.Sprintf("event %d", i), now)
		if b.Len() > 100 {
			t.Fatalf("length %d exceeds capacity after %d appends", b.Len(), i+1)
		}
	}

	entries := b.Entries()
	if len(entries) != 100 {
		t.Fatalf("expected 100 entries, got %d", len(entries))
	}
	for i, e := range entries {
		want := fmt.Sprintf("event %d", i+50)
		if e.Text != want {
			t.Errorf("entry %d: expected %q, got %q", i, want, e.Text)
		}
	}
	if entries[0].ID != 51 || entries[99].ID != 150 {
		t.Errorf("ids should be monotonic, got first=%d last=%d", entries[0].ID, entries[99].ID)
	}
}

func TestLogBuffer_PartialFill(t *testing.T) {
	b := NewLogBuffer(5)
	b.Append(LogTool, "a", time.Now())
	b.Append(LogError, "b", time.Now())

	entries := b.Entries()
	if len(entries) != 2 || entries[0].Text != "a" || entries[1].Category != LogError {
		t.Errorf("unexpected entries %+v", entries)
	}
	if b.Cap() != 5 {
		t.Errorf("expected cap 5, got %d", b.Cap())
	}
}

func TestLogBuffer_EntriesIsCopy(t *testing.T) {
	b := NewLogBuffer(2)
	b.Append(LogInfo, "a", time.Now())
	entries := b.Entries()
	entries[0].Text = "mutated"
	if b.Entries()[0].Text != "a" {
		t.Error("Entries should return a copy")
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello world", 5); got != "hell…" {
		t.Errorf("unexpected truncate %q", got)
	}
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("short strings are kept, got %q", got)
	}
	if got := Truncate("héllo", 0); got != "héllo" {
		t.Errorf("zero limit disables truncation, got %q", got)
	}
	if got := Truncate("日本語テキスト", 3); got != "日本…" {
		t.Errorf("truncate must be rune-safe, got %q", got)
	}
}
