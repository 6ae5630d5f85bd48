package state

import "time"

// LogBuffer is a fixed-capacity FIFO ring of log entries. Once full, each
// append evicts the oldest entry. IDs are assigned monotonically and never
// reused.
type LogBuffer struct {
	entries []LogEntry
	start   int
	size    int
	nextID  uint64
}

// NewLogBuffer creates a ring holding at most capacity entries.
func NewLogBuffer(capacity int) *LogBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogBuffer{entries: make([]LogEntry, capacity)}
}

// Append adds an entry, evicting the oldest when the ring is full.
func (b *LogBuffer) Append(category LogCategory, text string, at time.Time) LogEntry {
	b.nextID++
	entry := LogEntry{ID: b.nextID, Category: category, Text: text, Time: at}

	capacity := len(b.entries)
	if b.size < capacity {
		b.entries[(b.start+b.size)%capacity] = entry
		b.size++
	} else {
		b.entries[b.start] = entry
		b.start = (b.start + 1) % capacity
	}
	return entry
}

// Entries returns a copy of the retained entries, oldest first.
func (b *LogBuffer) Entries() []LogEntry {
	out := make([]LogEntry, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.start+i)%len(b.entries)]
	}
	return out
}

// Len returns the number of retained entries.
func (b *LogBuffer) Len() int { return b.size }

// Cap returns the fixed capacity.
func (b *LogBuffer) Cap() int { return len(b.entries) }
