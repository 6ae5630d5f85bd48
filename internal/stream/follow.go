package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollInterval bounds how long a follower waits when no filesystem
// notification arrives; some filesystems never deliver write events.
const pollInterval = 500 * time.Millisecond

// FollowSource tails an NDJSON file that the engine is still appending to.
// It ends when the engine writes an "end" control line, when the file is
// removed, or when the context is cancelled.
type FollowSource struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	watcher *fsnotify.Watcher
	pending []byte
	decoder *lineDecoder
}

// NewFollowSource opens path and starts watching it for appends.
func NewFollowSource(path string, opts ...Option) (*FollowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		f.Close()
		return nil, fmt.Errorf("failed to watch file: %w", err)
	}
	return &FollowSource{
		path:    path,
		file:    f,
		reader:  bufio.NewReaderSize(f, 64*1024),
		watcher: watcher,
		decoder: newLineDecoder(path, opts),
	}, nil
}

// Next returns the next complete line's event, waiting for the file to grow
// when the reader has caught up.
func (s *FollowSource) Next(ctx context.Context) (Event, error) {
	for {
		chunk, err := s.reader.ReadBytes('\n')
		s.pending = append(s.pending, chunk...)
		if err == nil {
			line := s.pending
			s.pending = nil
			ev, ok, derr := s.decoder.decode(line)
			if derr != nil {
				return nil, derr
			}
			if ok {
				return ev, nil
			}
			continue
		}
		if err != io.EOF {
			return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
		}
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// wait blocks until the file may have grown.
func (s *FollowSource) wait(ctx context.Context) error {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case event, ok := <-s.watcher.Events:
			if !ok {
				return io.ErrUnexpectedEOF
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				return fmt.Errorf("event log %s was removed before the stream ended: %w", s.path, io.ErrUnexpectedEOF)
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return nil
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return io.ErrUnexpectedEOF
			}
			s.decoder.logger.Warn("watcher error", map[string]interface{}{
				"path":  s.path,
				"error": err.Error(),
			})
		}
	}
}

// Close stops watching and closes the file.
func (s *FollowSource) Close() error {
	werr := s.watcher.Close()
	ferr := s.file.Close()
	if werr != nil {
		return werr
	}
	return ferr
}
