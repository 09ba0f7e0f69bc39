package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrSourceUnavailable is matched by every error meaning the record source
// cannot be opened or read. The run-loop treats it as fatal for the run.
var ErrSourceUnavailable = errors.New("record source unavailable")

type UnavailableError struct {
	Source string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("record source %s unavailable: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrSourceUnavailable
}

func unavailable(name string, err error) error {
	return &UnavailableError{Source: name, Err: err}
}

// Source supplies raw traffic lines. Open is called at the start of every
// window; the returned Stream yields lines until io.EOF.
type Source interface {
	Name() string
	Open(ctx context.Context) (Stream, error)
	Close() error
}

type Stream interface {
	// Next blocks until a line is available, the stream is exhausted (io.EOF)
	// or ctx is done (ctx.Err()).
	Next(ctx context.Context) (string, error)
	Close() error
}

// Feed buffers lines produced by a background reader. It is shared by the
// streaming sources, whose windows all read from the same feed.
type Feed struct {
	name  string
	lines chan string
	mu    sync.Mutex
	err   error
}

func NewFeed(name string, size int) *Feed {
	if size <= 0 {
		size = 1000
	}
	return &Feed{
		name:  name,
		lines: make(chan string, size),
	}
}

func (f *Feed) Push(ctx context.Context, line string) bool {
	select {
	case f.lines <- line:
		return true
	case <-ctx.Done():
		return false
	}
}

// End closes the feed; a non-nil err is reported to readers as unavailability.
// Only the producer goroutine calls End, exactly once.
func (f *Feed) End(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	close(f.lines)
}

func (f *Feed) Next(ctx context.Context) (string, error) {
	select {
	case line, ok := <-f.lines:
		if !ok {
			f.mu.Lock()
			err := f.err
			f.mu.Unlock()
			if err != nil {
				return "", unavailable(f.name, err)
			}
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close detaches a window from the feed; the feed itself keeps running
func (f *Feed) Close() error {
	return nil
}

// SliceSource serves a fixed list of lines on every Open
type SliceSource struct {
	name  string
	lines []string
}

func NewSliceSource(name string, lines []string) *SliceSource {
	return &SliceSource{name: name, lines: lines}
}

func (s *SliceSource) Name() string {
	return s.name
}

func (s *SliceSource) Open(ctx context.Context) (Stream, error) {
	return &sliceStream{lines: s.lines}, nil
}

func (s *SliceSource) Close() error {
	return nil
}

type sliceStream struct {
	lines []string
	pos   int
}

func (s *sliceStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.lines) {
		return "", io.EOF
	}
	line := s.lines[s.pos]
	s.pos++
	return line, nil
}

func (s *sliceStream) Close() error {
	return nil
}
