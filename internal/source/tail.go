package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nxadm/tail"
	"github.com/sirupsen/logrus"
)

// TailSource follows a growing traffic log. Lines that arrive between
// windows are buffered and consumed by the next window.
type TailSource struct {
	path          string
	fromBeginning bool
	bufferSize    int
	logger        *logrus.Logger

	mu     sync.Mutex
	tail   *tail.Tail
	feed   *Feed
	cancel context.CancelFunc
	done   chan struct{}
}

func NewTailSource(path string, fromBeginning bool, bufferSize int, logger *logrus.Logger) *TailSource {
	return &TailSource{
		path:          path,
		fromBeginning: fromBeginning,
		bufferSize:    bufferSize,
		logger:        logger,
	}
}

func (s *TailSource) Name() string {
	return "tail:" + s.path
}

func (s *TailSource) Open(ctx context.Context) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.feed != nil {
		return s.feed, nil
	}

	if _, err := os.Stat(s.path); err != nil {
		return nil, unavailable(s.Name(), err)
	}

	whence := io.SeekEnd
	if s.fromBeginning {
		whence = io.SeekStart
	}

	t, err := tail.TailFile(s.path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: whence},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, unavailable(s.Name(), fmt.Errorf("failed to tail file: %w", err))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.tail = t
	s.feed = NewFeed(s.Name(), s.bufferSize)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.pump(runCtx, t, s.feed)

	s.logger.Infof("Started tailing traffic log %s", s.path)
	return s.feed, nil
}

func (s *TailSource) pump(ctx context.Context, t *tail.Tail, f *Feed) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			f.End(nil)
			return
		case line, ok := <-t.Lines:
			if !ok {
				f.End(t.Err())
				return
			}
			if line.Err != nil {
				s.logger.Warnf("Error reading %s: %v", s.path, line.Err)
				continue
			}
			if !f.Push(ctx, line.Text) {
				f.End(nil)
				return
			}
		}
	}
}

func (s *TailSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tail == nil {
		return nil
	}
	s.cancel()
	<-s.done

	// Keep the tailer from blocking on Lines while it stops
	stopped := make(chan struct{})
	go func(lines <-chan *tail.Line) {
		for {
			select {
			case <-lines:
			case <-stopped:
				return
			}
		}
	}(s.tail.Lines)

	err := s.tail.Stop()
	close(stopped)
	s.tail.Cleanup()
	s.tail = nil
	return err
}
