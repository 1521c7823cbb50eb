package outmux

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"

	"github.com/casualjim/polyscript/pkg/slogx"
)

// ErrSinkClosed is returned when writing to a LineSink after Close.
var ErrSinkClosed = errors.New("line sink closed")

// LineFunc receives one line of output, without its separator.
type LineFunc func(line string)

// LineSink buffers bytes into lines and hands them to a callback on a dedicated
// goroutine, in the order they were written.
type LineSink struct {
	mu     sync.Mutex // guards buf, closed and sends on lines
	buf    []byte
	closed bool
	lines  chan string
	fn     LineFunc

	countMu sync.Mutex
	pending int
	drained *sync.Cond
}

func NewLineSink(fn LineFunc) *LineSink {
	s := &LineSink{
		lines: make(chan string, 64),
		fn:    fn,
	}
	s.drained = sync.NewCond(&s.countMu)
	go s.deliver()
	return s
}

func (s *LineSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSinkClosed
	}

	s.buf = append(s.buf, p...)
	for {
		idx := bytes.IndexByte(s.buf, '\n')
		if idx < 0 {
			break
		}
		s.emit(s.buf[:idx])
		s.buf = s.buf[idx+1:]
	}
	if len(s.buf) == 0 {
		s.buf = nil
	}
	return len(p), nil
}

// Close flushes a trailing partial line and stops accepting writes. It is safe to
// call more than once.
func (s *LineSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if len(s.buf) > 0 {
		s.emit(s.buf)
		s.buf = nil
	}
	close(s.lines)
	return nil
}

// WaitUntilDrained blocks until every line accepted so far has been handed to the
// callback and the callback returned.
func (s *LineSink) WaitUntilDrained() {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	for s.pending > 0 {
		s.drained.Wait()
	}
}

// emit must be called with s.mu held. The send may block while the delivery
// goroutine catches up; delivery only ever takes countMu.
func (s *LineSink) emit(raw []byte) {
	line := string(bytes.ReplaceAll(raw, []byte{'\r'}, nil))
	s.countMu.Lock()
	s.pending++
	s.countMu.Unlock()
	s.lines <- line
}

func (s *LineSink) deliver() {
	for line := range s.lines {
		s.call(line)
		s.countMu.Lock()
		s.pending--
		if s.pending == 0 {
			s.drained.Broadcast()
		}
		s.countMu.Unlock()
	}
}

func (s *LineSink) call(line string) {
	if s.fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("output callback panicked", slogx.Recovered(r))
		}
	}()
	s.fn(line)
}
