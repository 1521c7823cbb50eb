package outmux

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Kind classifies the channel a line was written to.
type Kind int

const (
	Stdout Kind = iota
	Stderr
)

func (k Kind) String() string {
	if k == Stderr {
		return "stderr"
	}
	return "stdout"
}

// ownedWriter is implemented by writers that can route a write by its owner.
type ownedWriter interface {
	writeOwned(owner uuid.UUID, p []byte) (int, error)
}

// Stream is a swappable output channel. The zero value is not usable, use NewStream.
type Stream struct {
	kind    Kind
	mu      sync.Mutex
	current io.Writer
}

func NewStream(kind Kind, base io.Writer) *Stream {
	if base == nil {
		base = io.Discard
	}
	return &Stream{kind: kind, current: base}
}

func (s *Stream) Kind() Kind {
	return s.kind
}

// Write is an untagged write. It always reaches the writer that was installed
// before any capture.
func (s *Stream) Write(p []byte) (int, error) {
	return s.load().Write(p)
}

// Writer returns a writer whose writes are attributed to owner.
func (s *Stream) Writer(owner uuid.UUID) io.Writer {
	return &tagged{stream: s, owner: owner}
}

// Install redirects writes attributed to owner into fn, one line per call, until
// the returned Capture is closed.
func (s *Stream) Install(owner uuid.UUID, fn LineFunc) *Capture {
	s.mu.Lock()
	defer s.mu.Unlock()

	sp := &splitter{
		owner: owner,
		sink:  NewLineSink(fn),
		prev:  s.current,
	}
	s.current = sp
	return &Capture{stream: s, splitter: sp}
}

func (s *Stream) load() io.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Stream) uninstall(sp *splitter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == sp {
		s.current = sp.prev
		for {
			below, ok := s.current.(*splitter)
			if !ok || !below.closed.Load() {
				break
			}
			s.current = below.prev
		}
	}
	// Installed below a later capture: it stays in the chain as a pure pass-through.
}

type tagged struct {
	stream *Stream
	owner  uuid.UUID
}

func (t *tagged) Write(p []byte) (int, error) {
	return writeOwned(t.stream.load(), t.owner, p)
}

func writeOwned(w io.Writer, owner uuid.UUID, p []byte) (int, error) {
	if ow, ok := w.(ownedWriter); ok {
		return ow.writeOwned(owner, p)
	}
	return w.Write(p)
}

type splitter struct {
	owner  uuid.UUID
	sink   *LineSink
	prev   io.Writer
	closed atomic.Bool
}

func (sp *splitter) Write(p []byte) (int, error) {
	return sp.prev.Write(p)
}

func (sp *splitter) writeOwned(owner uuid.UUID, p []byte) (int, error) {
	if owner == sp.owner && !sp.closed.Load() {
		n, err := sp.sink.Write(p)
		if !errors.Is(err, ErrSinkClosed) {
			return n, err
		}
	}
	return writeOwned(sp.prev, owner, p)
}

// Capture is one installed redirection.
type Capture struct {
	stream   *Stream
	splitter *splitter
	once     sync.Once
}

// Close restores the previously installed writer and flushes any trailing partial
// line. Safe to call more than once, so it can be deferred and called explicitly.
func (c *Capture) Close() error {
	var err error
	c.once.Do(func() {
		c.splitter.closed.Store(true)
		c.stream.uninstall(c.splitter)
		err = c.splitter.sink.Close()
	})
	return err
}

// WaitUntilDrained blocks until every captured line reached the callback.
func (c *Capture) WaitUntilDrained() {
	c.splitter.sink.WaitUntilDrained()
}
