package outmux

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/polyscript/pkg/uuidx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
}

func (r *lineRecorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestLineSink(t *testing.T) {
	t.Run("splits on newline", func(t *testing.T) {
		rec := &lineRecorder{}
		sink := NewLineSink(rec.add)
		_, err := sink.Write([]byte("a\nb\n"))
		require.NoError(t, err)
		require.NoError(t, sink.Close())
		sink.WaitUntilDrained()
		assert.Equal(t, []string{"a", "b"}, rec.get())
	})

	t.Run("joins partial writes and strips carriage returns", func(t *testing.T) {
		rec := &lineRecorder{}
		sink := NewLineSink(rec.add)
		_, _ = sink.Write([]byte("hel"))
		_, _ = sink.Write([]byte("lo\r\nwor"))
		_, _ = sink.Write([]byte("ld\r\n"))
		require.NoError(t, sink.Close())
		sink.WaitUntilDrained()
		assert.Equal(t, []string{"hello", "world"}, rec.get())
	})

	t.Run("flushes trailing partial line on close", func(t *testing.T) {
		rec := &lineRecorder{}
		sink := NewLineSink(rec.add)
		_, _ = sink.Write([]byte("first\nlast"))
		sink.WaitUntilDrained()
		assert.Equal(t, []string{"first"}, rec.get())

		require.NoError(t, sink.Close())
		sink.WaitUntilDrained()
		assert.Equal(t, []string{"first", "last"}, rec.get())
	})

	t.Run("keeps empty lines", func(t *testing.T) {
		rec := &lineRecorder{}
		sink := NewLineSink(rec.add)
		_, _ = sink.Write([]byte("\n\nx\n"))
		_ = sink.Close()
		sink.WaitUntilDrained()
		assert.Equal(t, []string{"", "", "x"}, rec.get())
	})

	t.Run("rejects writes after close", func(t *testing.T) {
		sink := NewLineSink(nil)
		require.NoError(t, sink.Close())
		require.NoError(t, sink.Close())
		_, err := sink.Write([]byte("x"))
		assert.ErrorIs(t, err, ErrSinkClosed)
	})

	t.Run("wait until drained waits for a slow callback", func(t *testing.T) {
		var delivered []string
		var mu sync.Mutex
		sink := NewLineSink(func(line string) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			delivered = append(delivered, line)
			mu.Unlock()
		})
		for range 10 {
			_, _ = sink.Write([]byte("line\n"))
		}
		sink.WaitUntilDrained()
		mu.Lock()
		assert.Len(t, delivered, 10)
		mu.Unlock()
		_ = sink.Close()
	})

	t.Run("survives a panicking callback", func(t *testing.T) {
		rec := &lineRecorder{}
		sink := NewLineSink(func(line string) {
			if line == "bad" {
				panic("nope")
			}
			rec.add(line)
		})
		_, _ = sink.Write([]byte("bad\ngood\n"))
		_ = sink.Close()
		sink.WaitUntilDrained()
		assert.Equal(t, []string{"good"}, rec.get())
	})
}

func TestStream(t *testing.T) {
	t.Run("owner writes are captured as lines", func(t *testing.T) {
		base := &lockedBuffer{}
		stream := NewStream(Stdout, base)
		owner := uuidx.New()

		rec := &lineRecorder{}
		capture := stream.Install(owner, rec.add)
		_, err := stream.Writer(owner).Write([]byte("a\nb\n"))
		require.NoError(t, err)
		require.NoError(t, capture.Close())
		capture.WaitUntilDrained()

		assert.Equal(t, []string{"a", "b"}, rec.get())
		assert.Empty(t, base.String())
	})

	t.Run("concurrent foreign writes pass through untouched", func(t *testing.T) {
		base := &lockedBuffer{}
		stream := NewStream(Stdout, base)
		owner := uuidx.New()
		stranger := uuidx.New()

		rec := &lineRecorder{}
		capture := stream.Install(owner, rec.add)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 50 {
				_, _ = stream.Write([]byte("noise\n"))
			}
		}()
		go func() {
			defer wg.Done()
			for range 50 {
				_, _ = stream.Writer(stranger).Write([]byte("other\n"))
			}
		}()

		_, _ = stream.Writer(owner).Write([]byte("a\n"))
		_, _ = stream.Writer(owner).Write([]byte("b\n"))
		wg.Wait()
		require.NoError(t, capture.Close())
		capture.WaitUntilDrained()

		assert.Equal(t, []string{"a", "b"}, rec.get())
		assert.Equal(t, 50, strings.Count(base.String(), "noise\n"))
		assert.Equal(t, 50, strings.Count(base.String(), "other\n"))
	})

	t.Run("close restores previous writer", func(t *testing.T) {
		base := &lockedBuffer{}
		stream := NewStream(Stderr, base)
		owner := uuidx.New()

		capture := stream.Install(owner, nil)
		require.NoError(t, capture.Close())
		require.NoError(t, capture.Close())

		_, _ = stream.Writer(owner).Write([]byte("after\n"))
		assert.Equal(t, "after\n", base.String())
		assert.Equal(t, Stderr, stream.Kind())
	})

	t.Run("nested captures route by owner", func(t *testing.T) {
		base := &lockedBuffer{}
		stream := NewStream(Stdout, base)
		outer, inner := uuidx.New(), uuidx.New()

		outerRec, innerRec := &lineRecorder{}, &lineRecorder{}
		outerCap := stream.Install(outer, outerRec.add)
		innerCap := stream.Install(inner, innerRec.add)

		_, _ = stream.Writer(outer).Write([]byte("o1\n"))
		_, _ = stream.Writer(inner).Write([]byte("i1\n"))

		// closing out of order leaves the inner capture working
		require.NoError(t, outerCap.Close())
		_, _ = stream.Writer(outer).Write([]byte("o2\n"))
		_, _ = stream.Writer(inner).Write([]byte("i2\n"))
		require.NoError(t, innerCap.Close())
		outerCap.WaitUntilDrained()
		innerCap.WaitUntilDrained()

		assert.Equal(t, []string{"o1"}, outerRec.get())
		assert.Equal(t, []string{"i1", "i2"}, innerRec.get())
		assert.Equal(t, "o2\n", base.String())
	})
}
