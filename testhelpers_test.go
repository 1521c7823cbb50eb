package polyscript

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/casualjim/polyscript/engine/javascript"
	"github.com/casualjim/polyscript/engine/lua"
	"github.com/casualjim/polyscript/events"
	"github.com/fogfish/opts"
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

type failureRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *failureRecorder) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *failureRecorder) recorded() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

type testExecutor struct {
	*Executor
	stdout    *lockedBuffer
	stderr    *lockedBuffer
	unhandled *failureRecorder
}

func newTestExecutor(t *testing.T, options ...opts.Option[Executor]) *testExecutor {
	t.Helper()
	te := &testExecutor{
		stdout:    &lockedBuffer{},
		stderr:    &lockedBuffer{},
		unhandled: &failureRecorder{},
	}
	base := []opts.Option[Executor]{
		WithEngine(javascript.Kind, javascript.Factory),
		WithEngine(lua.Kind, lua.Factory),
		WithStdout(te.stdout),
		WithStderr(te.stderr),
		WithUnhandledFailure(te.unhandled.record),
	}
	exec, err := New(append(base, options...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })
	te.Executor = exec
	return te
}

// lines collects sink output; safe to read once the evaluation's future resolved.
type lines struct {
	mu  sync.Mutex
	got []string
}

func (l *lines) sink(line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, line)
}

func (l *lines) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.got...)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) add(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) recorded() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *eventRecorder) OnOutput(_ context.Context, e events.Output)               { r.add(e) }
func (r *eventRecorder) OnCalls(_ context.Context, e events.Calls)                 { r.add(e) }
func (r *eventRecorder) OnEngineChanged(_ context.Context, e events.EngineChanged) { r.add(e) }
func (r *eventRecorder) OnTaskFailed(_ context.Context, e events.TaskFailed)       { r.add(e) }
func (r *eventRecorder) OnSupervisorFault(_ context.Context, e events.SupervisorFault) {
	r.add(e)
}
