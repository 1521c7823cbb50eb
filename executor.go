package polyscript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/casualjim/polyscript/engine"
	"github.com/casualjim/polyscript/events"
	"github.com/casualjim/polyscript/internal/outmux"
	"github.com/casualjim/polyscript/internal/queue"
	"github.com/casualjim/polyscript/pkg/slogx"
	"github.com/casualjim/polyscript/pkg/uuidx"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

// Executor runs every interaction with the scripting engines on one worker
// goroutine, in submission order.
//
// All methods are safe for concurrent use and return immediately with a Future,
// except Snapshot, Interrupt, Engines and Close. The variable namespace and the
// active engine are only touched by the worker, so a sequence like "evaluate
// under A, switch to B, evaluate under B" needs no further coordination.
//
// A task that never returns blocks the executor; there are no timeouts. Interrupt
// asks the running evaluation to stop.
type Executor struct {
	logger        *slog.Logger
	defaultKind   string
	events        events.Topic
	onUnhandled   func(error)
	registrations []engineRegistration
	baseStdout    io.Writer
	baseStderr    io.Writer

	engines   *engine.Registry
	queue     *queue.Queue[*task]
	stdout    *outmux.Stream
	stderr    *outmux.Stream
	namespace *engine.Namespace
	active    engine.Engine

	activeKind atomic.Pointer[string]
	variables  atomic.Pointer[[]string]
	running    atomic.Pointer[runningTask]
	completed  atomic.Int64
	failed     atomic.Int64
	restarts   atomic.Int64
	closed     atomic.Bool
	worker     atomic.Uint64

	// beforeTask runs on the worker between taking a task and running it. A panic
	// in it is a fault of the loop, not of the task.
	beforeTask func(*task)

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// New creates an executor, registers its engines and starts the worker. Activating
// the default engine is the first task the worker runs.
func New(options ...opts.Option[Executor]) (*Executor, error) {
	e := &Executor{
		engines:   engine.NewRegistry(),
		queue:     queue.New[*task](),
		namespace: engine.NewNamespace(),
		done:      make(chan struct{}),
	}
	if err := opts.Apply(e, options); err != nil {
		return nil, err
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With(slogx.LoggerName("executor"))
	if e.onUnhandled == nil {
		e.onUnhandled = func(err error) {
			e.logger.Error("unhandled task failure", slogx.Error(err))
		}
	}
	if e.baseStdout == nil {
		e.baseStdout = os.Stdout
	}
	if e.baseStderr == nil {
		e.baseStderr = os.Stderr
	}
	e.stdout = outmux.NewStream(outmux.Stdout, e.baseStdout)
	e.stderr = outmux.NewStream(outmux.Stderr, e.baseStderr)

	var errs error
	for _, reg := range e.registrations {
		errs = errors.Join(errs, e.engines.Register(reg.kind, reg.factory))
	}
	if errs != nil {
		return nil, errs
	}
	if len(e.registrations) == 0 {
		return nil, errors.New("at least one engine is required")
	}
	if e.defaultKind == "" {
		e.defaultKind = e.registrations[0].kind
	}
	if !e.engines.Has(e.defaultKind) {
		return nil, fmt.Errorf("default engine: %w: %s", ErrUnknownEngine, e.defaultKind)
	}

	go e.supervise()
	e.SetEngine(e.defaultKind)
	return e, nil
}

// Submit enqueues fn and returns a future for its result. fn runs on the worker
// and may use ctx to observe Interrupt.
func Submit[T any](e *Executor, fn func(ctx context.Context) (T, error)) *Future[T] {
	return submit(e, "submit", func(ctx context.Context, _ *task) (T, error) {
		return fn(ctx)
	})
}

// Execute enqueues fn and returns a future that completes when fn returns nil.
func (e *Executor) Execute(fn func(ctx context.Context) error) *Future[struct{}] {
	return submit(e, "execute", func(ctx context.Context, _ *task) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
}

func submit[T any](e *Executor, name string, fn func(context.Context, *task) (T, error)) *Future[T] {
	p := NewPromise[T](e)
	t := &task{id: uuidx.New(), name: name}
	t.run = func(ctx context.Context) {
		v, err := fn(ctx, t)
		settle(e, t, p, v, err)
	}
	t.fail = func(err error) {
		var zero T
		settle(e, t, p, zero, err)
	}
	if err := e.queue.Put(t); err != nil {
		t.fail(ErrClosed)
	}
	return p.Future()
}

func settle[T any](e *Executor, t *task, p *Promise[T], value T, err error) {
	// counters move before the future resolves so a waiter observes them
	if err != nil {
		e.failed.Add(1)
		e.publish(context.Background(), events.TaskFailed{TaskID: t.id, Engine: e.kind(), Error: err.Error()})
		if p.Fail(err) != nil {
			e.failed.Add(-1)
		}
		return
	}
	e.completed.Add(1)
	if p.Complete(value) != nil {
		e.completed.Add(-1)
	}
}

// Eval evaluates source with the active engine. Console output of the evaluation
// goes to stdout and stderr, one line per call; on failure the error text is also
// written to stderr before the future fails.
func (e *Executor) Eval(source string, stdout, stderr Sink) *Future[engine.Value] {
	return submit(e, "eval", func(ctx context.Context, t *task) (engine.Value, error) {
		result := engine.Nil
		err := e.capture(t, stdout, stderr, func(eng engine.Engine, out engine.Output) error {
			v, err := eng.Eval(ctx, source, out)
			result = v
			return err
		})
		return result, err
	})
}

// EvalWithCallbackFunctions evaluates source with a recording shim in place of each
// name and returns the calls the script made to them, in order.
func (e *Executor) EvalWithCallbackFunctions(source string, names []string, stdout, stderr Sink) *Future[[]engine.CapturedCall] {
	return submit(e, "capture", func(ctx context.Context, t *task) ([]engine.CapturedCall, error) {
		var calls []engine.CapturedCall
		err := e.capture(t, stdout, stderr, func(eng engine.Engine, out engine.Output) error {
			c, err := eng.EvalWithCallbackFunctions(ctx, source, names, out)
			calls = c
			return err
		})
		if err != nil {
			return nil, err
		}
		if calls == nil {
			calls = []engine.CapturedCall{}
		}
		e.publish(ctx, events.Calls{TaskID: t.id, Engine: e.kind(), Calls: calls})
		return calls, nil
	})
}

// capture runs fn against the active engine with the task's output captured. The
// namespace is flushed in before and synced out after. Captures are torn down and
// drained on every exit path.
func (e *Executor) capture(t *task, stdout, stderr Sink, fn func(engine.Engine, engine.Output) error) (err error) {
	outCap := e.stdout.Install(t.id, e.lineFunc(t, outmux.Stdout, stdout))
	errCap := e.stderr.Install(t.id, e.lineFunc(t, outmux.Stderr, stderr))
	defer func() {
		_ = outCap.Close()
		_ = errCap.Close()
		outCap.WaitUntilDrained()
		errCap.WaitUntilDrained()
	}()

	out := engine.Output{Stdout: e.stdout.Writer(t.id), Stderr: e.stderr.Writer(t.id)}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("evaluation panicked", slogx.Task(t.id), slogx.Recovered(r), slog.String("stack", string(debug.Stack())))
			err = panicError(e.kind(), r)
		}
		if err != nil {
			writeLines(out.Stderr, err.Error())
		}
	}()

	eng := e.active
	if eng == nil {
		return fmt.Errorf("%w: no active engine", ErrUnknownEngine)
	}
	if ferr := e.namespace.FlushInto(eng); ferr != nil {
		e.logger.Warn("flushing namespace", slogx.Engine(eng.Kind()), slogx.Error(ferr))
	}
	err = fn(eng, out)
	e.sync(eng)
	return err
}

func (e *Executor) lineFunc(t *task, kind outmux.Kind, sink Sink) outmux.LineFunc {
	engineKind := e.kind()
	return func(line string) {
		e.publish(context.Background(), events.Output{TaskID: t.id, Engine: engineKind, Stream: kind.String(), Line: line})
		if sink != nil {
			sink(line)
		}
	}
}

func writeLines(w io.Writer, text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		_, _ = io.WriteString(w, line+"\n")
	}
}

func (e *Executor) sync(eng engine.Engine) {
	if err := e.namespace.SyncFrom(eng); err != nil {
		e.logger.Warn("syncing namespace", slogx.Engine(eng.Kind()), slogx.Error(err))
	}
	names := e.namespace.Names()
	e.variables.Store(&names)
}

// SetVariable binds name in the namespace and in the active engine.
func (e *Executor) SetVariable(name string, value any) *Future[struct{}] {
	return submit(e, "set-variable", func(context.Context, *task) (struct{}, error) {
		if _, err := engine.CheckNames([]string{name}); err != nil {
			return struct{}{}, err
		}
		e.namespace.Set(name, value)
		if e.active != nil {
			if err := e.active.Set(name, value); err != nil {
				return struct{}{}, err
			}
		}
		names := e.namespace.Names()
		e.variables.Store(&names)
		return struct{}{}, nil
	})
}

// GetVariable reads name from the namespace after syncing it with the active engine.
func (e *Executor) GetVariable(name string) *Future[engine.Value] {
	return submit(e, "get-variable", func(context.Context, *task) (engine.Value, error) {
		if e.active != nil {
			e.sync(e.active)
		}
		v, ok := e.namespace.Value(name)
		if !ok {
			return engine.Nil, fmt.Errorf("%w: %s", ErrUndefined, name)
		}
		return v, nil
	})
}

// SetEngine makes kind the active engine. The namespace is flushed into it before
// any later task runs. An unknown kind fails the future and leaves the previous
// engine active.
func (e *Executor) SetEngine(kind string) *Future[struct{}] {
	return submit(e, "set-engine", func(ctx context.Context, t *task) (struct{}, error) {
		if !e.engines.Has(kind) {
			return struct{}{}, fmt.Errorf("%w: %s", ErrUnknownEngine, kind)
		}
		next, err := e.engines.Instance(kind)
		if err != nil {
			return struct{}{}, err
		}
		prev := e.active
		if prev == next {
			return struct{}{}, nil
		}
		if prev != nil {
			e.sync(prev)
		}
		if err := e.namespace.FlushInto(next); err != nil {
			e.logger.Warn("flushing namespace", slogx.Engine(kind), slogx.Error(err))
		}
		e.active = next
		e.activeKind.Store(&kind)

		from := ""
		if prev != nil {
			from = prev.Kind()
		}
		e.logger.Debug("engine activated", slogx.Engine(kind), slog.String("previous", from))
		e.publish(ctx, events.EngineChanged{TaskID: t.id, From: from, To: kind})
		return struct{}{}, nil
	})
}

// Engines lists the registered engine kinds, sorted.
func (e *Executor) Engines() []string {
	return e.engines.Kinds()
}

// Interrupt cancels the context of the task running right now, if any. It is not
// sticky: tasks that start later are unaffected.
func (e *Executor) Interrupt() {
	if r := e.running.Load(); r != nil {
		r.cancel()
	}
}

// Stdout is an untagged writer to the executor's standard output. Writes through it
// are never captured by an evaluation.
func (e *Executor) Stdout() io.Writer {
	return e.stdout
}

// Stderr is the untagged counterpart of Stdout for error output.
func (e *Executor) Stderr() io.Writer {
	return e.stderr
}

// Close stops accepting tasks, lets the running task finish, fails the queued
// tasks with ErrClosed and closes every engine that was created.
//
// Called from the worker itself, in a task or a continuation, Close fails the
// queued tasks and returns nil right away. The engines are closed once that task
// returns.
func (e *Executor) Close() error {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		e.queue.Close()
	})
	if e.onWorker() {
		e.failQueued(ErrClosed)
		return nil
	}
	<-e.done
	return e.closeErr
}

func (e *Executor) failQueued(err error) {
	for _, t := range e.queue.Drain() {
		t.fail(err)
	}
}

func (e *Executor) onWorker() bool {
	return e.worker.Load() == goroutineID()
}

// goroutineID reads the id of the calling goroutine from its stack header,
// "goroutine 18 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(header, ' '); i > 0 {
		header = header[:i]
	}
	id, _ := strconv.ParseUint(string(header), 10, 64)
	return id
}

func (e *Executor) kind() string {
	if kind := e.activeKind.Load(); kind != nil {
		return *kind
	}
	return ""
}

// dispatch enqueues a continuation. Continuations arriving after Close are dropped.
func (e *Executor) dispatch(fn func(context.Context)) {
	t := &task{id: uuidx.New(), name: "continuation", run: fn}
	t.fail = func(err error) {
		e.logger.Warn("continuation not run", slogx.Task(t.id), slogx.Error(err))
	}
	if err := e.queue.Put(t); err != nil {
		t.fail(ErrClosed)
	}
}

// unhandledFailure reports err unless observed returns true by the time the tasks
// queued so far have run. A caller blocked in Get or Await marks the future observed
// before that point.
func (e *Executor) unhandledFailure(err error, observed func() bool) {
	report := func(context.Context) {
		if !observed() {
			e.onUnhandled(err)
		}
	}
	t := &task{id: uuidx.New(), name: "unhandled", run: report}
	t.fail = func(error) { report(context.Background()) }
	if e.queue.Put(t) != nil {
		t.fail(ErrClosed)
	}
}

func (e *Executor) publish(ctx context.Context, event events.Event) {
	if e.events == nil {
		return
	}
	switch ev := event.(type) {
	case events.Output:
		ev.Timestamp = now()
		event = ev
	case events.Calls:
		ev.Timestamp = now()
		event = ev
	case events.EngineChanged:
		ev.Timestamp = now()
		event = ev
	case events.TaskFailed:
		ev.Timestamp = now()
		event = ev
	case events.SupervisorFault:
		ev.Timestamp = now()
		event = ev
	}
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.Debug("publishing event", slogx.Error(err))
	}
}

func now() strfmt.DateTime {
	return strfmt.DateTime(time.Now().UTC())
}

// supervise keeps a consumption loop running until the queue is closed. When the
// loop itself faults, every task pending at that moment fails with
// ErrSupervisorRestart and a fresh loop starts. Once the queue is closed the
// leftover tasks fail with ErrClosed and the engines are closed.
func (e *Executor) supervise() {
	e.worker.Store(goroutineID())
	defer close(e.done)
	for {
		fault := e.loop()
		if fault == nil {
			break
		}
		e.restarts.Add(1)
		pending := e.queue.Drain()
		for _, t := range pending {
			t.fail(ErrSupervisorRestart)
		}
		e.logger.Error("worker loop faulted, restarting",
			slogx.Error(fault),
			slog.Int("pending", len(pending)),
			slog.String("stack", fault.Stack),
		)
		e.publish(context.Background(), events.SupervisorFault{Error: fault.Error(), Stack: fault.Stack, Pending: len(pending)})
	}
	e.failQueued(ErrClosed)
	e.closeErr = e.engines.Close()
}

func (e *Executor) loop() (fault *SupervisorFault) {
	var current *task
	defer func() {
		if r := recover(); r != nil {
			fault = &SupervisorFault{Cause: recoveredError(r), Stack: string(debug.Stack())}
			if current != nil {
				current.fail(ErrSupervisorRestart)
			}
		}
	}()

	for {
		t, err := e.queue.Take()
		if err != nil {
			return nil
		}
		current = t
		if e.beforeTask != nil {
			e.beforeTask(t)
		}
		e.runTask(t)
		current = nil
	}
}

// runTask runs one task under its own recover so a panicking task only fails
// its own future.
func (e *Executor) runTask(t *task) {
	ctx, cancel := context.WithCancel(context.Background())
	e.running.Store(&runningTask{id: t.id, name: t.name, cancel: cancel})
	defer func() {
		e.running.Store(nil)
		cancel()
	}()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked", slogx.Task(t.id), slog.String("name", t.name), slogx.Recovered(r), slog.String("stack", string(debug.Stack())))
			t.fail(panicError(e.kind(), r))
		}
	}()
	t.run(ctx)
}
