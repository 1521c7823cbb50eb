package polyscript

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/casualjim/polyscript/engine"
	"github.com/casualjim/polyscript/events"
	"github.com/fogfish/opts"
)

type engineRegistration struct {
	kind    string
	factory engine.Factory
}

var (
	// WithLogger sets the logger for the executor's own diagnostics.
	WithLogger = opts.ForName[Executor, *slog.Logger]("logger")

	// WithDefaultEngine selects the engine activated by New. It defaults to the
	// first engine registered.
	WithDefaultEngine = opts.ForName[Executor, string]("defaultKind")

	// WithEvents publishes execution events on the given topic.
	WithEvents = opts.ForName[Executor, events.Topic]("events")

	// WithUnhandledFailure replaces the handler for futures that fail while nothing
	// observes their failure. A caller waiting in Get or Await counts as observing.
	// While the executor is open the handler runs on the worker. The default handler
	// logs the error.
	WithUnhandledFailure = opts.ForName[Executor, func(error)]("onUnhandled")
)

// WithEngine registers a backend under kind. Engines are registered in option order.
func WithEngine(kind string, factory engine.Factory) opts.Option[Executor] {
	return opts.Type[Executor](func(e *Executor) error {
		if kind == "" {
			return fmt.Errorf("engine kind is required")
		}
		e.registrations = append(e.registrations, engineRegistration{kind: kind, factory: factory})
		return nil
	})
}

// WithStdout sets the writer that receives output nobody captured. It defaults to
// os.Stdout.
func WithStdout(w io.Writer) opts.Option[Executor] {
	return opts.Type[Executor](func(e *Executor) error {
		e.baseStdout = w
		return nil
	})
}

// WithStderr sets the writer that receives error output nobody captured. It
// defaults to os.Stderr.
func WithStderr(w io.Writer) opts.Option[Executor] {
	return opts.Type[Executor](func(e *Executor) error {
		e.baseStderr = w
		return nil
	})
}
