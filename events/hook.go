package events

import (
	"context"
	"log/slog"

	"github.com/casualjim/polyscript/pkg/slogx"
)

// Hook receives execution events, one method per event type. There is no base
// implementation to embed; implementations decide about every event explicitly.
type Hook interface {
	OnOutput(context.Context, Output)
	OnCalls(context.Context, Calls)
	OnEngineChanged(context.Context, EngineChanged)
	OnTaskFailed(context.Context, TaskFailed)
	OnSupervisorFault(context.Context, SupervisorFault)
}

// Dispatch calls the hook method matching the event's type.
func Dispatch(ctx context.Context, hook Hook, event Event) {
	switch e := event.(type) {
	case Output:
		hook.OnOutput(ctx, e)
	case Calls:
		hook.OnCalls(ctx, e)
	case EngineChanged:
		hook.OnEngineChanged(ctx, e)
	case TaskFailed:
		hook.OnTaskFailed(ctx, e)
	case SupervisorFault:
		hook.OnSupervisorFault(ctx, e)
	default:
		slog.WarnContext(ctx, "dropping event of unknown type", slog.Any("event", event))
	}
}

// LoggingHook writes every event to logger, or to the default logger when nil.
func LoggingHook(logger *slog.Logger) Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingHook{logger: logger.With(slogx.LoggerName("events"))}
}

type loggingHook struct {
	logger *slog.Logger
}

func (h *loggingHook) OnOutput(ctx context.Context, e Output) {
	h.logger.DebugContext(ctx, "output", slogx.Task(e.TaskID), slogx.Engine(e.Engine), slog.String("stream", e.Stream), slog.String("line", e.Line))
}

func (h *loggingHook) OnCalls(ctx context.Context, e Calls) {
	h.logger.InfoContext(ctx, "calls captured", slogx.Task(e.TaskID), slogx.Engine(e.Engine), slog.Int("count", len(e.Calls)))
}

func (h *loggingHook) OnEngineChanged(ctx context.Context, e EngineChanged) {
	h.logger.InfoContext(ctx, "engine changed", slogx.Task(e.TaskID), slog.String("from", e.From), slog.String("to", e.To))
}

func (h *loggingHook) OnTaskFailed(ctx context.Context, e TaskFailed) {
	h.logger.WarnContext(ctx, "task failed", slogx.Task(e.TaskID), slogx.Engine(e.Engine), slog.String("error", e.Error))
}

func (h *loggingHook) OnSupervisorFault(ctx context.Context, e SupervisorFault) {
	h.logger.ErrorContext(ctx, "supervisor fault", slog.String("error", e.Error), slog.Int("pending", e.Pending), slog.String("stack", e.Stack))
}
