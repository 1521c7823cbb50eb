package events

import (
	"context"
	"sync"
)

type recordingHook struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func newRecordingHook() *recordingHook {
	return &recordingHook{notify: make(chan struct{}, 100)}
}

func (r *recordingHook) record(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recordingHook) recorded() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recordingHook) OnOutput(_ context.Context, e Output)                   { r.record(e) }
func (r *recordingHook) OnCalls(_ context.Context, e Calls)                     { r.record(e) }
func (r *recordingHook) OnEngineChanged(_ context.Context, e EngineChanged)     { r.record(e) }
func (r *recordingHook) OnTaskFailed(_ context.Context, e TaskFailed)           { r.record(e) }
func (r *recordingHook) OnSupervisorFault(_ context.Context, e SupervisorFault) { r.record(e) }

type blockingHook struct {
	*recordingHook
	release chan struct{}
}

func (b *blockingHook) OnOutput(ctx context.Context, e Output) {
	<-b.release
	b.recordingHook.OnOutput(ctx, e)
}
