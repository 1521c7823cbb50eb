package polyscript

import "github.com/google/uuid"

// Snapshot is a diagnostic view of an executor. Its fields are read without
// stopping the worker, so they may be mutually inconsistent.
type Snapshot struct {
	Engine    string    `json:"engine"`
	Engines   []string  `json:"engines"`
	Queued    int       `json:"queued"`
	Running   uuid.UUID `json:"running"`
	Task      string    `json:"task,omitempty"`
	Completed int64     `json:"completed"`
	Failed    int64     `json:"failed"`
	Restarts  int64     `json:"restarts"`
	Variables []string  `json:"variables"`
	Closed    bool      `json:"closed"`
}

// Snapshot returns the current diagnostic view. Variables are the namespace names
// as of the last sync.
func (e *Executor) Snapshot() Snapshot {
	s := Snapshot{
		Engines:   e.engines.Kinds(),
		Queued:    e.queue.Len(),
		Completed: e.completed.Load(),
		Failed:    e.failed.Load(),
		Restarts:  e.restarts.Load(),
		Closed:    e.closed.Load(),
	}
	if kind := e.activeKind.Load(); kind != nil {
		s.Engine = *kind
	}
	if r := e.running.Load(); r != nil {
		s.Running = r.id
		s.Task = r.name
	}
	if names := e.variables.Load(); names != nil {
		s.Variables = append([]string(nil), (*names)...)
	}
	return s
}
