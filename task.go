package polyscript

import (
	"context"

	"github.com/google/uuid"
)

// task is one unit of work for the worker. run resolves the task's promise; fail
// resolves it with an error when the task never gets to run.
type task struct {
	id   uuid.UUID
	name string
	run  func(ctx context.Context)
	fail func(err error)
}

type runningTask struct {
	id     uuid.UUID
	name   string
	cancel context.CancelFunc
}
