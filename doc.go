/*
Package polyscript runs scripts on interchangeable scripting engines behind a
single serializing executor.

A host submits work to an Executor and observes the results through futures. All
work runs on one worker goroutine in submission order, so the engines, which are
not safe for concurrent use, never see two callers at once.

# Basic Usage

	exec, err := polyscript.New(
		polyscript.WithEngine(javascript.Kind, javascript.Factory),
		polyscript.WithEngine(lua.Kind, lua.Factory),
	)
	if err != nil {
		// Handle error
	}
	defer exec.Close()

	var lines []string
	v, err := exec.Eval(`console.log("hi"); 1+1`, polyscript.Lines(&lines), nil).Get()
	// v.Interface() == int64(2), lines == []string{"hi"}

	exec.SetEngine(lua.Kind)
	calls, err := exec.EvalWithCallbackFunctions(
		"rect({a = 1, b = 2}); line({a = 3})",
		[]string{"rect", "line"}, nil, nil,
	).Get()
	// calls[0] is rect{a=1, b=2}, calls[1] is line{a=3}

# Architecture

The package is built around a few core pieces:

  - Executor: owns the task queue, the worker, the active engine and the variable
    namespace. A supervisor restarts the worker loop if it ever faults.
  - Future and Promise: single-assignment results. Continuations registered on a
    future are enqueued on the executor rather than run inline, so they are
    serialized with every other task.
  - Output capture: each evaluation installs a capture on the executor's standard
    output and error streams that only takes the writes made on behalf of that
    evaluation. Everything else passes through untouched.
  - Engines: backends implement engine.Engine. Values crossing the boundary are
    engine.Value, and the variable namespace is carried from one engine to the
    next when switching.

# Events

With WithEvents the executor publishes console lines, captured calls, engine
switches, failed tasks and supervisor faults on an events.Topic, either in
process or over NATS.

# Limitations

A task that never returns blocks the executor forever. Interrupt cancels the
running task's context; engines stop at their next check, but a script stuck
inside a host function only stops when that function returns.
*/
package polyscript
