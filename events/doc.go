// Package events publishes what an executor does: console lines, captured calls,
// engine switches, failed tasks and supervisor faults.
//
// Every event has a JSON form tagged with a "type" field so events can cross
// process boundaries. Two brokers are provided: an in-process broker that fans out
// to subscriptions on their own goroutines, and a NATS broker that publishes the
// JSON form on a subject.
//
// Event hierarchy:
//   - Event: base interface
//     ├── Output: one console line written by an evaluation
//     ├── Calls: the calls captured by EvalWithCallbackFunctions
//     ├── EngineChanged: the active engine was switched
//     ├── TaskFailed: a task's future failed
//     └── SupervisorFault: the worker loop itself faulted and was restarted
//
// Subscribers implement Hook, which has one method per event type.
package events
