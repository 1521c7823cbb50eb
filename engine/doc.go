// Package engine defines the contract every scripting backend implements, and the
// values that cross it.
//
// Design decisions:
//   - One interface, many runtimes: backends live in sub-packages (javascript, lua)
//     and are selected by kind through a Registry.
//   - Tagged values: script results are a Value that is either a Primitive, a Host
//     value that came from Go, or a Native object owned by one runtime. Integral
//     numbers are normalized to int64 so results compare the same on every backend.
//   - Explicit output context: an Output is passed into every evaluation, backends
//     bind their print facilities to it instead of writing to the process streams.
//   - Callback capture: EvalWithCallbackFunctions injects one shim per requested name,
//     written in the backend's own syntax, that forwards to a Recorder scoped to the
//     call. The shims are removed again on every exit path.
//   - Namespace: variable bindings that must survive switching backends are kept in a
//     Namespace that is flushed into and synced out of the active engine.
//
// Values are only valid while the engine that produced them is alive and must only
// be touched from the goroutine that serializes access to that engine.
package engine
