package polyscript

// Sink receives the console output of one evaluation, one line per call without
// the trailing newline. Sinks are called from a delivery goroutine, in order, and
// all calls for an evaluation have returned before its future resolves. A nil Sink
// discards the output.
type Sink func(line string)

// Lines returns a Sink appending to *dst. It is meant for tests and simple hosts
// that only read dst after the future resolved.
func Lines(dst *[]string) Sink {
	return func(line string) {
		*dst = append(*dst, line)
	}
}
