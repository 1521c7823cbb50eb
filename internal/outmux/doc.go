// Package outmux splits a shared output channel between concurrent writers.
//
// A Stream stands in for a process-wide output channel such as os.Stdout. Anyone may
// write to it. An evaluation that wants its console output as lines installs a
// capture for an owner id and hands the owner-tagged writer returned by
// Stream.Writer to the code it runs:
//
//	capture := stdout.Install(taskID, func(line string) { ... })
//	defer capture.Close()
//	run(stdout.Writer(taskID))
//	capture.Close()
//	capture.WaitUntilDrained()
//
// Writes tagged with the capture's owner are split into lines and delivered to the
// callback; untagged writes and writes tagged with any other owner pass through
// untouched to whatever writer was installed before. Line boundaries are '\n',
// '\r' is dropped and a trailing partial line is delivered when the capture closes.
package outmux
