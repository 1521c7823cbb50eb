package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/casualjim/polyscript"
	"github.com/casualjim/polyscript/engine/javascript"
	"github.com/casualjim/polyscript/engine/lua"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runREPL(t *testing.T, input string) string {
	t.Helper()
	exec, err := polyscript.New(
		polyscript.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		polyscript.WithEngine(javascript.Kind, javascript.Factory),
		polyscript.WithEngine(lua.Kind, lua.Factory),
		polyscript.WithStdout(io.Discard),
		polyscript.WithStderr(io.Discard),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = exec.Close() })

	var out bytes.Buffer
	require.NoError(t, newREPL(exec, strings.NewReader(input), &out).Run(context.Background()))
	return out.String()
}

func TestREPL(t *testing.T) {
	t.Run("evaluates and switches engines", func(t *testing.T) {
		out := runREPL(t, strings.Join([]string{
			"var greeting = 'hi'",
			"console.log(greeting + ' there')",
			":engine lua",
			"greeting .. '!'",
			":engine",
			":quit",
			"1+1",
		}, "\n"))

		assert.Contains(t, out, "hi there\n")
		assert.Contains(t, out, "hi!\n")
		assert.Contains(t, out, "lua\n")
		assert.NotContains(t, out, "2\n", "nothing runs after :quit")
	})

	t.Run("reports errors", func(t *testing.T) {
		out := runREPL(t, "throw new Error('boom')\n:engine cobol\n:nope\n")
		assert.Contains(t, out, "boom")
		assert.Contains(t, out, "cobol")
		assert.Contains(t, out, "unknown command :nope")
	})

	t.Run("captures calls", func(t *testing.T) {
		out := runREPL(t, ":capture rect,line rect({a: 1, b: 2}); line({a: 3})\n")
		assert.Contains(t, out, `"name": "rect"`)
		assert.Contains(t, out, `"name": "line"`)
		assert.Less(t, strings.Index(out, `"rect"`), strings.Index(out, `"line"`))
	})

	t.Run("inspects state", func(t *testing.T) {
		out := runREPL(t, "var x = 5\n:get x\n:get y\n:engines\n:snapshot\n")
		assert.Contains(t, out, "5\n")
		assert.Contains(t, out, "undefined")
		assert.Contains(t, out, "javascript lua\n")
		assert.Contains(t, out, "Completed")
	})

	t.Run("ends with the input", func(t *testing.T) {
		out := runREPL(t, "")
		assert.Contains(t, out, "javascript")
	})
}
