package slogx

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestError(t *testing.T) {
	attr := Error(errors.New("boom"))
	assert.Equal(t, "error", attr.Key)
	assert.Equal(t, "boom", attr.Value.String())

	assert.Equal(t, "", Error(nil).Value.String())
}

func TestEngineAndTask(t *testing.T) {
	assert.Equal(t, slog.String(KeyEngine, "lua"), Engine("lua"))

	id := uuid.New()
	attr := Task(id)
	assert.Equal(t, KeyTask, attr.Key)
	assert.Equal(t, id.String(), attr.Value.String())
}

func TestRecovered(t *testing.T) {
	assert.Equal(t, "error", Recovered(errors.New("x")).Key)
	attr := Recovered("kaboom")
	assert.Equal(t, "panic", attr.Key)
	assert.Equal(t, "kaboom", attr.Value.String())
}
