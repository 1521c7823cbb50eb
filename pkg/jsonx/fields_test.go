package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields(t *testing.T) {
	t.Run("struct keeps declaration order", func(t *testing.T) {
		got, err := Fields(struct {
			Width  int      `json:"width"`
			Height int      `json:"height"`
			Label  string   `json:"label"`
			Tags   []string `json:"tags"`
		}{Width: 3, Height: 4, Label: "box", Tags: []string{"a"}})
		require.NoError(t, err)
		assert.Equal(t, []Field{
			{Key: "width", Value: float64(3)},
			{Key: "height", Value: float64(4)},
			{Key: "label", Value: "box"},
			{Key: "tags", Value: []any{"a"}},
		}, got)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := Fields([]int{1})
		assert.Error(t, err)
	})

	t.Run("cannot encode", func(t *testing.T) {
		_, err := Fields(make(chan int))
		assert.Error(t, err)
	})
}
