package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keysOf(t *testing.T, v Value) []string {
	t.Helper()
	props, err := HostProperties(v)
	require.NoError(t, err)
	var keys []string
	for pair := props.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func TestHostProperties(t *testing.T) {
	t.Run("maps in sorted order", func(t *testing.T) {
		assert.Equal(t, []string{"a", "b", "c"}, keysOf(t, FromHost(map[string]int{"c": 3, "a": 1, "b": 2})))
	})

	t.Run("structs in field order", func(t *testing.T) {
		type rect struct {
			Width  int    `json:"width"`
			Height int    `json:"height"`
			Label  string `json:"label,omitempty"`
		}
		v := FromHost(&rect{Width: 3, Height: 4})
		assert.Equal(t, []string{"width", "height"}, keysOf(t, v))

		props, err := HostProperties(v)
		require.NoError(t, err)
		w, _ := props.Get("width")
		assert.Equal(t, int64(3), w.Interface())
	})

	t.Run("unsupported", func(t *testing.T) {
		for _, v := range []Value{Nil, FromHost(1), FromHost([]int{1}), FromHost(map[int]int{1: 1}), NewFunction("x", nil, "f")} {
			_, err := HostProperties(v)
			assert.ErrorIs(t, err, ErrNotSupported, v.String())
		}
	})

	t.Run("nil pointer", func(t *testing.T) {
		type empty struct{}
		var p *empty
		_, err := HostProperties(FromHost(p))
		assert.ErrorIs(t, err, ErrNotSupported)
	})
}
