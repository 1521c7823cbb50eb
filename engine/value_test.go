package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromHost(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind Kind
		want any
	}{
		{"nil", nil, Primitive, nil},
		{"int", 3, Primitive, int64(3)},
		{"uint8", uint8(7), Primitive, int64(7)},
		{"integral float", 2.0, Primitive, int64(2)},
		{"fraction", 2.5, Primitive, 2.5},
		{"float32", float32(1.5), Primitive, 1.5},
		{"string", "x", Primitive, "x"},
		{"bool", true, Primitive, true},
		{"slice", []int{1}, Host, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := FromHost(tt.in)
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.want, v.Interface())
		})
	}

	t.Run("values pass through", func(t *testing.T) {
		native := NewNative("origin", struct{}{}, map[string]any{"a": 1}, "[object]")
		assert.Equal(t, native, FromHost(native))
	})
}

func TestValue(t *testing.T) {
	assert.True(t, Nil.IsNil())
	assert.Equal(t, "nil", Nil.String())
	assert.Equal(t, "42", FromHost(42).String())
	assert.Equal(t, "0.25", FromHost(0.25).String())
	assert.Equal(t, "true", FromHost(true).String())

	native := NewNative("a", "raw", 4.0, "4")
	assert.Equal(t, Native, native.Kind())
	assert.Equal(t, int64(4), native.Interface())
	assert.Equal(t, "raw", native.Raw())
	assert.True(t, native.OwnedBy("a"))
	assert.False(t, native.OwnedBy("b"))
	assert.False(t, native.IsCallable())

	fn := NewFunction("a", "fn", "function f()")
	assert.True(t, fn.IsCallable())
	assert.Equal(t, "function f()", fn.String())
	assert.False(t, FromHost("x").OwnedBy(""))

	assert.Equal(t, "host", Host.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}

func TestNumber(t *testing.T) {
	assert.Equal(t, int64(10), Number(10))
	assert.Equal(t, 10.5, Number(10.5))
	assert.IsType(t, float64(0), Number(1e300))
}
