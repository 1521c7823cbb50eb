package engine

import (
	"fmt"
	"math"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	// Primitive values are nil, bool, int64, float64 or string.
	Primitive Kind = iota
	// Host values are Go values that did not originate in a script.
	Host
	// Native values are objects owned by one script runtime (tables, objects, functions).
	Native
)

func (k Kind) String() string {
	switch k {
	case Primitive:
		return "primitive"
	case Host:
		return "host"
	case Native:
		return "native"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a script value in one of three shapes. The zero Value is the nil primitive.
type Value struct {
	kind     Kind
	data     any
	raw      any
	display  string
	callable bool
	origin   string
}

// Nil is the nil primitive.
var Nil = Value{}

// FromHost wraps a Go value. Primitive Go types become Primitive values with numbers
// normalized, anything else becomes a Host value.
func FromHost(v any) Value {
	if p, ok := normalize(v); ok {
		return Value{kind: Primitive, data: p}
	}
	if val, ok := v.(Value); ok {
		return val
	}
	return Value{kind: Host, data: v}
}

// NewNative wraps an object owned by the engine identified by origin. exported is
// the object's best Go representation and display its string form in that runtime.
func NewNative(origin string, raw, exported any, display string) Value {
	if p, ok := normalize(exported); ok {
		exported = p
	}
	return Value{kind: Native, data: exported, raw: raw, display: display, origin: origin}
}

// NewFunction wraps a callable owned by the engine identified by origin.
func NewFunction(origin string, raw any, display string) Value {
	return Value{kind: Native, raw: raw, display: display, callable: true, origin: origin}
}

func (v Value) Kind() Kind { return v.kind }

// Interface returns the value in host form: the primitive itself, the host value, or
// the exported form of a native object.
func (v Value) Interface() any { return v.data }

// Raw returns the runtime handle of a native value, nil otherwise.
func (v Value) Raw() any { return v.raw }

// Origin is the id of the engine that owns a native value.
func (v Value) Origin() string { return v.origin }

func (v Value) IsNil() bool { return v.kind == Primitive && v.data == nil }

func (v Value) IsCallable() bool { return v.callable }

// OwnedBy reports whether v is a native value of the engine with the given id.
func (v Value) OwnedBy(id string) bool {
	return v.kind == Native && v.origin != "" && v.origin == id
}

// String renders the value the way the owning runtime would display it. Primitives
// and host values fall back to Go formatting.
func (v Value) String() string {
	if v.kind == Native && v.display != "" {
		return v.display
	}
	switch d := v.data.(type) {
	case nil:
		return "nil"
	case string:
		return d
	case int64:
		return strconv.FormatInt(d, 10)
	case float64:
		return strconv.FormatFloat(d, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(d)
	default:
		return fmt.Sprint(d)
	}
}

// Number normalizes a float so that integral values are int64.
func Number(f float64) any {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

func normalize(v any) (any, bool) {
	switch n := v.(type) {
	case nil:
		return nil, true
	case bool, string:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return Number(float64(n)), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return Number(float64(n)), true
	case float32:
		return Number(float64(n)), true
	case float64:
		return Number(n), true
	default:
		return nil, false
	}
}
