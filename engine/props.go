package engine

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/casualjim/polyscript/pkg/jsonx"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// HostProperties is the AsPropertyMap fallback for values that are not objects of the
// engine being asked. Go maps with string keys are supported in sorted key order and
// structs in their JSON field order; everything else is ErrNotSupported.
func HostProperties(v Value) (*orderedmap.OrderedMap[string, Value], error) {
	if v.IsCallable() {
		return nil, fmt.Errorf("properties of a function: %w", ErrNotSupported)
	}
	data := v.Interface()
	rv := reflect.Indirect(reflect.ValueOf(data))
	if data == nil || !rv.IsValid() {
		return nil, fmt.Errorf("properties of %s value %T: %w", v.Kind(), data, ErrNotSupported)
	}

	switch {
	case rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String:
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)

		props := orderedmap.New[string, Value]()
		for _, k := range keys {
			props.Set(k, FromHost(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()))
		}
		return props, nil
	case rv.Kind() == reflect.Struct:
		fields, err := jsonx.Fields(data)
		if err != nil {
			return nil, fmt.Errorf("properties of %T: %w", data, err)
		}
		props := orderedmap.New[string, Value]()
		for _, f := range fields {
			props.Set(f.Key, FromHost(f.Value))
		}
		return props, nil
	default:
		return nil, fmt.Errorf("properties of %s value %T: %w", v.Kind(), data, ErrNotSupported)
	}
}
