package jsonx

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Field is one member of a JSON object.
type Field struct {
	Key   string
	Value any
}

// Fields converts val to its JSON object form and returns the members in encoding
// order, which for structs is declaration order. Nested objects and arrays are
// returned as map[string]any and []any; numbers as float64.
func Fields(val any) ([]Field, error) {
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(b)
	if !doc.IsObject() {
		return nil, fmt.Errorf("jsonx: %T does not encode to an object", val)
	}

	var fields []Field
	doc.ForEach(func(key, value gjson.Result) bool {
		fields = append(fields, Field{Key: key.String(), Value: value.Value()})
		return true
	})
	return fields, nil
}
