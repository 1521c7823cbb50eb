package engine

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/casualjim/polyscript/pkg/uuidx"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CapturedCall is one recorded invocation of a shim function, with every argument
// already converted to its display string.
type CapturedCall struct {
	Name       string                                `json:"name"`
	Properties *orderedmap.OrderedMap[string, string] `json:"properties"`
}

// NewCapturedCall creates a call with no properties.
func NewCapturedCall(name string) CapturedCall {
	return CapturedCall{Name: name, Properties: orderedmap.New[string, string]()}
}

// Get returns a property value.
func (c CapturedCall) Get(key string) (string, bool) {
	if c.Properties == nil {
		return "", false
	}
	return c.Properties.Get(key)
}

// Keys returns the property names in the order they were captured.
func (c CapturedCall) Keys() []string {
	if c.Properties == nil {
		return nil
	}
	keys := make([]string, 0, c.Properties.Len())
	for pair := c.Properties.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Map returns the properties as a plain map; order is lost.
func (c CapturedCall) Map() map[string]string {
	out := make(map[string]string)
	if c.Properties == nil {
		return out
	}
	for pair := c.Properties.Oldest(); pair != nil; pair = pair.Next() {
		out[pair.Key] = pair.Value
	}
	return out
}

func (c CapturedCall) String() string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	sb.WriteByte('{')
	for i, k := range c.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		v, _ := c.Get(k)
		fmt.Fprintf(&sb, "%s=%s", k, v)
	}
	sb.WriteByte('}')
	return sb.String()
}

// Recorder is the capture sink of one EvalWithCallbackFunctions call. Each recorder
// gets its own global name so concurrent or nested captures never share a sink.
type Recorder struct {
	sinkName string
	mu       sync.Mutex
	calls    []CapturedCall
}

func NewRecorder() *Recorder {
	return &Recorder{sinkName: "__capture_" + uuidx.Token()}
}

// SinkName is the global the shims forward to.
func (r *Recorder) SinkName() string {
	return r.sinkName
}

// Record appends one call. props is owned by the recorder afterwards.
func (r *Recorder) Record(name string, props *orderedmap.OrderedMap[string, string]) {
	if props == nil {
		props = orderedmap.New[string, string]()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, CapturedCall{Name: name, Properties: props})
}

// Calls returns the recorded calls in invocation order; never nil.
func (r *Recorder) Calls() []CapturedCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CapturedCall, len(r.calls))
	copy(out, r.calls)
	return out
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CheckNames validates names for shim synthesis and returns them with duplicates
// removed, keeping the first occurrence.
func CheckNames(names []string) ([]string, error) {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !identifier.MatchString(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}
