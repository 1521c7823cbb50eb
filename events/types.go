package events

import (
	"fmt"

	"github.com/casualjim/polyscript/engine"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	TypeOutput          = "output"
	TypeCalls           = "calls"
	TypeEngineChanged   = "engine_changed"
	TypeTaskFailed      = "task_failed"
	TypeSupervisorFault = "supervisor_fault"
)

var (
	outputJSON          = []byte(`{"type":"output"}`)
	callsJSON           = []byte(`{"type":"calls"}`)
	engineChangedJSON   = []byte(`{"type":"engine_changed"}`)
	taskFailedJSON      = []byte(`{"type":"task_failed"}`)
	supervisorFaultJSON = []byte(`{"type":"supervisor_fault"}`)
)

type Event interface {
	executionEvent()
}

// Output is one console line produced by a task.
type Output struct {
	TaskID    uuid.UUID       `json:"task_id"`
	Engine    string          `json:"engine"`
	Stream    string          `json:"stream"`
	Line      string          `json:"line"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Output) executionEvent() {}

func (o Output) MarshalJSON() ([]byte, error) {
	enc := newEncoder(outputJSON)
	enc.set("task_id", o.TaskID.String())
	enc.set("engine", o.Engine)
	enc.set("stream", o.Stream)
	enc.set("line", o.Line)
	enc.timestamp(o.Timestamp)
	return enc.bytes()
}

func (o *Output) UnmarshalJSON(data []byte) error {
	res, err := decode(data, TypeOutput)
	if err != nil {
		return err
	}
	if err := parseUUID(res, "task_id", &o.TaskID); err != nil {
		return err
	}
	line := res.Get("line")
	if !line.Exists() {
		return fmt.Errorf("missing required field 'line'")
	}
	o.Line = line.String()
	o.Engine = res.Get("engine").String()
	o.Stream = res.Get("stream").String()
	return parseTimestamp(res, &o.Timestamp)
}

// Calls carries the calls one EvalWithCallbackFunctions task captured.
type Calls struct {
	TaskID    uuid.UUID             `json:"task_id"`
	Engine    string                `json:"engine"`
	Calls     []engine.CapturedCall `json:"calls"`
	Timestamp strfmt.DateTime       `json:"timestamp,omitempty"`
}

func (Calls) executionEvent() {}

func (c Calls) MarshalJSON() ([]byte, error) {
	enc := newEncoder(callsJSON)
	enc.set("task_id", c.TaskID.String())
	enc.set("engine", c.Engine)
	calls := c.Calls
	if calls == nil {
		calls = []engine.CapturedCall{}
	}
	callsBytes, err := json.Marshal(calls)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal calls: %w", err)
	}
	enc.setRaw("calls", callsBytes)
	enc.timestamp(c.Timestamp)
	return enc.bytes()
}

func (c *Calls) UnmarshalJSON(data []byte) error {
	res, err := decode(data, TypeCalls)
	if err != nil {
		return err
	}
	if err := parseUUID(res, "task_id", &c.TaskID); err != nil {
		return err
	}
	c.Engine = res.Get("engine").String()
	calls := res.Get("calls")
	if !calls.Exists() {
		return fmt.Errorf("missing required field 'calls'")
	}
	if err := json.Unmarshal([]byte(calls.Raw), &c.Calls); err != nil {
		return fmt.Errorf("invalid calls: %w", err)
	}
	return parseTimestamp(res, &c.Timestamp)
}

// EngineChanged is published after the active engine was switched.
type EngineChanged struct {
	TaskID    uuid.UUID       `json:"task_id"`
	From      string          `json:"from,omitempty"`
	To        string          `json:"to"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (EngineChanged) executionEvent() {}

func (e EngineChanged) MarshalJSON() ([]byte, error) {
	enc := newEncoder(engineChangedJSON)
	enc.set("task_id", e.TaskID.String())
	if e.From != "" {
		enc.set("from", e.From)
	}
	enc.set("to", e.To)
	enc.timestamp(e.Timestamp)
	return enc.bytes()
}

func (e *EngineChanged) UnmarshalJSON(data []byte) error {
	res, err := decode(data, TypeEngineChanged)
	if err != nil {
		return err
	}
	if err := parseUUID(res, "task_id", &e.TaskID); err != nil {
		return err
	}
	to := res.Get("to")
	if !to.Exists() {
		return fmt.Errorf("missing required field 'to'")
	}
	e.To = to.String()
	e.From = res.Get("from").String()
	return parseTimestamp(res, &e.Timestamp)
}

// TaskFailed is published when a task's future failed.
type TaskFailed struct {
	TaskID    uuid.UUID       `json:"task_id"`
	Engine    string          `json:"engine,omitempty"`
	Error     string          `json:"error"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (TaskFailed) executionEvent() {}

func (t TaskFailed) MarshalJSON() ([]byte, error) {
	enc := newEncoder(taskFailedJSON)
	enc.set("task_id", t.TaskID.String())
	if t.Engine != "" {
		enc.set("engine", t.Engine)
	}
	enc.set("error", t.Error)
	enc.timestamp(t.Timestamp)
	return enc.bytes()
}

func (t *TaskFailed) UnmarshalJSON(data []byte) error {
	res, err := decode(data, TypeTaskFailed)
	if err != nil {
		return err
	}
	if err := parseUUID(res, "task_id", &t.TaskID); err != nil {
		return err
	}
	msg := res.Get("error")
	if !msg.Exists() {
		return fmt.Errorf("missing required field 'error'")
	}
	t.Error = msg.String()
	t.Engine = res.Get("engine").String()
	return parseTimestamp(res, &t.Timestamp)
}

// SupervisorFault is published when the worker loop faulted outside of any task.
// Pending is the number of queued tasks that were failed because of it.
type SupervisorFault struct {
	Error     string          `json:"error"`
	Stack     string          `json:"stack,omitempty"`
	Pending   int             `json:"pending"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (SupervisorFault) executionEvent() {}

func (s SupervisorFault) MarshalJSON() ([]byte, error) {
	enc := newEncoder(supervisorFaultJSON)
	enc.set("error", s.Error)
	if s.Stack != "" {
		enc.set("stack", s.Stack)
	}
	enc.set("pending", s.Pending)
	enc.timestamp(s.Timestamp)
	return enc.bytes()
}

func (s *SupervisorFault) UnmarshalJSON(data []byte) error {
	res, err := decode(data, TypeSupervisorFault)
	if err != nil {
		return err
	}
	msg := res.Get("error")
	if !msg.Exists() {
		return fmt.Errorf("missing required field 'error'")
	}
	s.Error = msg.String()
	s.Stack = res.Get("stack").String()
	s.Pending = int(res.Get("pending").Int())
	return parseTimestamp(res, &s.Timestamp)
}

// ToJSON encodes an event with its type marker.
func ToJSON(event Event) ([]byte, error) {
	if event == nil {
		return nil, fmt.Errorf("event is required")
	}
	return json.Marshal(event)
}

// FromJSON decodes an event produced by ToJSON.
func FromJSON(data []byte) (Event, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json: %s", data)
	}
	switch typ := gjson.GetBytes(data, "type").String(); typ {
	case TypeOutput:
		var e Output
		err := e.UnmarshalJSON(data)
		return e, err
	case TypeCalls:
		var e Calls
		err := e.UnmarshalJSON(data)
		return e, err
	case TypeEngineChanged:
		var e EngineChanged
		err := e.UnmarshalJSON(data)
		return e, err
	case TypeTaskFailed:
		var e TaskFailed
		err := e.UnmarshalJSON(data)
		return e, err
	case TypeSupervisorFault:
		var e SupervisorFault
		err := e.UnmarshalJSON(data)
		return e, err
	default:
		return nil, fmt.Errorf("unknown event type %q", typ)
	}
}

type encoder struct {
	buf []byte
	err error
}

func newEncoder(marker []byte) *encoder {
	buf := make([]byte, len(marker))
	copy(buf, marker)
	return &encoder{buf: buf}
}

func (e *encoder) set(path string, value any) {
	if e.err != nil {
		return
	}
	e.buf, e.err = sjson.SetBytes(e.buf, path, value)
}

func (e *encoder) setRaw(path string, raw []byte) {
	if e.err != nil {
		return
	}
	e.buf, e.err = sjson.SetRawBytes(e.buf, path, raw)
}

func (e *encoder) timestamp(ts strfmt.DateTime) {
	if !ts.IsZero() {
		e.set("timestamp", ts.String())
	}
}

func (e *encoder) bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

func decode(data []byte, expected string) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("invalid json: %s", data)
	}
	res := gjson.ParseBytes(data)
	if typ := res.Get("type"); !typ.Exists() || typ.String() != expected {
		return gjson.Result{}, fmt.Errorf("missing or invalid type, expected '%s'", expected)
	}
	return res, nil
}

func parseUUID(res gjson.Result, field string, dst *uuid.UUID) error {
	v := res.Get(field)
	if !v.Exists() {
		return fmt.Errorf("missing required field '%s'", field)
	}
	if err := dst.UnmarshalText([]byte(v.String())); err != nil {
		return fmt.Errorf("invalid %s: %w", field, err)
	}
	return nil
}

func parseTimestamp(res gjson.Result, dst *strfmt.DateTime) error {
	ts := res.Get("timestamp")
	if !ts.Exists() {
		return nil
	}
	if err := dst.UnmarshalText([]byte(ts.String())); err != nil {
		return fmt.Errorf("invalid timestamp: %w", err)
	}
	return nil
}
