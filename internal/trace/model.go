package trace

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/vmihailenco/msgpack/v5"
)

// Error types carried by terminal error events.
const (
	ErrorCompilation = "CompilationError"
	ErrorSyntax      = "SyntaxError"
	ErrorRuntime     = "RuntimeError"
	ErrorProtocol    = "ProtocolError"
	ErrorResource    = "ResourceError"
	ErrorTimeout     = "TimeoutError"
)

// Value is the wire form of a variable: a primitive rendered as text, or a
// reference into the heap of the snapshot that contains it.
type Value struct {
	text  string
	ref   int
	isRef bool
}

// Primitive returns a value holding the textual form of a primitive.
func Primitive(text string) Value {
	return Value{text: text}
}

// Reference returns a value pointing at heap entry id.
func Reference(id int) Value {
	return Value{ref: id, isRef: true}
}

// IsRef reports whether v points into the heap.
func (v Value) IsRef() bool { return v.isRef }

// Text returns the textual form of a primitive. It is empty for references.
func (v Value) Text() string { return v.text }

// Ref returns the heap id of a reference. It is zero for primitives.
func (v Value) Ref() int { return v.ref }

// MarshalJSON encodes v as {"value": text} or {"ref": id}.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isRef {
		return json.Marshal(struct {
			Ref int `json:"ref"`
		}{v.ref})
	}
	return json.Marshal(struct {
		Value string `json:"value"`
	}{v.text})
}

// EncodeMsgpack mirrors MarshalJSON.
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if v.isRef {
		if err := enc.EncodeString("ref"); err != nil {
			return err
		}
		return enc.EncodeInt(int64(v.ref))
	}
	if err := enc.EncodeString("value"); err != nil {
		return err
	}
	return enc.EncodeString(v.text)
}

// HeapObject is a compound value stored in a snapshot's heap. It holds either
// an ordered sequence (Items) or a mapping (Fields).
type HeapObject struct {
	Type   string
	Items  []Value
	Fields map[string]Value
}

// Sequence returns a heap object holding items in order.
func Sequence(items ...Value) HeapObject {
	if items == nil {
		items = []Value{}
	}
	return HeapObject{Items: items}
}

// Mapping returns a heap object holding fields.
func Mapping(fields map[string]Value) HeapObject {
	if fields == nil {
		fields = map[string]Value{}
	}
	return HeapObject{Fields: fields}
}

// IsMapping reports whether the object is a mapping rather than a sequence.
func (o HeapObject) IsMapping() bool { return o.Fields != nil }

// MarshalJSON encodes the object as {"type": ..., "value": [...] | {...}}.
func (o HeapObject) MarshalJSON() ([]byte, error) {
	var value any = o.Items
	if o.IsMapping() {
		value = o.Fields
	} else if o.Items == nil {
		value = []Value{}
	}
	return json.Marshal(struct {
		Type  string `json:"type"`
		Value any    `json:"value"`
	}{o.Type, value})
}

// EncodeMsgpack mirrors MarshalJSON. Mapping keys are written in sorted order
// so equal traces encode to equal bytes.
func (o HeapObject) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(2); err != nil {
		return err
	}
	if err := enc.EncodeString("type"); err != nil {
		return err
	}
	if err := enc.EncodeString(o.Type); err != nil {
		return err
	}
	if err := enc.EncodeString("value"); err != nil {
		return err
	}
	if !o.IsMapping() {
		if err := enc.EncodeArrayLen(len(o.Items)); err != nil {
			return err
		}
		for _, item := range o.Items {
			if err := item.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	}

	keys := make([]string, 0, len(o.Fields))
	for k := range o.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if err := enc.EncodeMapLen(len(keys)); err != nil {
		return err
	}
	for _, k := range keys {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := o.Fields[k].EncodeMsgpack(enc); err != nil {
			return err
		}
	}
	return nil
}

// Frame is one call frame of a snapshot's stack.
type Frame struct {
	FuncName string           `json:"func_name" msgpack:"func_name"`
	Line     int              `json:"lineno" msgpack:"lineno"`
	Locals   map[string]Value `json:"locals" msgpack:"locals"`
}

// Snapshot is the observable program state at one step boundary. Stack is
// ordered outermost first; the last frame is the one executing.
type Snapshot struct {
	Line  int                `json:"line_number" msgpack:"line_number"`
	Stack []Frame            `json:"stack" msgpack:"stack"`
	Heap  map[int]HeapObject `json:"heap" msgpack:"heap"`
}

// EncodeMsgpack mirrors the JSON form, including string heap keys, so that
// both encodings decode to the same generic structure.
func (s Snapshot) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(3); err != nil {
		return err
	}
	if err := enc.EncodeString("line_number"); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(s.Line)); err != nil {
		return err
	}
	if err := enc.EncodeString("stack"); err != nil {
		return err
	}
	if err := enc.Encode(s.Stack); err != nil {
		return err
	}
	if err := enc.EncodeString("heap"); err != nil {
		return err
	}

	ids := make([]int, 0, len(s.Heap))
	for id := range s.Heap {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	if err := enc.EncodeMapLen(len(ids)); err != nil {
		return err
	}
	for _, id := range ids {
		if err := enc.EncodeString(strconv.Itoa(id)); err != nil {
			return err
		}
		if err := s.Heap[id].EncodeMsgpack(enc); err != nil {
			return err
		}
	}
	return nil
}

// Top returns the executing frame, or nil for an empty stack.
func (s *Snapshot) Top() *Frame {
	if len(s.Stack) == 0 {
		return nil
	}
	return &s.Stack[len(s.Stack)-1]
}

// Event kinds.
const (
	EventError  = "error"
	EventOutput = "output"
)

// Event is a terminal pseudo-event appended after the snapshots. Its wire
// form carries only the keys of its kind.
type Event struct {
	Kind         string `json:"event" msgpack:"event"`
	Line         int    `json:"line_number" msgpack:"line_number"`
	ErrorType    string `json:"error_type,omitempty" msgpack:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty" msgpack:"error_message,omitempty"`
	Data         string `json:"data,omitempty" msgpack:"data,omitempty"`
}

// errorWire is the wire form of an error event. line_number is always
// present; zero means the location is unknown.
type errorWire struct {
	Kind         string `json:"event" msgpack:"event"`
	Line         int    `json:"line_number" msgpack:"line_number"`
	ErrorType    string `json:"error_type" msgpack:"error_type"`
	ErrorMessage string `json:"error_message" msgpack:"error_message"`
}

// compilationWire is the wire form of a CompilationError, which has no line.
type compilationWire struct {
	Kind         string `json:"event" msgpack:"event"`
	ErrorType    string `json:"error_type" msgpack:"error_type"`
	ErrorMessage string `json:"error_message" msgpack:"error_message"`
}

type outputWire struct {
	Kind string `json:"event" msgpack:"event"`
	Data string `json:"data" msgpack:"data"`
}

func (e Event) wire() any {
	switch {
	case e.Kind == EventOutput:
		return outputWire{e.Kind, e.Data}
	case e.ErrorType == ErrorCompilation:
		return compilationWire{e.Kind, e.ErrorType, e.ErrorMessage}
	default:
		return errorWire{e.Kind, e.Line, e.ErrorType, e.ErrorMessage}
	}
}

// MarshalJSON encodes the event with exactly the keys of its kind.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.wire())
}

// EncodeMsgpack mirrors MarshalJSON.
func (e Event) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(e.wire())
}

// ErrorEvent returns an error event raised at line. A line of zero means the
// location is unknown.
func ErrorEvent(line int, errorType, message string) Event {
	return Event{Kind: EventError, Line: line, ErrorType: errorType, ErrorMessage: message}
}

// CompilationErrorEvent returns the event for a toolchain rejection.
func CompilationErrorEvent(diagnostics string) Event {
	return Event{Kind: EventError, ErrorType: ErrorCompilation, ErrorMessage: diagnostics}
}

// OutputEvent returns the event carrying captured console output.
func OutputEvent(data string) Event {
	return Event{Kind: EventOutput, Data: data}
}

// IsError reports whether the event is an error event.
func (e Event) IsError() bool { return e.Kind == EventError }
