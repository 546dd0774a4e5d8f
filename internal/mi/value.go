package mi

import (
	"strconv"

	"fortio.org/safecast"
)

// ValueKind identifies the shape of a Value.
type ValueKind int

const (
	// ValueNone is the zero Value, returned for absent fields.
	ValueNone ValueKind = iota
	ValueConst
	ValueTuple
	ValueList
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case ValueConst:
		return "const"
	case ValueTuple:
		return "tuple"
	case ValueList:
		return "list"
	default:
		return "none"
	}
}

// Result is a name=value pair.
type Result struct {
	Name  string
	Value Value
}

// Results is an ordered list of results. Names may repeat, as in the
// frame=...,frame=... entries of a stack listing.
type Results []Result

// Get returns the value of the first result called name.
func (rs Results) Get(name string) Value {
	for _, r := range rs {
		if r.Name == name {
			return r.Value
		}
	}
	return Value{}
}

// Has reports whether a result called name is present.
func (rs Results) Has(name string) bool {
	for _, r := range rs {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Value is an MI value: a constant (decoded c-string), a tuple of results, or
// a list holding either values or results.
type Value struct {
	Kind ValueKind

	// Const holds the decoded text of a constant.
	Const string

	// Fields holds the results of a tuple, or of a list of results.
	Fields Results

	// Items holds the elements of a list of values.
	Items []Value
}

// ConstValue returns a constant value.
func ConstValue(s string) Value {
	return Value{Kind: ValueConst, Const: s}
}

// IsZero reports whether v is absent.
func (v Value) IsZero() bool { return v.Kind == ValueNone }

// String returns the constant text, or "" when v is not a constant.
func (v Value) String() string {
	if v.Kind != ValueConst {
		return ""
	}
	return v.Const
}

// Int returns the constant parsed as a decimal integer, or 0.
func (v Value) Int() int {
	n, _ := v.IntOK()
	return n
}

// IntOK returns the constant parsed as a decimal integer and whether that
// succeeded. Values that do not fit an int are rejected.
func (v Value) IntOK() (int, bool) {
	if v.Kind != ValueConst {
		return 0, false
	}
	n64, err := strconv.ParseInt(v.Const, 10, 64)
	if err != nil {
		return 0, false
	}
	n, err := safecast.Conv[int](n64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Get returns the named field of a tuple or result list.
func (v Value) Get(name string) Value {
	return v.Fields.Get(name)
}

// Path walks nested fields, returning the zero Value at the first miss.
func (v Value) Path(names ...string) Value {
	cur := v
	for _, name := range names {
		cur = cur.Get(name)
		if cur.IsZero() {
			return Value{}
		}
	}
	return cur
}

// Elements returns the elements of a list. For a list of results it returns
// the result values in order, dropping the names.
func (v Value) Elements() []Value {
	if v.Kind != ValueList {
		return nil
	}
	if len(v.Items) > 0 {
		return v.Items
	}
	out := make([]Value, 0, len(v.Fields))
	for _, r := range v.Fields {
		out = append(out, r.Value)
	}
	return out
}

// Len returns the number of list elements or tuple fields.
func (v Value) Len() int {
	switch v.Kind {
	case ValueList:
		return len(v.Items) + len(v.Fields)
	case ValueTuple:
		return len(v.Fields)
	default:
		return 0
	}
}
