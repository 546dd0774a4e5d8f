package luatrace

import (
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/traceview/internal/trace"
)

// Heap object types for tables.
const (
	TypeList = "list"
	TypeDict = "dict"
)

// formatter renders Lua values for one snapshot.
type formatter struct {
	heap *trace.Heap
}

func newFormatter() *formatter {
	return &formatter{heap: trace.NewHeap()}
}

// value renders v as a primitive or, for tables, a heap reference.
func (f *formatter) value(v lua.LValue) trace.Value {
	switch v := v.(type) {
	case *lua.LTable:
		return f.table(v)
	case lua.LString:
		return trace.Primitive(strconv.Quote(string(v)))
	case lua.LNumber, lua.LBool:
		return trace.Primitive(v.String())
	case *lua.LFunction:
		if v.IsG || v.Proto == nil {
			return trace.Primitive("function builtin")
		}
		return trace.Primitive(fmt.Sprintf("function %s:%d", v.Proto.SourceName, v.Proto.LineDefined))
	case *lua.LNilType:
		return trace.Primitive("nil")
	default:
		return trace.Primitive(v.Type().String())
	}
}

// table interns tb. The table pointer is its identity, so a table reachable
// twice is stored once and a table containing itself terminates.
func (f *formatter) table(tb *lua.LTable) trace.Value {
	n, list := sequenceLen(tb)
	if list {
		return f.heap.Intern(tb, TypeList, func() trace.HeapObject {
			items := make([]trace.Value, 0, n)
			for i := 1; i <= n; i++ {
				items = append(items, f.value(tb.RawGetInt(i)))
			}
			return trace.Sequence(items...)
		})
	}
	return f.heap.Intern(tb, TypeDict, func() trace.HeapObject {
		fields := make(map[string]trace.Value)
		tb.ForEach(func(k, v lua.LValue) {
			fields[keyText(k)] = f.value(v)
		})
		return trace.Mapping(fields)
	})
}

// sequenceLen reports whether the keys of tb are exactly 1..n for some n > 0.
func sequenceLen(tb *lua.LTable) (int, bool) {
	count, maxKey := 0, 0
	list := true
	tb.ForEach(func(k, _ lua.LValue) {
		count++
		if !list {
			return
		}
		num, ok := k.(lua.LNumber)
		if !ok || float64(num) != math.Trunc(float64(num)) || num < 1 || float64(num) > math.MaxInt32 {
			list = false
			return
		}
		if int(num) > maxKey {
			maxKey = int(num)
		}
	})
	if !list || count == 0 || maxKey != count {
		return 0, false
	}
	return count, true
}

// keyText renders a dict key. String keys are quoted like string values so
// that 1 and "1" stay distinct entries.
func keyText(k lua.LValue) string {
	if s, ok := k.(lua.LString); ok {
		return strconv.Quote(string(s))
	}
	return k.String()
}
