package luatrace

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// probeName is the global the instrumented chunk calls before each statement.
const probeName = "__traceview_step"

// State is a sandboxed Lua state owned by one trace request.
//
// gopher-lua's LState is not goroutine-safe. A State is created, used and
// closed by the goroutine that runs the request.
type State struct {
	L *lua.LState

	output   strings.Builder
	baseline map[string]bool
	closed   bool
}

// NewState creates a state with only the safe standard libraries opened. print
// and io.write are redirected into the state's output buffer.
func NewState() *State {
	L := lua.NewState(lua.Options{
		SkipOpenLibs: true,
	})
	s := &State{L: L}

	openSafeLibraries(L)
	s.install()
	return s
}

// openSafeLibraries opens only safe Lua standard libraries.
func openSafeLibraries(L *lua.LState) {
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
}

// install removes the loaders and replaces the output functions.
func (s *State) install() {
	for _, name := range []string{
		"dofile",
		"loadfile",
		"load",
		"loadstring",
		"require",
		"module",
	} {
		s.L.SetGlobal(name, lua.LNil)
	}

	s.L.SetGlobal("print", s.L.NewFunction(s.print))
	io := s.L.NewTable()
	s.L.SetField(io, "write", s.L.NewFunction(s.write))
	s.L.SetGlobal("io", io)
}

// print mirrors the base library's print.
func (s *State) print(L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		if i > 1 {
			s.output.WriteByte('\t')
		}
		s.output.WriteString(L.ToStringMeta(L.Get(i)).String())
	}
	s.output.WriteByte('\n')
	return 0
}

// write accepts strings and numbers only, like io.write.
func (s *State) write(L *lua.LState) int {
	top := L.GetTop()
	for i := 1; i <= top; i++ {
		switch v := L.Get(i).(type) {
		case lua.LString:
			s.output.WriteString(string(v))
		case lua.LNumber:
			s.output.WriteString(v.String())
		default:
			L.ArgError(i, "string expected, got "+v.Type().String())
		}
	}
	return 0
}

// SetProbe installs fn as the probe function.
func (s *State) SetProbe(fn lua.LGFunction) {
	s.L.SetGlobal(probeName, s.L.NewFunction(fn))
}

// Seal records the current globals. Globals added after Seal are the
// program's own.
func (s *State) Seal() {
	s.baseline = make(map[string]bool)
	s.L.G.Global.ForEach(func(k, _ lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			s.baseline[string(ks)] = true
		}
	})
}

// UserGlobals calls fn for every global the program defined.
func (s *State) UserGlobals(fn func(name string, v lua.LValue)) {
	s.L.G.Global.ForEach(func(k, v lua.LValue) {
		ks, ok := k.(lua.LString)
		if !ok || s.baseline[string(ks)] || reserved(string(ks)) {
			return
		}
		fn(string(ks), v)
	})
}

// Output returns everything printed so far.
func (s *State) Output() string {
	return s.output.String()
}

// Run executes a compiled chunk under ctx. Cancelling ctx stops the chunk at
// its next instruction.
func (s *State) Run(ctx context.Context, proto *lua.FunctionProto) error {
	if s.closed {
		return ErrStateClosed
	}
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	return s.doWithRecovery(func() error {
		s.L.Push(s.L.NewFunctionFromProto(proto))
		return s.L.PCall(0, lua.MultRet, nil)
	})
}

// doWithRecovery executes a function with panic recovery.
func (s *State) doWithRecovery(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// Close releases the Lua state. It is safe to call more than once.
func (s *State) Close() {
	if s.closed {
		return
	}
	s.L.Close()
	s.closed = true
}

// reserved reports whether a variable name is internal: the probe and other
// double-underscore names, and Lua's own "(for index)" style slots.
func reserved(name string) bool {
	return strings.HasPrefix(name, "__") || strings.HasPrefix(name, "(")
}
