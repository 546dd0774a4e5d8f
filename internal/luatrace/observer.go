package luatrace

import (
	"context"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/traceview/internal/governor"
	"github.com/dshills/traceview/internal/trace"
)

// mainFuncName names the outermost frame.
const mainFuncName = "<main>"

// maxDepth bounds the frame walk. gopher-lua's default call stack holds 256
// frames; tail calls can make GetStack report more levels than that.
const maxDepth = 1024

// observer is the probe function's receiver. It turns every probe call into
// one snapshot until the budget runs out, then halts the run.
type observer struct {
	state          *State
	chunk          string
	budget         *governor.Budget
	asm            *trace.Assembler
	halt           context.CancelCauseFunc
	captureGlobals bool
	halted         bool
}

// step is installed as the probe. Its only argument is the line about to run.
func (o *observer) step(L *lua.LState) int {
	line := L.CheckInt(1)
	if o.halted {
		return 0
	}
	if !o.budget.Take() {
		o.halted = true
		o.halt(ErrStepBudget)
		return 0
	}
	_ = o.asm.Append(o.snapshot(L, line))
	return 0
}

// luaFrame is a user frame found by the walk.
type luaFrame struct {
	dbg  *lua.Debug
	name string
	line int
	main bool
}

func (o *observer) snapshot(L *lua.LState, line int) trace.Snapshot {
	f := newFormatter()
	frames := o.frames(L)

	stack := make([]trace.Frame, 0, len(frames))
	for _, fr := range frames {
		locals := make(map[string]trace.Value)
		for n := 1; ; n++ {
			name, v := L.GetLocal(fr.dbg, n)
			if name == "" {
				break
			}
			if reserved(name) {
				continue
			}
			locals[name] = f.value(v)
		}
		if fr.main && o.captureGlobals {
			o.state.UserGlobals(func(name string, v lua.LValue) {
				if _, shadowed := locals[name]; !shadowed {
					locals[name] = f.value(v)
				}
			})
		}
		stack = append(stack, trace.Frame{FuncName: fr.name, Line: fr.line, Locals: locals})
	}
	if top := len(stack) - 1; top >= 0 {
		stack[top].Line = line
	}

	return trace.Snapshot{Line: line, Stack: stack, Heap: f.heap.Objects()}
}

// frames returns the user's frames, outermost first. Level 0 is the probe
// itself and is skipped. gopher-lua answers levels past a tail call with the
// main frame, so main is taken once, as the outermost frame.
func (o *observer) frames(L *lua.LState) []luaFrame {
	var (
		inner []luaFrame
		main  *luaFrame
	)
	for level := 1; level < maxDepth; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			break
		}
		if _, err := L.GetInfo("Sln", dbg, lua.LNil); err != nil {
			continue
		}
		if dbg.Source != o.chunk {
			continue
		}
		if dbg.What == "main" {
			if main == nil {
				main = &luaFrame{dbg: dbg, name: mainFuncName, line: dbg.CurrentLine, main: true}
			}
			continue
		}
		inner = append(inner, luaFrame{dbg: dbg, name: funcName(dbg), line: dbg.CurrentLine})
	}

	out := make([]luaFrame, 0, len(inner)+1)
	if main != nil {
		out = append(out, *main)
	}
	for i := len(inner) - 1; i >= 0; i-- {
		out = append(out, inner[i])
	}
	return out
}

// funcName returns the name the caller used. Anonymous functions and tail
// calls come back from gopher-lua as "<chunk:line>".
func funcName(dbg *lua.Debug) string {
	name := dbg.Name
	if name == "" || name == "?" {
		return "<anonymous>"
	}
	if strings.HasPrefix(name, "<") {
		return "<function " + strings.Trim(name, "<>") + ">"
	}
	return name
}
