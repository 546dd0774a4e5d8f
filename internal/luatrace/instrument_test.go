package luatrace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/gopher-lua/ast"
)

func probeLines(stmts []ast.Stmt) []int {
	var out []int
	for _, s := range stmts {
		call, ok := s.(*ast.FuncCallStmt)
		if !ok {
			continue
		}
		fn, ok := call.Expr.(*ast.FuncCallExpr)
		if !ok {
			continue
		}
		if id, ok := fn.Func.(*ast.IdentExpr); ok && id.Value == probeName {
			out = append(out, s.Line())
		}
	}
	return out
}

func TestInstrumentTopLevel(t *testing.T) {
	chunk, err := Instrument("local a = 1 local b = 2\nlocal c = 3\n\nprint(a)\n", "t")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 4}, probeLines(chunk), "statements sharing a line share a probe")
	assert.Len(t, chunk, 7)
}

func TestInstrumentLoops(t *testing.T) {
	chunk, err := Instrument("while true do end\nfor i = 1, 2 do\n  local x = i\nend\nrepeat until true\n", "t")
	require.NoError(t, err)

	while := chunk[1].(*ast.WhileStmt)
	assert.Equal(t, []int{1}, probeLines(while.Stmts), "empty body probes the loop line")

	numfor := chunk[3].(*ast.NumberForStmt)
	assert.Equal(t, []int{3}, probeLines(numfor.Stmts))

	repeat := chunk[5].(*ast.RepeatStmt)
	assert.Equal(t, []int{5}, probeLines(repeat.Stmts))
}

func TestInstrumentNestedFunctions(t *testing.T) {
	chunk, err := Instrument("local t = {f = function()\n  return 1\nend}\nfunction g()\nend\n", "t")
	require.NoError(t, err)

	local := chunk[1].(*ast.LocalAssignStmt)
	fn := local.Exprs[0].(*ast.TableExpr).Fields[0].Value.(*ast.FunctionExpr)
	assert.Equal(t, []int{2}, probeLines(fn.Stmts))

	def := chunk[3].(*ast.FuncDefStmt)
	assert.Empty(t, def.Func.Stmts, "empty function bodies stay empty")
}

func TestInstrumentLabels(t *testing.T) {
	chunk, err := Instrument("for i = 1, 2 do\n  goto continue\n  ::continue::\nend\n", "t")
	require.NoError(t, err)
	body := chunk[1].(*ast.NumberForStmt).Stmts
	assert.Equal(t, []int{2}, probeLines(body))
	_, isLabel := body[len(body)-1].(*ast.LabelStmt)
	assert.True(t, isLabel, "labels are not preceded by a probe")
}

func TestInstrumentSyntaxError(t *testing.T) {
	_, err := Instrument("local = 1", "t")
	assert.Error(t, err)
}
