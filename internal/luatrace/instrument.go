package luatrace

import (
	"strconv"
	"strings"

	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

// Instrument parses source and inserts a probe call in front of every
// statement, in every block, including function bodies nested inside
// expressions. Consecutive statements on one line share a single probe. A
// loop whose body is empty gets a probe carrying the loop's own line.
func Instrument(source, chunkName string) ([]ast.Stmt, error) {
	chunk, err := parse.Parse(strings.NewReader(source), chunkName)
	if err != nil {
		return nil, err
	}
	return instrumentBlock(chunk, 0), nil
}

// instrumentBlock returns stmts with probes inserted. When stmts is empty and
// entry is positive, the block becomes a single probe at entry.
func instrumentBlock(stmts []ast.Stmt, entry int) []ast.Stmt {
	if len(stmts) == 0 {
		if entry > 0 {
			return []ast.Stmt{probe(entry)}
		}
		return stmts
	}

	out := make([]ast.Stmt, 0, 2*len(stmts))
	last := 0
	for _, stmt := range stmts {
		instrumentStmt(stmt)
		if _, label := stmt.(*ast.LabelStmt); !label && stmt.Line() != last {
			out = append(out, probe(stmt.Line()))
			last = stmt.Line()
		}
		out = append(out, stmt)
	}
	return out
}

func instrumentStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.AssignStmt:
		instrumentExprs(s.Lhs)
		instrumentExprs(s.Rhs)
	case *ast.LocalAssignStmt:
		instrumentExprs(s.Exprs)
	case *ast.FuncCallStmt:
		instrumentExpr(s.Expr)
	case *ast.DoBlockStmt:
		s.Stmts = instrumentBlock(s.Stmts, 0)
	case *ast.WhileStmt:
		instrumentExpr(s.Condition)
		s.Stmts = instrumentBlock(s.Stmts, s.Line())
	case *ast.RepeatStmt:
		s.Stmts = instrumentBlock(s.Stmts, s.Line())
		instrumentExpr(s.Condition)
	case *ast.IfStmt:
		instrumentExpr(s.Condition)
		s.Then = instrumentBlock(s.Then, 0)
		s.Else = instrumentBlock(s.Else, 0)
	case *ast.NumberForStmt:
		instrumentExpr(s.Init)
		instrumentExpr(s.Limit)
		instrumentExpr(s.Step)
		s.Stmts = instrumentBlock(s.Stmts, s.Line())
	case *ast.GenericForStmt:
		instrumentExprs(s.Exprs)
		s.Stmts = instrumentBlock(s.Stmts, s.Line())
	case *ast.FuncDefStmt:
		if s.Name != nil {
			instrumentExpr(s.Name.Func)
			instrumentExpr(s.Name.Receiver)
		}
		instrumentExpr(s.Func)
	case *ast.ReturnStmt:
		instrumentExprs(s.Exprs)
	}
}

func instrumentExprs(exprs []ast.Expr) {
	for _, e := range exprs {
		instrumentExpr(e)
	}
}

// instrumentExpr finds function literals inside an expression.
func instrumentExpr(expr ast.Expr) {
	switch e := expr.(type) {
	case nil:
	case *ast.FunctionExpr:
		e.Stmts = instrumentBlock(e.Stmts, 0)
	case *ast.AttrGetExpr:
		instrumentExpr(e.Object)
		instrumentExpr(e.Key)
	case *ast.TableExpr:
		for _, f := range e.Fields {
			instrumentExpr(f.Key)
			instrumentExpr(f.Value)
		}
	case *ast.FuncCallExpr:
		instrumentExpr(e.Func)
		instrumentExpr(e.Receiver)
		instrumentExprs(e.Args)
	case *ast.LogicalOpExpr:
		instrumentExpr(e.Lhs)
		instrumentExpr(e.Rhs)
	case *ast.RelationalOpExpr:
		instrumentExpr(e.Lhs)
		instrumentExpr(e.Rhs)
	case *ast.StringConcatOpExpr:
		instrumentExpr(e.Lhs)
		instrumentExpr(e.Rhs)
	case *ast.ArithmeticOpExpr:
		instrumentExpr(e.Lhs)
		instrumentExpr(e.Rhs)
	case *ast.UnaryMinusOpExpr:
		instrumentExpr(e.Expr)
	case *ast.UnaryNotOpExpr:
		instrumentExpr(e.Expr)
	case *ast.UnaryLenOpExpr:
		instrumentExpr(e.Expr)
	}
}

// probe builds `__traceview_step(line)` positioned at line, so runtime errors
// raised inside the probe still point at the user's statement.
func probe(line int) ast.Stmt {
	fn := &ast.IdentExpr{Value: probeName}
	fn.SetLine(line)
	arg := &ast.NumberExpr{Value: strconv.Itoa(line)}
	arg.SetLine(line)

	call := &ast.FuncCallExpr{Func: fn, Args: []ast.Expr{arg}}
	call.SetLine(line)
	call.SetLastLine(line)

	stmt := &ast.FuncCallStmt{Expr: call}
	stmt.SetLine(line)
	stmt.SetLastLine(line)
	return stmt
}
