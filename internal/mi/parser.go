package mi

import (
	"fmt"
	"strings"
)

// Parse decodes one line of MI output. It never fails: malformed lines yield
// a record with Err set and whatever results preceded the error.
func Parse(line string) *Record {
	line = strings.TrimRight(line, "\r\n")
	rec := &Record{Raw: line}

	if isPrompt(line) {
		rec.Kind = KindPrompt
		return rec
	}

	i := skipToken(line)
	if i >= len(line) || markerKind(line[i]) == KindTarget {
		rec.Kind = KindTarget
		rec.Text = line
		return rec
	}
	rec.Token = line[:i]
	rec.Kind = markerKind(line[i])
	i++

	if rec.Kind.IsStream() {
		if i >= len(line) || line[i] != '"' {
			// Some gdb builds emit unquoted stream text; keep it verbatim.
			rec.Text = line[i:]
			rec.Err = &ParseError{Offset: i, Line: line, Err: ErrUnexpectedToken}
			return rec
		}
		text, _, err := unquote(line, i)
		rec.Text = text
		if err != nil {
			rec.Err = &ParseError{Offset: i, Line: line, Err: err}
		}
		return rec
	}

	p := &parser{lex: newLexer(line, i), line: line}
	class := p.lex.next()
	if class.kind != tokIdent {
		rec.Err = p.errorf(class, "expected record class")
		return rec
	}
	rec.Class = class.text

	for {
		t := p.lex.next()
		if t.kind == tokEOF {
			break
		}
		if t.kind != tokComma {
			rec.Err = p.errorf(t, "expected ','")
			break
		}
		// Status records such as +download carry a bare tuple.
		if p.lex.peek().kind == tokLBrace {
			v, err := p.value()
			rec.Results = append(rec.Results, Result{Value: v})
			if err != nil {
				rec.Err = err
				break
			}
			continue
		}
		r, err := p.result()
		if r.Name != "" {
			rec.Results = append(rec.Results, r)
		}
		if err != nil {
			rec.Err = err
			break
		}
	}
	return rec
}

// parser is a recursive descent parser over the lexer's tokens.
type parser struct {
	lex  *lexer
	line string
}

func (p *parser) errorf(t token, format string, args ...any) error {
	if t.kind == tokInvalid && p.lex.err != nil {
		return &ParseError{Offset: t.pos, Line: p.line, Err: p.lex.err}
	}
	msg := fmt.Sprintf(format, args...)
	return &ParseError{
		Offset: t.pos,
		Line:   p.line,
		Err:    fmt.Errorf("%w: %s, got %s", ErrUnexpectedToken, msg, t.kind),
	}
}

// result = variable "=" value
func (p *parser) result() (Result, error) {
	name := p.lex.next()
	if name.kind != tokIdent {
		return Result{}, p.errorf(name, "expected result name")
	}
	eq := p.lex.next()
	if eq.kind != tokEqual {
		return Result{Name: name.text}, p.errorf(eq, "expected '='")
	}
	v, err := p.value()
	return Result{Name: name.text, Value: v}, err
}

// value = const | tuple | list
func (p *parser) value() (Value, error) {
	t := p.lex.next()
	switch t.kind {
	case tokString:
		return ConstValue(t.text), nil
	case tokLBrace:
		return p.tuple()
	case tokLBracket:
		return p.list()
	default:
		return Value{}, p.errorf(t, "expected value")
	}
}

// tuple = "{}" | "{" result ( "," result )* "}"
func (p *parser) tuple() (Value, error) {
	v := Value{Kind: ValueTuple}
	if p.lex.peek().kind == tokRBrace {
		p.lex.next()
		return v, nil
	}
	for {
		r, err := p.result()
		if r.Name != "" {
			v.Fields = append(v.Fields, r)
		}
		if err != nil {
			return v, err
		}
		t := p.lex.next()
		switch t.kind {
		case tokComma:
			continue
		case tokRBrace:
			return v, nil
		default:
			return v, p.errorf(t, "expected ',' or '}'")
		}
	}
}

// list = "[]" | "[" value ( "," value )* "]" | "[" result ( "," result )* "]"
func (p *parser) list() (Value, error) {
	v := Value{Kind: ValueList}
	if p.lex.peek().kind == tokRBracket {
		p.lex.next()
		return v, nil
	}
	for {
		if p.lex.peek().kind == tokIdent {
			r, err := p.result()
			if r.Name != "" {
				v.Fields = append(v.Fields, r)
			}
			if err != nil {
				return v, err
			}
		} else {
			item, err := p.value()
			if !item.IsZero() {
				v.Items = append(v.Items, item)
			}
			if err != nil {
				return v, err
			}
		}
		t := p.lex.next()
		switch t.kind {
		case tokComma:
			continue
		case tokRBracket:
			return v, nil
		default:
			return v, p.errorf(t, "expected ',' or ']'")
		}
	}
}
