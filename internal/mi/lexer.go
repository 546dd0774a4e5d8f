package mi

import (
	"strings"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokEqual
	tokComma
	tokLBrace
	tokRBrace
	tokLBracket
	tokRBracket
	tokInvalid
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of line"
	case tokIdent:
		return "identifier"
	case tokString:
		return "c-string"
	case tokEqual:
		return "'='"
	case tokComma:
		return "','"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokLBracket:
		return "'['"
	case tokRBracket:
		return "']'"
	default:
		return "invalid character"
	}
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer splits the body of a record into tokens. It keeps one token of
// lookahead for the parser.
type lexer struct {
	src    string
	pos    int
	peeked *token
	err    error
}

func newLexer(src string, start int) *lexer {
	return &lexer{src: src, pos: start}
}

func (l *lexer) peek() token {
	if l.peeked == nil {
		t := l.scan()
		l.peeked = &t
	}
	return *l.peeked
}

func (l *lexer) next() token {
	t := l.peek()
	l.peeked = nil
	return t
}

func (l *lexer) scan() token {
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}
	}
	start := l.pos
	c := l.src[l.pos]
	switch c {
	case '=':
		l.pos++
		return token{kind: tokEqual, pos: start}
	case ',':
		l.pos++
		return token{kind: tokComma, pos: start}
	case '{':
		l.pos++
		return token{kind: tokLBrace, pos: start}
	case '}':
		l.pos++
		return token{kind: tokRBrace, pos: start}
	case '[':
		l.pos++
		return token{kind: tokLBracket, pos: start}
	case ']':
		l.pos++
		return token{kind: tokRBracket, pos: start}
	case '"':
		text, end, err := unquote(l.src, l.pos)
		if err != nil {
			l.err = err
			l.pos = len(l.src)
			return token{kind: tokInvalid, pos: start}
		}
		l.pos = end
		return token{kind: tokString, text: text, pos: start}
	}

	if isIdentByte(c) {
		for l.pos < len(l.src) && isIdentByte(l.src[l.pos]) {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}
	}

	l.pos++
	return token{kind: tokInvalid, text: string(c), pos: start}
}

func isIdentByte(c byte) bool {
	return c == '-' || c == '_' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// unquote decodes the c-string starting at src[start], which must be '"'.
// It returns the decoded text and the offset just past the closing quote.
func unquote(src string, start int) (string, int, error) {
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == '"':
			return b.String(), i + 1, nil
		case c != '\\':
			b.WriteByte(c)
			i++
			continue
		}

		i++
		if i >= len(src) {
			break
		}
		e := src[i]
		i++
		switch e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'e':
			b.WriteByte(0x1b)
		case '0', '1', '2', '3', '4', '5', '6', '7':
			// Up to three octal digits; gdb escapes non-printable bytes this way.
			n := int(e - '0')
			for k := 0; k < 2 && i < len(src) && src[i] >= '0' && src[i] <= '7'; k++ {
				n = n*8 + int(src[i]-'0')
				i++
			}
			b.WriteByte(byte(n & 0xff))
		case 'x':
			n, digits := 0, 0
			for digits < 2 && i < len(src) && isHex(src[i]) {
				n = n*16 + hexVal(src[i])
				i++
				digits++
			}
			if digits == 0 {
				b.WriteString(`\x`)
				continue
			}
			b.WriteByte(byte(n))
		default:
			// \" \\ \' and anything unknown stand for themselves.
			b.WriteByte(e)
		}
	}
	return b.String(), len(src), ErrUnterminatedString
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}
