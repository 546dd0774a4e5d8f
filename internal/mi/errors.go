package mi

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrUnexpectedToken is wrapped by ParseError when the grammar is violated.
	ErrUnexpectedToken = errors.New("unexpected token")

	// ErrUnterminatedString is wrapped by ParseError when a c-string has no closing quote.
	ErrUnterminatedString = errors.New("unterminated c-string")
)

// ParseError describes where a record failed to parse.
type ParseError struct {
	// Offset is the byte offset into the line.
	Offset int
	// Line is the raw input.
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mi: parse %q at offset %d: %v", e.Line, e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
