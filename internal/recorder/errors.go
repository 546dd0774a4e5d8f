package recorder

import "errors"

// ErrUnknownLanguage is returned for a language or file extension with no
// driver.
var ErrUnknownLanguage = errors.New("unknown language")
