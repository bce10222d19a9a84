package parser

import "errors"

// ErrParse is returned when stdout can't be decoded under the requested
// mode. Callers fall back to treating stdout as raw text (§7).
var ErrParse = errors.New("parser: could not parse backend output")
