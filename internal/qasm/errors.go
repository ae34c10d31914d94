package qasm

import (
	"errors"
	"fmt"
)

// Translation error kinds. A *TranslationError unwraps to exactly one of these.
var (
	ErrMissingVersion       = errors.New("missing OPENQASM version declaration")
	ErrUnsupportedVersion   = errors.New("unsupported OPENQASM version")
	ErrMalformedDeclaration = errors.New("malformed register declaration")
	ErrMalformedMeasurement = errors.New("malformed measurement statement")
)

// TranslationError describes why a circuit could not be normalized.
type TranslationError struct {
	Kind     error
	Line     int    // 1-based; zero when the error is not tied to a line
	LineText string // offending line, trimmed
	Version  string // set for ErrUnsupportedVersion
	Input    string // original circuit text
}

func (e *TranslationError) Error() string {
	switch {
	case errors.Is(e.Kind, ErrUnsupportedVersion):
		return fmt.Sprintf("%v %q (supported: %s, %s)", e.Kind, e.Version, CanonicalVersion, NewerVersion)
	case e.Line > 0:
		return fmt.Sprintf("%v at line %d: %q", e.Kind, e.Line, e.LineText)
	default:
		return e.Kind.Error()
	}
}

func (e *TranslationError) Unwrap() error {
	return e.Kind
}

func lineError(kind error, input string, line int, text string) *TranslationError {
	return &TranslationError{Kind: kind, Line: line, LineText: text, Input: input}
}
