package shell

import (
	"errors"
	"fmt"
)

var (
	ErrUnterminatedQuote     = errors.New("unterminated quote")
	ErrEmptyStage            = errors.New("empty pipeline stage")
	ErrMissingRedirectTarget = errors.New("missing redirection target")
	ErrMisplacedBackground   = errors.New("'&' is only allowed at the end of a line")
	ErrBadDescriptor         = errors.New("bad file descriptor")

	ErrBadSubstitution   = errors.New("bad substitution")
	ErrAmbiguousRedirect = errors.New("ambiguous redirect")
)

// MaxFd is the highest descriptor a redirection may name.
const MaxFd = 9

// ParseError is returned when a line can't be tokenized or parsed.
type ParseError struct {
	// Err is one of the ErrUnterminatedQuote, ErrEmptyStage,
	// ErrMissingRedirectTarget, ErrMisplacedBackground or ErrBadDescriptor
	// sentinels.
	Err error
	Pos int
	// Near holds the offending token, if any.
	Near string
}

func (e *ParseError) Error() string {
	if e.Near != "" {
		return fmt.Sprintf("syntax error near %q: %v", e.Near, e.Err)
	}
	return fmt.Sprintf("syntax error: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExpansionError is returned for malformed variable references.
type ExpansionError struct {
	Err  error
	Word string
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Word, e.Err)
}

func (e *ExpansionError) Unwrap() error {
	return e.Err
}
