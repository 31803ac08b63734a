// Package apperror defines the failure kinds the analysis pipeline reports to
// its transports.
package apperror

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindDecode Kind = iota + 1
	KindAnalysis
	KindVideoRead
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindDecode:
		return "decode"
	case KindAnalysis:
		return "analysis"
	case KindVideoRead:
		return "video read"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks.
var (
	ErrDecode     = &Error{Kind: KindDecode}
	ErrAnalysis   = &Error{Kind: KindAnalysis}
	ErrVideoRead  = &Error{Kind: KindVideoRead}
	ErrValidation = &Error{Kind: KindValidation}
)

// Error is a pipeline failure. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrDecode) works
// for every decode failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func Decode(message string, err error) error {
	return &Error{Kind: KindDecode, Message: message, Err: err}
}

func Analysis(message string, err error) error {
	return &Error{Kind: KindAnalysis, Message: message, Err: err}
}

func VideoRead(message string, err error) error {
	return &Error{Kind: KindVideoRead, Message: message, Err: err}
}

func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Error()
	}
	return err.Error()
}
