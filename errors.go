package jqrender

import (
	"errors"
	"fmt"
)

const Namespace = "jqrender"

// CompileErrorMarker prefixes evaluator messages describing a malformed filter.
const CompileErrorMarker = "jq: compile error"

var (
	ErrCompile          = errors.New(Namespace + ": compile error")
	ErrRuntime          = errors.New(Namespace + ": runtime error")
	ErrTimeout          = errors.New(Namespace + ": timeout")
	ErrTemplateSyntax   = errors.New(Namespace + ": template syntax error")
	ErrTemplateSemantic = errors.New(Namespace + ": template semantic error")
	ErrInvalidInput     = errors.New(Namespace + ": invalid input")

	ErrWorkerFailed  = errors.New(Namespace + ": worker failed")
	ErrPoolClosed    = errors.New(Namespace + ": pool closed")
	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")
)

// ErrorKind classifies failures surfaced by evaluation and rendering.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindCompile
	KindRuntime
	KindTimeout
	KindTemplateSyntax
	KindTemplateSemantic
	KindInvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case KindCompile:
		return "compile"
	case KindRuntime:
		return "runtime"
	case KindTimeout:
		return "timeout"
	case KindTemplateSyntax:
		return "template_syntax"
	case KindTemplateSemantic:
		return "template_semantic"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindCompile:
		return ErrCompile
	case KindRuntime:
		return ErrRuntime
	case KindTimeout:
		return ErrTimeout
	case KindTemplateSyntax:
		return ErrTemplateSyntax
	case KindTemplateSemantic:
		return ErrTemplateSemantic
	case KindInvalidInput:
		return ErrInvalidInput
	default:
		return nil
	}
}

// suppressible reports whether errors of this kind are turned into a nil
// result unless Options.ThrowOnError is set.
func (k ErrorKind) suppressible() bool {
	switch k {
	case KindCompile, KindRuntime, KindTimeout, KindInvalidInput:
		return true
	default:
		return false
	}
}

// Error is the single error type returned by evaluation and rendering.
// Error() yields the message verbatim, so evaluator and scanner texts
// reach the caller unchanged.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func newError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error kind, so errors.Is(err, ErrTimeout) works.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
