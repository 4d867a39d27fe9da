package jqrender

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Request is one evaluation routed through a Dispatcher.
type Request struct {
	// Input is the root value, already normalized to JSON-shaped Go values.
	Input  any
	Filter string
	// EnableEnv exposes the process environment to `env` and `$ENV`.
	EnableEnv bool
	// Timeout bounds a pooled evaluation. Zero selects the pool default.
	Timeout time.Duration
}

// Dispatcher decides how an evaluation request reaches the Evaluator.
// Returned errors are *Error values, except ErrPoolClosed.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (any, error)
}

type inlineDispatcher struct {
	ev Evaluator
}

// Inline returns a Dispatcher calling ev on the caller goroutine.
// Request.Timeout is ignored; cancel ctx to bound an inline evaluation.
func Inline(ev Evaluator) Dispatcher { return inlineDispatcher{ev: ev} }

func (d inlineDispatcher) Dispatch(ctx context.Context, req Request) (any, error) {
	filter, err := prepareFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	v, err := d.ev.Evaluate(ctx, req.Input, filter, req.EnableEnv)
	if err != nil {
		return nil, classify(ctx, err, 0)
	}
	return v, nil
}

func prepareFilter(filter string) (string, error) {
	if strings.TrimSpace(filter) == "" {
		return "", newError(KindInvalidInput, nil, "jq: invalid filter: filter is empty")
	}
	return normalizeQuotes(filter), nil
}

// classify maps an evaluator failure onto an ErrorKind. A done context wins
// over whatever the evaluator reported.
func classify(ctx context.Context, err error, timeout time.Duration) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return timeoutError(ctx, err, timeout)
	}
	if strings.HasPrefix(err.Error(), CompileErrorMarker) {
		return &Error{Kind: KindCompile, Msg: err.Error(), Err: err}
	}
	return &Error{Kind: KindRuntime, Msg: err.Error(), Err: err}
}

func timeoutError(ctx context.Context, cause error, timeout time.Duration) *Error {
	if cause == nil {
		cause = ctx.Err()
	}
	if errors.Is(cause, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return newError(KindTimeout, cause, "jq: timeout: evaluation cancelled")
	}
	if timeout > 0 {
		return newError(KindTimeout, cause, "jq: timeout after %s", timeout)
	}
	return newError(KindTimeout, cause, "jq: timeout: deadline exceeded")
}

// settle applies the error policy of opts to a dispatch outcome.
func settle(v any, err error, opts Options) (any, error) {
	if err == nil {
		return v, nil
	}
	if !opts.ThrowOnError && KindOf(err).suppressible() {
		return nil, nil
	}
	return nil, err
}

// normalizeRoot converts root into the JSON-shaped values the evaluator
// understands. JSON text given as []byte or json.RawMessage is decoded.
func normalizeRoot(root any) (any, error) {
	var data []byte
	switch t := root.(type) {
	case nil, bool, string, float64:
		return t, nil
	case json.RawMessage:
		data = t
	case []byte:
		data = t
	default:
		b, err := json.Marshal(root)
		if err != nil {
			return nil, newError(KindInvalidInput, err, "jq: invalid input: %v", err)
		}
		data = b
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, newError(KindInvalidInput, err, "jq: invalid input: %v", err)
	}
	return v, nil
}
