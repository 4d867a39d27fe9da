package jqrender

import "time"

// Options controls a single Evaluate or Render call. The same value is used
// for every expression evaluated during the call.
type Options struct {
	// EnableEnv exposes the process environment to `env` and `$ENV`.
	// Default: false (expressions see an empty environment).
	EnableEnv bool

	// ThrowOnError returns compile, runtime, timeout and invalid input errors
	// instead of replacing the failed evaluation with nil.
	// Template syntax and semantic errors are always returned.
	ThrowOnError bool

	// Timeout bounds each pooled evaluation. Zero selects the pool default.
	// Inline evaluation ignores it.
	Timeout time.Duration
}

func (o Options) request(input any, filter string) Request {
	return Request{Input: input, Filter: filter, EnableEnv: o.EnableEnv, Timeout: o.Timeout}
}
