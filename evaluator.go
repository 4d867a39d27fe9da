package jqrender

import (
	"context"
	"errors"
	"fmt"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/itchyny/gojq"
)

// DefaultCacheSize is the number of compiled filters kept by NewGoJQ.
const DefaultCacheSize = 256

// Evaluator runs one filter against one input and returns the first output.
// An expression with no output yields Absent. Error messages of malformed
// filters start with CompileErrorMarker; other failures start with "jq: error".
// Implementations must be safe for concurrent use. The same input may be
// handed to several evaluations at once and must not be modified.
type Evaluator interface {
	Evaluate(ctx context.Context, input any, filter string, enableEnv bool) (any, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, input any, filter string, enableEnv bool) (any, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, input any, filter string, enableEnv bool) (any, error) {
	return f(ctx, input, filter, enableEnv)
}

type codeKey struct {
	filter    string
	enableEnv bool
}

// GoJQ evaluates filters with gojq and caches compiled code.
// Without enableEnv, `env` and `$ENV` observe an empty environment.
type GoJQ struct {
	cache *lru.Cache[codeKey, *gojq.Code]
}

// NewGoJQ returns an evaluator keeping up to size compiled filters.
// A non-positive size selects DefaultCacheSize.
func NewGoJQ(size int) (*GoJQ, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[codeKey, *gojq.Code](size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return &GoJQ{cache: c}, nil
}

func (g *GoJQ) compile(filter string, enableEnv bool) (*gojq.Code, error) {
	key := codeKey{filter: filter, enableEnv: enableEnv}
	if code, ok := g.cache.Get(key); ok {
		return code, nil
	}

	q, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CompileErrorMarker, err)
	}

	var opts []gojq.CompilerOption
	if enableEnv {
		opts = append(opts, gojq.WithEnvironLoader(os.Environ))
	}
	code, err := gojq.Compile(q, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", CompileErrorMarker, err)
	}

	g.cache.Add(key, code)
	return code, nil
}

func (g *GoJQ) Evaluate(ctx context.Context, input any, filter string, enableEnv bool) (any, error) {
	code, err := g.compile(filter, enableEnv)
	if err != nil {
		return nil, err
	}

	// gojq rewrites numbers inside the input it runs on.
	iter := code.RunWithContext(ctx, cloneJSON(input))
	v, ok := iter.Next()
	if !ok {
		return Absent, nil
	}
	if err, ok := v.(error); ok {
		var halt *gojq.HaltError
		if errors.As(err, &halt) && halt.Value() == nil {
			return Absent, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("jq: error: %w", err)
	}
	return v, nil
}

// cloneJSON copies the maps and slices of v. Leaves are shared.
func cloneJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = cloneJSON(x)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = cloneJSON(x)
		}
		return s
	}
	return v
}

// Len returns the number of cached compiled filters.
func (g *GoJQ) Len() int { return g.cache.Len() }
