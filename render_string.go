package jqrender

import (
	"context"
	"strings"
)

// renderString evaluates the expression blocks of text.
//
// Text without blocks is returned as is. Text consisting of a single block,
// ignoring surrounding whitespace, yields the native result of the expression.
// Anything else yields a string: blocks are evaluated left to right and
// replaced with the result, raw for strings and JSON text otherwise.
func (r *Renderer) renderString(ctx context.Context, root any, text string, opts Options) (any, error) {
	spans, err := scanBytes(text)
	if err != nil {
		return nil, err
	}
	if len(spans) == 0 {
		return text, nil
	}

	trimmed := strings.TrimSpace(text)
	if len(spans) == 1 && strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		return r.evaluate(ctx, root, text[spans[0].Start:spans[0].End], opts)
	}

	var b strings.Builder
	b.WriteString(text[:spans[0].Start-delimLen])
	for i, sp := range spans {
		v, err := r.evaluate(ctx, root, text[sp.Start:sp.End], opts)
		if err != nil {
			return nil, err
		}
		s, err := substitution(v)
		if err != nil {
			if _, err = settle(nil, err, opts); err != nil {
				return nil, err
			}
			s = "null"
		}
		b.WriteString(s)

		next := len(text)
		if i+1 < len(spans) {
			next = spans[i+1].Start - delimLen
		}
		b.WriteString(text[sp.End+delimLen : next])
	}

	return b.String(), nil
}

// substitution converts an evaluated value into the text spliced into a string.
func substitution(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case AbsentValue:
		return "", nil
	}
	b, err := marshalJSON(v)
	if err != nil {
		return "", newError(KindRuntime, err, "jq: error: cannot encode %T result: %v", v, err)
	}
	return string(b), nil
}
