package jqrender

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"regexp"
	"sort"

	"golang.org/x/sync/errgroup"
)

// SpreadKeyword names the marker whose mapping result is merged into the
// enclosing mapping: {"{{ spreadValue() }}": "{{ .extra }}"}.
const SpreadKeyword = "spreadValue"

var spreadKey = regexp.MustCompile(`^\s*\{\{\s*` + SpreadKeyword + `\(\s*\)\s*\}\}\s*$`)

// Renderer renders templates against a root value, sending every expression
// through its Dispatcher.
type Renderer struct {
	d          Dispatcher
	concurrent bool
}

// NewRenderer returns a Renderer that walks templates on the caller goroutine.
func NewRenderer(d Dispatcher) *Renderer { return &Renderer{d: d} }

// NewConcurrentRenderer returns a Renderer that renders sibling sequence
// elements and mapping members concurrently. Results keep declaration order,
// and the first failure in declaration order is reported.
func NewConcurrentRenderer(d Dispatcher) *Renderer { return &Renderer{d: d, concurrent: true} }

// Evaluate runs filter against root and returns its first output.
func (r *Renderer) Evaluate(ctx context.Context, root any, filter string, opts Options) (any, error) {
	input, err := normalizeRoot(root)
	if err != nil {
		return settle(nil, err, opts)
	}
	return r.evaluate(ctx, input, filter, opts)
}

// Render renders template against root. template is a Template or any value
// accepted by FromValue.
func (r *Renderer) Render(ctx context.Context, root any, template any, opts Options) (any, error) {
	t, err := FromValue(template)
	if err != nil {
		return settle(nil, err, opts)
	}
	input, err := normalizeRoot(root)
	if err != nil {
		return settle(nil, err, opts)
	}
	return r.render(ctx, input, t, opts)
}

func (r *Renderer) evaluate(ctx context.Context, input any, filter string, opts Options) (any, error) {
	v, err := r.d.Dispatch(ctx, opts.request(input, filter))
	return settle(v, err, opts)
}

func (r *Renderer) render(ctx context.Context, input any, t Template, opts Options) (any, error) {
	switch t.Kind() {
	case TemplateString:
		return r.renderString(ctx, input, t.Str(), opts)
	case TemplateSequence:
		if r.concurrent {
			return r.renderSequenceConcurrent(ctx, input, t.Items(), opts)
		}
		return r.renderSequence(ctx, input, t.Items(), opts)
	case TemplateMapping:
		if r.concurrent {
			return r.renderMappingConcurrent(ctx, input, t.Entries(), opts)
		}
		return r.renderMapping(ctx, input, t.Entries(), opts)
	default:
		return t.Value(), nil
	}
}

func (r *Renderer) renderSequence(ctx context.Context, input any, items []Template, opts Options) (any, error) {
	out := make([]any, len(items))
	for i, it := range items {
		v, err := r.render(ctx, input, it, opts)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *Renderer) renderMapping(ctx context.Context, input any, entries []Entry, opts Options) (any, error) {
	out := NewObject(len(entries))
	for _, e := range entries {
		if spreadKey.MatchString(e.Key) {
			v, err := r.render(ctx, input, e.Value, opts)
			if err != nil {
				return nil, err
			}
			if err = mergeSpread(out, e, v); err != nil {
				return nil, err
			}
			continue
		}

		k, err := r.renderString(ctx, input, e.Key, opts)
		if err != nil {
			return nil, err
		}
		key, keep, err := memberKey(e.Key, k)
		if err != nil {
			return nil, err
		}
		if !keep {
			continue
		}

		v, err := r.render(ctx, input, e.Value, opts)
		if err != nil {
			return nil, err
		}
		out.Set(key, v)
	}
	return out, nil
}

func (r *Renderer) renderSequenceConcurrent(ctx context.Context, input any, items []Template, opts Options) (any, error) {
	out := make([]any, len(items))
	errs := fanOut(len(items), func(i int) (err error) {
		out[i], err = r.render(ctx, input, items[i], opts)
		return err
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// renderMappingConcurrent renders all keys first, then the values of kept
// members, then assembles the result in declaration order.
func (r *Renderer) renderMappingConcurrent(ctx context.Context, input any, entries []Entry, opts Options) (any, error) {
	n := len(entries)
	spread := make([]bool, n)
	keys := make([]string, n)
	keep := make([]bool, n)

	keyErrs := fanOut(n, func(i int) error {
		if spreadKey.MatchString(entries[i].Key) {
			spread[i], keep[i] = true, true
			return nil
		}
		k, err := r.renderString(ctx, input, entries[i].Key, opts)
		if err != nil {
			return err
		}
		keys[i], keep[i], err = memberKey(entries[i].Key, k)
		return err
	})

	// Members after the first key failure are never reported, so skip them.
	limit := n
	for i, err := range keyErrs {
		if err != nil {
			limit = i
			break
		}
	}

	vals := make([]any, n)
	valErrs := fanOut(limit, func(i int) (err error) {
		if !keep[i] {
			return nil
		}
		vals[i], err = r.render(ctx, input, entries[i].Value, opts)
		return err
	})

	out := NewObject(n)
	for i := range entries {
		if keyErrs[i] != nil {
			return nil, keyErrs[i]
		}
		if !keep[i] {
			continue
		}
		if valErrs[i] != nil {
			return nil, valErrs[i]
		}
		if spread[i] {
			if err := mergeSpread(out, entries[i], vals[i]); err != nil {
				return nil, err
			}
			continue
		}
		out.Set(keys[i], vals[i])
	}
	return out, nil
}

// fanOut calls fn for every index in [0, n) concurrently and waits for all
// of them. errs[i] holds the error of fn(i).
func fanOut(n int, fn func(i int) error) []error {
	errs := make([]error, n)
	var g errgroup.Group
	for i := range n {
		g.Go(func() error {
			errs[i] = fn(i)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// memberKey validates a rendered mapping key. Absent, nil and "" drop the member.
func memberKey(original string, k any) (string, bool, error) {
	switch t := k.(type) {
	case nil, AbsentValue:
		return "", false, nil
	case string:
		return t, t != "", nil
	default:
		return "", false, newError(KindTemplateSemantic, nil,
			"Evaluated object key should be undefined, null or string. Original key: %s, evaluated to: %s (%s)",
			original, describe(k), typeName(k))
	}
}

// mergeSpread copies the members of a rendered spread value into out.
// Later members override earlier ones.
func mergeSpread(out *Object, e Entry, v any) error {
	switch t := v.(type) {
	case *Object:
		t.Range(func(k string, mv any) bool {
			out.Set(k, mv)
			return true
		})
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out.Set(k, t[k])
		}
		return nil
	default:
		return newError(KindTemplateSemantic, nil,
			"Evaluated value should be an object if the key is %s. Original value: %s, evaluated to: %s (%s)",
			e.Key, e.Value.String(), describe(v), typeName(v))
	}
}

func describe(v any) string {
	if IsAbsent(v) {
		return "undefined"
	}
	b, err := marshalJSON(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case AbsentValue:
		return "undefined"
	case bool:
		return "boolean"
	case string:
		return "string"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number, *big.Int:
		return "number"
	case []any:
		return "array"
	case *Object, map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
