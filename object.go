package jqrender

import (
	"bytes"
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// AbsentValue is the type of Absent.
type AbsentValue struct{}

// Absent is returned when an expression produces no output (jq `empty`).
// It is distinct from nil, which stands for JSON null.
var Absent = AbsentValue{}

// MarshalJSON encodes Absent as null. Object skips absent members entirely.
func (AbsentValue) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (AbsentValue) String() string { return "undefined" }

// IsAbsent reports whether v is the Absent sentinel.
func IsAbsent(v any) bool {
	_, ok := v.(AbsentValue)
	return ok
}

// Object is an insertion-ordered mapping produced by rendering a mapping template.
// Setting an existing key replaces its value and keeps its position.
type Object struct {
	m *orderedmap.OrderedMap[string, any]
}

// NewObject returns an empty Object with room for n members.
func NewObject(n int) *Object {
	return &Object{m: orderedmap.New[string, any](orderedmap.WithCapacity[string, any](n))}
}

func (o *Object) Set(key string, v any) { o.m.Set(key, v) }

func (o *Object) Get(key string) (any, bool) { return o.m.Get(key) }

// Keys returns the member names in insertion order.
func (o *Object) Keys() []string {
	out := make([]string, 0, o.m.Len())
	for p := o.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, p.Key)
	}
	return out
}

func (o *Object) Len() int { return o.m.Len() }

// Range calls fn for each member in order until fn returns false.
func (o *Object) Range(fn func(key string, v any) bool) {
	for p := o.m.Oldest(); p != nil; p = p.Next() {
		if !fn(p.Key, p.Value) {
			return
		}
	}
}

// ToMap converts o and any nested Objects into plain maps, dropping absent members.
// Nested sequences are copied so the result shares no Objects with o.
func (o *Object) ToMap() map[string]any {
	m := make(map[string]any, o.m.Len())
	o.Range(func(k string, v any) bool {
		if !IsAbsent(v) {
			m[k] = plain(v)
		}
		return true
	})
	return m
}

func plain(v any) any {
	switch t := v.(type) {
	case *Object:
		return t.ToMap()
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	default:
		return v
	}
}

// MarshalJSON encodes o as a JSON object in insertion order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for p := o.m.Oldest(); p != nil; p = p.Next() {
		k, v := p.Key, p.Value
		if IsAbsent(v) {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		kb, err := marshalJSON(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')

		vb, err := marshalJSON(v)
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshalJSON encodes v the way jq prints compact output: no HTML escaping,
// no trailing newline.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
