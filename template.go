package jqrender

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// TemplateKind discriminates the four shapes a Template can take.
type TemplateKind int

const (
	TemplatePrimitive TemplateKind = iota
	TemplateString
	TemplateSequence
	TemplateMapping
)

func (k TemplateKind) String() string {
	switch k {
	case TemplateString:
		return "string"
	case TemplateSequence:
		return "sequence"
	case TemplateMapping:
		return "mapping"
	default:
		return "primitive"
	}
}

// Template is a JSON-shaped value whose string leaves and mapping keys may
// contain {{ expression }} blocks. Mapping entries keep their declaration order.
// Rendering never modifies a Template.
type Template struct {
	kind    TemplateKind
	str     string
	prim    any
	items   []Template
	entries []Entry
}

// Entry is one member of a mapping Template.
type Entry struct {
	Key   string
	Value Template
}

// String returns a string template.
func String(s string) Template { return Template{kind: TemplateString, str: s} }

// Primitive returns a template for a non-string scalar (nil, bool or number).
// A string argument yields a string template.
func Primitive(v any) Template {
	if s, ok := v.(string); ok {
		return String(s)
	}
	return Template{kind: TemplatePrimitive, prim: v}
}

// Sequence returns a sequence template.
func Sequence(items ...Template) Template {
	return Template{kind: TemplateSequence, items: items}
}

// Mapping returns a mapping template with entries in the given order.
func Mapping(entries ...Entry) Template {
	return Template{kind: TemplateMapping, entries: entries}
}

// Field builds a mapping entry.
func Field(key string, value Template) Entry { return Entry{Key: key, Value: value} }

func (t Template) Kind() TemplateKind { return t.kind }

// Str returns the text of a string template.
func (t Template) Str() string { return t.str }

// Value returns the scalar of a primitive template.
func (t Template) Value() any { return t.prim }

func (t Template) Items() []Template { return t.items }

func (t Template) Entries() []Entry { return t.entries }

// FromValue converts a Go value into a Template. Maps with string keys are
// visited in sorted key order; use ParseTemplate or Mapping when declaration
// order matters. Values of other types go through their JSON encoding.
func FromValue(v any) (Template, error) {
	switch t := v.(type) {
	case Template:
		return t, nil
	case nil, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Primitive(t), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Template, len(t))
		for i, e := range t {
			it, err := FromValue(e)
			if err != nil {
				return Template{}, err
			}
			items[i] = it
		}
		return Sequence(items...), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		entries := make([]Entry, len(keys))
		for i, k := range keys {
			et, err := FromValue(t[k])
			if err != nil {
				return Template{}, err
			}
			entries[i] = Field(k, et)
		}
		return Mapping(entries...), nil
	case *Object:
		entries := make([]Entry, 0, t.Len())
		var err error
		t.Range(func(k string, ev any) bool {
			var et Template
			if et, err = FromValue(ev); err != nil {
				return false
			}
			entries = append(entries, Field(k, et))
			return true
		})
		if err != nil {
			return Template{}, err
		}
		return Mapping(entries...), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return Template{}, newError(KindInvalidInput, err, "%s: cannot convert %T to a template: %v", Namespace, v, err)
		}
		return ParseTemplate(b)
	}
}

// MustTemplate is like FromValue but panics on error. Intended for literals.
func MustTemplate(v any) Template {
	t, err := FromValue(v)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseTemplate decodes JSON text into a Template, keeping object member order.
func ParseTemplate(data []byte) (Template, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	t, err := decodeTemplate(dec)
	if err != nil {
		return Template{}, newError(KindInvalidInput, err, "%s: parse template: %v", Namespace, err)
	}
	if _, err = dec.Token(); !errors.Is(err, io.EOF) {
		return Template{}, newError(KindInvalidInput, err, "%s: parse template: trailing data after JSON value", Namespace)
	}
	return t, nil
}

func decodeTemplate(dec *json.Decoder) (Template, error) {
	tok, err := dec.Token()
	if err != nil {
		return Template{}, err
	}

	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '[':
			var items []Template
			for dec.More() {
				it, err := decodeTemplate(dec)
				if err != nil {
					return Template{}, err
				}
				items = append(items, it)
			}
			if _, err := dec.Token(); err != nil {
				return Template{}, err
			}
			return Sequence(items...), nil
		case '{':
			var entries []Entry
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Template{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Template{}, fmt.Errorf("unexpected object key %v", kt)
				}
				val, err := decodeTemplate(dec)
				if err != nil {
					return Template{}, err
				}
				entries = append(entries, Field(key, val))
			}
			if _, err := dec.Token(); err != nil {
				return Template{}, err
			}
			return Mapping(entries...), nil
		default:
			return Template{}, fmt.Errorf("unexpected delimiter %v", v)
		}
	case string:
		return String(v), nil
	default:
		return Primitive(v), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler, keeping object member order.
func (t *Template) UnmarshalJSON(data []byte) error {
	parsed, err := ParseTemplate(data)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON encodes the template back to JSON in declaration order.
func (t Template) MarshalJSON() ([]byte, error) {
	switch t.kind {
	case TemplateString:
		return marshalJSON(t.str)
	case TemplateSequence:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, it := range t.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := it.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case TemplateMapping:
		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, e := range t.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := marshalJSON(e.Key)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := e.Value.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return marshalJSON(t.prim)
	}
}

// String returns the raw text of a string template and the JSON text of
// anything else.
func (t Template) String() string {
	if t.kind == TemplateString {
		return t.str
	}
	b, err := t.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("%v", t.prim)
	}
	return string(b)
}
