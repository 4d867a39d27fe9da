package jqrender

import (
	"unicode/utf16"
	"unicode/utf8"
)

// Span locates one expression inside a template string. Start and End are
// character offsets, counted in UTF-16 code units, exclusive of the
// surrounding delimiters. Error messages report indices in the same unit.
type Span struct {
	Start int
	End   int
}

const delimLen = len("{{")

// scan finds the expression spans of s in left-to-right order.
func scan(s string) ([]Span, error) {
	spans, err := scanBytes(s)
	if err != nil || isASCII(s) {
		return spans, err
	}
	for i, sp := range spans {
		spans[i] = Span{Start: charIndex(s, sp.Start), End: charIndex(s, sp.End)}
	}
	return spans, nil
}

// scanBytes is scan with spans in byte offsets, ready for slicing s.
//
// Quotes are only tracked inside an open span, so braces inside a quoted
// string within an expression are inert. A backslash inside a span skips the
// next byte. A third brace following an opener or a closer is consumed with it.
func scanBytes(s string) ([]Span, error) {
	var (
		spans []Span
		quote byte
		start = -1
	)

	for i := 0; i < len(s); i++ {
		c := s[i]
		open := start >= 0

		if open && c == '\\' {
			i++
			continue
		}

		switch {
		case open && (c == '"' || c == '\''):
			if quote == 0 {
				quote = c
			} else if quote == c {
				quote = 0
			}

		case quote == 0 && c == '{' && i > 0 && s[i-1] == '{':
			if open {
				return nil, newError(KindTemplateSyntax, nil,
					"Found double braces in index %d inside other one in index %d",
					charIndex(s, i-1), charIndex(s, start-delimLen))
			}
			start = i + 1
			if i+1 < len(s) && s[i+1] == '{' {
				i++
			}

		case quote == 0 && c == '}' && i > 0 && s[i-1] == '}':
			if !open {
				return nil, newError(KindTemplateSyntax, nil,
					"Found closing double braces in index %d without opening double braces", charIndex(s, i-1))
			}
			spans = append(spans, Span{Start: start, End: i - 1})
			start = -1
			if i+1 < len(s) && s[i+1] == '}' {
				i++
			}
		}
	}

	if start >= 0 {
		return nil, newError(KindTemplateSyntax, nil,
			"Found opening double braces in index %d without closing double braces", charIndex(s, start-delimLen))
	}

	return spans, nil
}

// charIndex converts the byte offset i of s into UTF-16 code units.
func charIndex(s string, i int) int {
	n := 0
	for _, r := range s[:i] {
		n += utf16.RuneLen(r)
	}
	return n
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
