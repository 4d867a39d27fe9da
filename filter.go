package jqrender

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// looseQuote matches a single quote that opens a token (at the start of the
// filter or after whitespace, and not followed by whitespace or '"') or
// closes one (not preceded by whitespace or '"', and followed by whitespace
// or the end of the filter).
var looseQuote = regexp2.MustCompile(`(^|\s)'(?!\s|")|(?<!\s|")'(\s|$)`, regexp2.None)

// normalizeQuotes rewrites loose single quotes used as string delimiters into
// double quotes. Apostrophes inside words are left alone.
func normalizeQuotes(filter string) string {
	if !strings.ContainsRune(filter, '\'') {
		return filter
	}
	out, err := looseQuote.Replace(filter, `$1"$2`, -1, -1)
	if err != nil {
		// only a match timeout fails, and none is set
		return filter
	}
	return out
}
