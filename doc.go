// Package jqrender renders JSON-shaped templates whose strings contain
// {{ jq expression }} blocks, and evaluates jq filters either inline or on a
// bounded pool of persistent workers.
//
// # Templates
//
// A string without blocks renders to itself. A string made of exactly one
// block renders to the native result of the expression:
//
//	Render(ctx, map[string]any{"n": 1}, "{{ .n + 1 }}", Options{}) // 2
//
// Other strings render to text with every block replaced by its result:
//
//	Render(ctx, root, "id-{{ .id }}", Options{}) // "id-42"
//
// Strings are spliced in raw and other values as compact JSON. A block with
// no output contributes nothing, so "a{{ empty }}b" renders to "ab". Block
// positions in syntax errors count characters in UTF-16 code units.
//
// Sequences render element by element. Mappings render their keys as strings
// too; a key evaluating to empty, null or "" drops the member, and the key
// {{ spreadValue() }} merges the mapping its value renders to:
//
//	{
//	  "{{ if .admin then \"role\" else empty end }}": "admin",
//	  "{{ spreadValue() }}": "{{ .extra }}"
//	}
//
// Expressions may use single quotes as string delimiters ('a' becomes "a").
// The process environment is hidden from `env` and `$ENV` unless
// Options.EnableEnv is set.
//
// # Errors
//
// Every failure is an *Error carrying an ErrorKind. Malformed braces and
// invalid keys or spread values are always returned. Compile, runtime,
// timeout and invalid input errors turn the failed evaluation into nil unless
// Options.ThrowOnError is set.
//
// # Concurrency
//
// A Pool owns a fixed number of workers, assigns requests round robin and
// bounds each request by a deadline:
//
//	p, err := NewPool(WithWorkers(4), WithDefaultTimeout(5*time.Second))
//	if err != nil { ... }
//	defer p.Close()
//	v, err := p.Render(ctx, root, tmpl, Options{ThrowOnError: true})
//
// Pool rendering evaluates sibling elements and members concurrently and
// assembles the result in declaration order. EvaluateConcurrent and
// RenderConcurrent use a lazily started process-wide pool.
package jqrender
