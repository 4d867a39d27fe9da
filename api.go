package jqrender

import (
	"context"
	"sync"
)

var (
	syncOnce     sync.Once
	syncRenderer *Renderer

	defaultPoolOnce sync.Once
	defaultPool     *Pool
	defaultPoolErr  error
)

func inlineRenderer() *Renderer {
	syncOnce.Do(func() {
		// NewGoJQ only fails for a non-positive LRU size, which it replaces.
		ev, _ := NewGoJQ(DefaultCacheSize)
		syncRenderer = NewRenderer(Inline(ev))
	})
	return syncRenderer
}

// DefaultPool returns the process-wide pool used by EvaluateConcurrent and
// RenderConcurrent, starting it with default options on first use.
// It lives until process exit; applications that need an explicit shutdown
// path should own a Pool from NewPool instead.
func DefaultPool() (*Pool, error) {
	defaultPoolOnce.Do(func() {
		defaultPool, defaultPoolErr = NewPool()
	})
	return defaultPool, defaultPoolErr
}

// Evaluate runs filter against root on the caller goroutine and returns the
// first output. root may be any JSON-encodable value or JSON text as []byte.
func Evaluate(ctx context.Context, root any, filter string, opts Options) (any, error) {
	return inlineRenderer().Evaluate(ctx, root, filter, opts)
}

// Render renders template against root on the caller goroutine. template is
// a Template or any value accepted by FromValue. Mappings render to *Object.
func Render(ctx context.Context, root any, template any, opts Options) (any, error) {
	return inlineRenderer().Render(ctx, root, template, opts)
}

// EvaluateConcurrent is Evaluate running on DefaultPool.
func EvaluateConcurrent(ctx context.Context, root any, filter string, opts Options) (any, error) {
	p, err := DefaultPool()
	if err != nil {
		return nil, err
	}
	return p.Evaluate(ctx, root, filter, opts)
}

// RenderConcurrent is Render running on DefaultPool.
func RenderConcurrent(ctx context.Context, root any, template any, opts Options) (any, error) {
	p, err := DefaultPool()
	if err != nil {
		return nil, err
	}
	return p.Render(ctx, root, template, opts)
}

// SetCacheSize is kept for compatibility. Cache sizes are set per pool with
// WithCacheSize; the call has no effect and returns n.
func SetCacheSize(n int) int { return n }
