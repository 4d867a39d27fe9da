package jqrender

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fileconfig "github.com/ygrebnov/jqrender/config"
	"github.com/ygrebnov/jqrender/metrics"
)

func newTestPool(t *testing.T, opts ...Option) *Pool {
	t.Helper()
	p, err := NewPool(opts...)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

// controlledEvaluator blocks on "block" until release is closed, panics on
// "panic" and delegates everything else to gojq.
type controlledEvaluator struct {
	gojq    *GoJQ
	started chan string
	release chan struct{}
}

func newControlledEvaluator(t *testing.T) *controlledEvaluator {
	return &controlledEvaluator{
		gojq:    newTestGoJQ(t),
		started: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (c *controlledEvaluator) Evaluate(ctx context.Context, input any, filter string, enableEnv bool) (any, error) {
	switch filter {
	case "block":
		c.started <- filter
		<-c.release
		return "released", nil
	case "panic":
		panic("evaluator blew up")
	}
	return c.gojq.Evaluate(ctx, input, filter, enableEnv)
}

func waitStarted(t *testing.T, c *controlledEvaluator) {
	t.Helper()
	select {
	case <-c.started:
	case <-time.After(2 * time.Second):
		t.Fatal("evaluation did not start")
	}
}

type dispatchResult struct {
	v   any
	err error
}

func dispatchAsync(p *Pool, req Request) <-chan dispatchResult {
	ch := make(chan dispatchResult, 1)
	go func() {
		v, err := p.Dispatch(context.Background(), req)
		ch <- dispatchResult{v, err}
	}()
	return ch
}

func recvResult(t *testing.T, ch <-chan dispatchResult) dispatchResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not return")
		return dispatchResult{}
	}
}

// lockedBuffer collects log output written from worker goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *lockedBuffer) {
	buf := &lockedBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

func TestNewPool_Defaults(t *testing.T) {
	p := newTestPool(t)
	assert.Equal(t, DefaultWorkers(), p.Size())
	assert.Equal(t, DefaultTimeout, p.cfg.DefaultTimeout)
	assert.Equal(t, DefaultQueueSize, p.cfg.QueueSize)
	assert.NotEmpty(t, p.ID())
	assert.Zero(t, p.Pending())
}

func TestNewPool_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		msg  string
	}{
		{"workers", WithWorkers(0), "WithWorkers requires n > 0"},
		{"queue size", WithQueueSize(-1), "WithQueueSize requires n >= 0"},
		{"timeout", WithDefaultTimeout(0), "WithDefaultTimeout requires d > 0"},
		{"cache size", WithCacheSize(-5), "WithCacheSize requires n > 0"},
		{"evaluator", WithEvaluator(nil), "WithEvaluator requires a non-nil evaluator"},
		{"file config", WithConfig(fileconfig.Config{Workers: -1}), "workers must be >= 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPool(tt.opt)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestNewPool_Options(t *testing.T) {
	ev := EvaluatorFunc(func(context.Context, any, string, bool) (any, error) { return "custom", nil })
	p := newTestPool(t,
		nil,
		WithWorkers(3),
		WithQueueSize(0),
		WithDefaultTimeout(time.Second),
		WithEvaluator(ev),
		WithMetrics(nil),
		WithLogger(nil),
	)
	assert.Equal(t, 3, p.Size())
	assert.Equal(t, time.Second, p.cfg.DefaultTimeout)

	v, err := p.Evaluate(context.Background(), nil, ".", Options{ThrowOnError: true})
	require.NoError(t, err)
	assert.Equal(t, "custom", v)
}

func TestNewPool_WithConfig(t *testing.T) {
	c, err := fileconfig.FromYAML([]byte("workers: 2\ndefault_timeout: 250ms\ncache_size: 8\n"))
	require.NoError(t, err)

	p := newTestPool(t, WithWorkers(5), WithConfig(c))
	assert.Equal(t, 2, p.Size())
	assert.Equal(t, 250*time.Millisecond, p.cfg.DefaultTimeout)
	assert.Equal(t, 8, p.cfg.CacheSize)
	assert.Equal(t, DefaultQueueSize, p.cfg.QueueSize, "zero fields keep the current value")
}

func TestPool_EvaluateAndRender(t *testing.T) {
	p := newTestPool(t, WithWorkers(2))
	ctx := context.Background()
	root := map[string]any{"user": map[string]any{"name": "ada", "langs": []any{"go", "jq"}}}

	v, err := p.Evaluate(ctx, root, ".user.name | ascii_upcase", Options{ThrowOnError: true})
	require.NoError(t, err)
	assert.Equal(t, "ADA", v)

	tmpl := `{"name": "{{ .user.name }}", "{{ .user.langs[0] }}": true, "all": ["{{ .user.langs | join(',') }}", 1], "{{ spreadValue() }}": {"x": "{{ 1 + 1 }}"}}`
	parsed, err := ParseTemplate([]byte(tmpl))
	require.NoError(t, err)
	v, err = p.Render(ctx, root, parsed, Options{ThrowOnError: true})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"ada","go":true,"all":["go,jq",1],"x":2}`, jsonOf(t, v))

	_, err = p.Evaluate(ctx, root, "foo", Options{ThrowOnError: true})
	assert.ErrorIs(t, err, ErrCompile)
	id, ok := ExtractRequestID(err)
	assert.True(t, ok)
	assert.NotZero(t, id)

	v, err = p.Evaluate(ctx, root, "foo", Options{})
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = p.Evaluate(ctx, root, " ", Options{ThrowOnError: true})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestPool_ConcurrentCallers(t *testing.T) {
	p := newTestPool(t, WithWorkers(4))
	const callers = 500
	root := map[string]any{"a": 20, "b": 22}

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := p.Evaluate(context.Background(), root, fmt.Sprintf(".a + .b + %d", i), Options{ThrowOnError: true})
			if err != nil {
				errs <- err
				return
			}
			got, err := marshalJSON(v)
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprint(42 + i); string(got) != want {
				errs <- fmt.Errorf("caller %d: got %s, want %s", i, got, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Zero(t, p.Pending())
}

// Run with -race: sibling expressions of one render share the normalized root.
func TestPool_RenderSiblingsShareRoot(t *testing.T) {
	p := newTestPool(t, WithWorkers(8))
	root := make(map[string]any, 5000)
	for i := range 5000 {
		root[fmt.Sprintf("k%d", i)] = i
	}
	tmpl := make([]any, 256)
	for i := range tmpl {
		tmpl[i] = "{{ .k1 }}"
	}

	v, err := p.Render(context.Background(), root, tmpl, Options{ThrowOnError: true})
	require.NoError(t, err)
	out, ok := v.([]any)
	require.True(t, ok)
	require.Len(t, out, len(tmpl))
	for _, x := range out {
		assert.Equal(t, "1", jsonOf(t, x))
	}
}

func TestPool_ConcurrentRendersSameFilter(t *testing.T) {
	p := newTestPool(t, WithWorkers(4))
	const callers = 500
	root := map[string]any{"a": 20, "b": 22, "list": []any{1, 2}}
	tmpl := map[string]any{"x": "{{ .a + .b }}", "y": "{{ .a + .b }}", "s": "sum={{ .list | add }}"}

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := p.Render(context.Background(), root, tmpl, Options{ThrowOnError: true})
			if err != nil {
				errs <- err
				return
			}
			got, err := marshalJSON(v)
			if err != nil {
				errs <- err
				return
			}
			if want := `{"s":"sum=3","x":42,"y":42}`; string(got) != want {
				errs <- fmt.Errorf("got %s, want %s", got, want)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Zero(t, p.Pending())
}

func TestPool_Timeout(t *testing.T) {
	ce := newControlledEvaluator(t)
	mp := metrics.NewBasicProvider()
	logger, logs := newTestLogger()
	p := newTestPool(t, WithWorkers(1), WithEvaluator(ce), WithMetrics(mp), WithLogger(logger))

	start := time.Now()
	_, err := p.Evaluate(context.Background(), nil, "block", Options{ThrowOnError: true, Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.EqualError(t, err, "jq: timeout after 50ms")
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	worker, ok := ExtractWorkerID(err)
	assert.True(t, ok)
	assert.Equal(t, 0, worker)
	assert.Equal(t, int64(1), mp.CounterValue(MetricTimeouts))
	assert.Zero(t, p.Pending())

	// the reply that arrives afterwards is discarded
	close(ce.release)
	assert.Eventually(t, func() bool { return mp.CounterValue(MetricLateReplies) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return strings.Contains(logs.String(), "discarding late reply") }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, logs.String(), "request timed out")

	// suppressed by default
	v, err := p.Evaluate(context.Background(), nil, "block", Options{Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "released", v)
}

func TestPool_CallerCancellation(t *testing.T) {
	ce := newControlledEvaluator(t)
	p := newTestPool(t, WithWorkers(1), WithEvaluator(ce))
	defer close(ce.release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-ce.started
		cancel()
	}()
	_, err := p.Evaluate(ctx, nil, "block", Options{ThrowOnError: true})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.EqualError(t, err, "jq: timeout: evaluation cancelled")
}

func TestPool_TimeoutBoundsEvaluation(t *testing.T) {
	p := newTestPool(t, WithWorkers(1), WithDefaultTimeout(50*time.Millisecond))

	start := time.Now()
	_, err := p.Evaluate(context.Background(), nil, "last(range(1e15))", Options{ThrowOnError: true})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	_, err = p.Evaluate(context.Background(), nil, "last(range(1e15))", Options{ThrowOnError: true, Timeout: 100 * time.Millisecond})
	assert.EqualError(t, err, "jq: timeout after 100ms")

	// the worker is free again
	v, err := p.Evaluate(context.Background(), nil, "1 + 1", Options{ThrowOnError: true})
	require.NoError(t, err)
	assert.Equal(t, "2", jsonOf(t, v))
}

func TestPool_WorkerFailure(t *testing.T) {
	ce := newControlledEvaluator(t)
	mp := metrics.NewBasicProvider()
	logger, logs := newTestLogger()
	p := newTestPool(t, WithWorkers(2), WithEvaluator(ce), WithMetrics(mp), WithLogger(logger))

	// worker 0 holds a request while worker 1 crashes
	blocked := dispatchAsync(p, Request{Filter: "block"})
	waitStarted(t, ce)

	_, err := p.Dispatch(context.Background(), Request{Filter: "panic"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkerFailed)
	assert.ErrorIs(t, err, ErrRuntime)
	assert.Contains(t, err.Error(), "evaluator blew up")
	worker, ok := ExtractWorkerID(err)
	assert.True(t, ok)
	assert.Equal(t, 1, worker)

	assert.Equal(t, 1, p.Pending(), "the other worker's request is untouched")
	close(ce.release)
	r := recvResult(t, blocked)
	require.NoError(t, r.err)
	assert.Equal(t, "released", r.v)

	// both workers keep serving
	for i := 0; i < 4; i++ {
		v, err := p.Dispatch(context.Background(), Request{Filter: fmt.Sprintf("%d", i)})
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprint(i), jsonOf(t, v))
	}
	assert.Equal(t, int64(1), mp.CounterValue(MetricWorkerFailures))
	assert.Contains(t, logs.String(), "worker failed, restarting")
}

func TestPool_WorkerFailureFailsQueuedRequests(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	ev := EvaluatorFunc(func(_ context.Context, _ any, filter string, _ bool) (any, error) {
		if filter == "panic" {
			close(started)
			<-release
			panic("crash")
		}
		return filter, nil
	})
	p := newTestPool(t, WithWorkers(1), WithQueueSize(4), WithEvaluator(ev))

	first := dispatchAsync(p, Request{Filter: "panic"})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("evaluation did not start")
	}
	second := dispatchAsync(p, Request{Filter: "queued"})
	require.Eventually(t, func() bool { return p.Pending() == 2 }, time.Second, time.Millisecond)
	close(release)

	for _, ch := range []<-chan dispatchResult{first, second} {
		r := recvResult(t, ch)
		assert.ErrorIs(t, r.err, ErrWorkerFailed)
	}

	v, err := p.Dispatch(context.Background(), Request{Filter: "after"})
	require.NoError(t, err)
	assert.Equal(t, "after", v)
}

func TestPool_Close(t *testing.T) {
	ce := newControlledEvaluator(t)
	logger, logs := newTestLogger()
	p, err := NewPool(WithWorkers(1), WithQueueSize(4), WithEvaluator(ce), WithLogger(logger))
	require.NoError(t, err)

	running := dispatchAsync(p, Request{Filter: "block"})
	waitStarted(t, ce)
	queued := dispatchAsync(p, Request{Filter: "1"})
	require.Eventually(t, func() bool { return p.Pending() == 2 }, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned before the running evaluation finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(ce.release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	r := recvResult(t, running)
	require.NoError(t, r.err)
	assert.Equal(t, "released", r.v)

	r = recvResult(t, queued)
	assert.ErrorIs(t, r.err, ErrPoolClosed)
	assert.Zero(t, p.Pending())

	_, err = p.Dispatch(context.Background(), Request{Filter: "1"})
	assert.ErrorIs(t, err, ErrPoolClosed)

	// pool closure is never suppressed
	_, err = p.Evaluate(context.Background(), nil, "1", Options{})
	assert.ErrorIs(t, err, ErrPoolClosed)

	p.Close()
	assert.Contains(t, logs.String(), `"abandoned_requests":1`)
	assert.Equal(t, 1, strings.Count(logs.String(), "evaluation pool closed"))
}

func TestPool_Metrics(t *testing.T) {
	mp := metrics.NewBasicProvider()
	p := newTestPool(t, WithWorkers(2), WithMetrics(mp))

	for i := 0; i < 3; i++ {
		_, err := p.Evaluate(context.Background(), map[string]any{"i": i}, ".i", Options{ThrowOnError: true})
		require.NoError(t, err)
	}

	assert.Equal(t, int64(3), mp.CounterValue(MetricRequests))
	assert.Equal(t, int64(3), mp.CounterValue(MetricCompleted))
	assert.Zero(t, mp.CounterValue(MetricTimeouts))
	assert.Zero(t, mp.UpDownValue(MetricInflight))
	snap := mp.HistogramSnapshot(MetricDuration)
	assert.Equal(t, int64(3), snap.Count)
	assert.GreaterOrEqual(t, snap.Min, 0.0)
	assert.Equal(t, "Evaluation requests submitted to the pool.", mp.Description(MetricRequests))
}

func TestPool_StartLog(t *testing.T) {
	logger, logs := newTestLogger()
	p := newTestPool(t, WithWorkers(3), WithLogger(logger))

	out := logs.String()
	assert.Contains(t, out, "evaluation pool started")
	assert.Contains(t, out, `"workers":3`)
	assert.Contains(t, out, `"pool_id":"`+p.ID()+`"`)
}

func TestPool_ErrorFormatting(t *testing.T) {
	p := newTestPool(t, WithWorkers(1))

	_, err := p.Evaluate(context.Background(), nil, "error(\"boom\")", Options{ThrowOnError: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRuntime))

	id, _ := ExtractRequestID(err)
	assert.Equal(t, fmt.Sprintf("request(id=%d,worker=0): %s", id, err.Error()), fmt.Sprintf("%+v", err))
	assert.Equal(t, err.Error(), fmt.Sprintf("%v", err))
}

func TestPool_PrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := newTestPool(t, WithWorkers(1), WithMetrics(metrics.NewPrometheusProvider(reg)))

	_, err := p.Evaluate(context.Background(), nil, "1", Options{ThrowOnError: true})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, fam := range families {
		if fam.GetName() != MetricCompleted {
			continue
		}
		found = true
		require.Len(t, fam.GetMetric(), 1)
		m := fam.GetMetric()[0]
		assert.Equal(t, 1.0, m.GetCounter().GetValue())
		require.Len(t, m.GetLabel(), 1)
		assert.Equal(t, "pool_id", m.GetLabel()[0].GetName())
		assert.Equal(t, p.ID(), m.GetLabel()[0].GetValue())
	}
	assert.True(t, found, "%s not gathered", MetricCompleted)
}
