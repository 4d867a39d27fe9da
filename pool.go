package jqrender

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ygrebnov/jqrender/metrics"
	"github.com/ygrebnov/jqrender/pool"
)

// Instrument names recorded by Pool.
const (
	MetricRequests       = "jqrender_requests_total"
	MetricCompleted      = "jqrender_requests_completed_total"
	MetricTimeouts       = "jqrender_requests_timeout_total"
	MetricWorkerFailures = "jqrender_worker_failures_total"
	MetricLateReplies    = "jqrender_late_replies_total"
	MetricInflight       = "jqrender_requests_inflight"
	MetricDuration       = "jqrender_request_duration_seconds"
)

type instruments struct {
	requests       metrics.Counter
	completed      metrics.Counter
	timeouts       metrics.Counter
	workerFailures metrics.Counter
	lateReplies    metrics.Counter
	inflight       metrics.UpDownCounter
	duration       metrics.Histogram
}

func newInstruments(p metrics.Provider, poolID string) instruments {
	labels := metrics.WithLabels(map[string]string{"pool_id": poolID})
	return instruments{
		requests:       p.Counter(MetricRequests, metrics.WithDescription("Evaluation requests submitted to the pool."), labels),
		completed:      p.Counter(MetricCompleted, metrics.WithDescription("Evaluation requests answered by a worker."), labels),
		timeouts:       p.Counter(MetricTimeouts, metrics.WithDescription("Evaluation requests resolved by their deadline."), labels),
		workerFailures: p.Counter(MetricWorkerFailures, metrics.WithDescription("Worker crashes."), labels),
		lateReplies:    p.Counter(MetricLateReplies, metrics.WithDescription("Worker replies discarded after resolution."), labels),
		inflight:       p.UpDownCounter(MetricInflight, metrics.WithDescription("Evaluation requests awaiting a reply."), labels),
		duration: p.Histogram(MetricDuration,
			metrics.WithDescription("Time from submission to worker reply."),
			metrics.WithUnit("s"),
			metrics.WithBuckets(metrics.LatencyBuckets...),
			labels,
		),
	}
}

// Pool evaluates filters on a fixed set of persistent workers. Requests are
// assigned round robin, correlated by id and bounded by a deadline.
// A Pool is safe for concurrent use and must be closed with Close.
type Pool struct {
	// noCopy prevents accidental copying of the pool.
	//go:nocopy
	nc noCopy

	id     string
	cfg    config
	logger *slog.Logger
	m      instruments

	workers  pool.Pool[*worker]
	pending  *pendingTable
	seq      atomic.Uint64
	renderer *Renderer

	closed    atomic.Bool
	closing   chan struct{}
	workersWG sync.WaitGroup
	lifecycle *lifecycleCoordinator
}

// noCopy is a vet-recognized marker to discourage copying types with this field embedded.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// NewPool starts a pool configured by opts.
func NewPool(opts ...Option) (*Pool, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if cfg.Evaluator == nil {
		ev, err := NewGoJQ(cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		cfg.Evaluator = ev
	}

	p := &Pool{
		id:      uuid.NewString(),
		cfg:     cfg,
		pending: newPendingTable(),
		closing: make(chan struct{}),
	}
	if cfg.Logger != nil {
		p.logger = cfg.Logger.With(slog.String("pool_id", p.id))
	}
	p.m = newInstruments(cfg.Metrics, p.id)
	p.renderer = NewConcurrentRenderer(p)

	members := make([]*worker, cfg.Workers)
	for i := range members {
		members[i] = newWorker(i, cfg.QueueSize, cfg.Evaluator, p)
	}
	p.workers = pool.NewRoundRobin(members)

	p.workersWG.Add(len(members))
	for _, w := range members {
		go func() {
			defer p.workersWG.Done()
			w.run(p.closing)
		}()
	}

	p.lifecycle = newLifecycleCoordinator(
		func() { p.closed.Store(true) },
		p.closing,
		&p.workersWG,
		p.failAll,
		func(abandoned int) { logPoolClosed(p.logger, abandoned) },
	)

	logPoolStarted(p.logger, cfg.Workers, cfg.QueueSize, cfg.DefaultTimeout)
	return p, nil
}

// ID returns the pool instance id used in logs and metric labels.
func (p *Pool) ID() string { return p.id }

// Size returns the number of workers.
func (p *Pool) Size() int { return p.workers.Len() }

// Pending returns the number of requests awaiting a reply.
func (p *Pool) Pending() int { return p.pending.len() }

// Evaluate runs filter against root on the pool.
func (p *Pool) Evaluate(ctx context.Context, root any, filter string, opts Options) (any, error) {
	return p.renderer.Evaluate(ctx, root, filter, opts)
}

// Render renders template against root, evaluating expressions on the pool.
// Sibling elements and members are rendered concurrently.
func (p *Pool) Render(ctx context.Context, root any, template any, opts Options) (any, error) {
	return p.renderer.Render(ctx, root, template, opts)
}

// Close stops the workers and fails requests that are still pending with
// ErrPoolClosed. Evaluations already running are allowed to finish.
func (p *Pool) Close() { p.lifecycle.Close() }

// Dispatch implements Dispatcher. It blocks until a worker replies, the
// request deadline passes, ctx is done or the pool is closed.
func (p *Pool) Dispatch(ctx context.Context, req Request) (any, error) {
	if p.closed.Load() {
		return nil, newRequestTaggedError(ErrPoolClosed, 0, -1)
	}
	filter, err := prepareFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w := p.workers.Next()
	pr := &pendingRequest{
		id:      p.seq.Add(1),
		worker:  w.id,
		timeout: timeout,
		started: time.Now(),
		done:    make(chan outcome, 1),
	}
	p.pending.add(pr)
	if p.closed.Load() {
		if _, ok := p.pending.take(pr.id); ok {
			return nil, newRequestTaggedError(ErrPoolClosed, pr.id, pr.worker)
		}
		o := <-pr.done
		return o.value, o.err
	}

	p.m.requests.Add(1)
	p.m.inflight.Add(1)
	defer p.m.inflight.Add(-1)

	j := job{ctx: rctx, id: pr.id, req: Request{Input: req.Input, Filter: filter, EnableEnv: req.EnableEnv}}
	select {
	case w.jobs <- j:
	case o := <-pr.done:
		return o.value, o.err
	case <-rctx.Done():
		return p.expire(rctx, pr)
	}

	select {
	case o := <-pr.done:
		return o.value, o.err
	case <-rctx.Done():
		return p.expire(rctx, pr)
	}
}

// expire resolves pr by its deadline unless a reply won the race.
func (p *Pool) expire(rctx context.Context, pr *pendingRequest) (any, error) {
	if _, ok := p.pending.take(pr.id); !ok {
		o := <-pr.done
		return o.value, o.err
	}
	p.m.timeouts.Add(1)
	logRequestTimedOut(p.logger, pr.id, pr.worker, pr.timeout)
	return nil, newRequestTaggedError(timeoutError(rctx, nil, pr.timeout), pr.id, pr.worker)
}

func (p *Pool) isPending(id uint64) bool { return p.pending.has(id) }

func (p *Pool) complete(j job, worker int, v any, err error) {
	pr, ok := p.pending.take(j.id)
	if !ok {
		p.m.lateReplies.Add(1)
		logLateReply(p.logger, j.id, worker)
		return
	}
	p.m.completed.Add(1)
	p.m.duration.Record(time.Since(pr.started).Seconds())

	if err != nil {
		pr.done <- outcome{err: newRequestTaggedError(classify(j.ctx, err, pr.timeout), pr.id, worker)}
		return
	}
	pr.done <- outcome{value: v}
}

func (p *Pool) fail(worker int, cause error) {
	owned := p.pending.takeOwnedBy(worker)
	p.m.workerFailures.Add(1)
	logWorkerFailed(p.logger, worker, len(owned), cause)

	for _, pr := range owned {
		e := newError(KindRuntime, cause, "jq: error: %v", cause)
		pr.done <- outcome{err: newRequestTaggedError(e, pr.id, worker)}
	}
}

func (p *Pool) failAll() int {
	abandoned := p.pending.takeAll()
	for _, pr := range abandoned {
		pr.done <- outcome{err: newRequestTaggedError(ErrPoolClosed, pr.id, pr.worker)}
	}
	return len(abandoned)
}
