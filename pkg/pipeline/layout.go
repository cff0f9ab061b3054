package pipeline

import "sync"

// Type discriminates how a PipelineLayout is used (§3).
type Type int

const (
	TypeNamed Type = iota
	TypeListen
	TypeRead
	TypeTask
)

func (t Type) String() string {
	switch t {
	case TypeNamed:
		return "named"
	case TypeListen:
		return "listen"
	case TypeRead:
		return "read"
	case TypeTask:
		return "task"
	default:
		return "unknown"
	}
}

// DefaultMaxIdlePipelines bounds how many freed Pipelines a layout keeps in
// its pool before surplus instances are discarded (§4.3 "capped at an
// implementation-defined size").
const DefaultMaxIdlePipelines = 64

// PipelineLayout is an immutable-after-Bind template: an ordered sequence
// of Filter prototypes plus a pool of recycled Pipeline instances and a set
// of live ones (§3, §4.3).
type PipelineLayout struct {
	mu sync.Mutex

	name   string
	typ    Type
	module string

	prototypes []Filter
	children   []*PipelineLayout

	bound bool

	pool      []*Pipeline
	maxPool   int
	allocated int64
	live      map[*Pipeline]struct{}

	metrics MetricsHook
	tracer  SpanHook
}

// MetricsHook lets an observer (internal/metrics) learn about allocation
// traffic on a PipelineLayout without this package importing anything
// Prometheus-specific.
type MetricsHook interface {
	Alloc(layout string)
	Free(layout string)
	PoolHit(layout string)
}

// SetMetricsHook installs the observer notified by Alloc/Free. Passing nil
// disables notification.
func (l *PipelineLayout) SetMetricsHook(hook MetricsHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.metrics = hook
}

// SpanHook lets an observer (internal/telemetry) wrap a Pipeline's lifetime
// in a trace span without this package importing OpenTelemetry directly.
// StartAllocSpan is called as Alloc hands out p; the returned func is
// called when p is returned via Free.
type SpanHook interface {
	StartAllocSpan(layout string) func()
}

// SetSpanHook installs the observer notified around each Alloc/Free pair.
// Passing nil disables tracing.
func (l *PipelineLayout) SetSpanHook(hook SpanHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracer = hook
}

// NewPipelineLayout creates an unbound layout. Filters and children must be
// appended before Bind is called; afterward the filter sequence is frozen.
func NewPipelineLayout(module, name string, typ Type) *PipelineLayout {
	return &PipelineLayout{
		name:    name,
		typ:     typ,
		module:  module,
		maxPool: DefaultMaxIdlePipelines,
		live:    make(map[*Pipeline]struct{}),
	}
}

// Name, Type, Module expose the layout's identity.
func (l *PipelineLayout) Name() string   { return l.name }
func (l *PipelineLayout) Type() Type     { return l.typ }
func (l *PipelineLayout) Module() string { return l.module }

// SetMaxPool overrides the default idle-pipeline cap. Must be called before
// the pool grows past the new value to take effect immediately; safe to
// call at any time otherwise.
func (l *PipelineLayout) SetMaxPool(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxPool = n
}

// Append adds a filter prototype to the end of the (still unbound) chain.
// Panics if called after Bind — the invariant is that a bound layout's
// filter sequence never changes.
func (l *PipelineLayout) Append(proto Filter) *PipelineLayout {
	if l.bound {
		panic("pipeline: Append called on a bound PipelineLayout")
	}
	l.prototypes = append(l.prototypes, proto)
	return l
}

// AddChild registers a sub-pipeline layout and returns its integer handle,
// resolved at bind time against the owning layout's child table (Design
// Note "Sub-pipeline factories indexed by integer").
func (l *PipelineLayout) AddChild(child *PipelineLayout) int {
	l.children = append(l.children, child)
	return len(l.children) - 1
}

// Child resolves a sub-pipeline layout by its integer handle.
func (l *PipelineLayout) Child(index int) (*PipelineLayout, error) {
	if index < 0 || index >= len(l.children) {
		return nil, ErrUnknownChild
	}
	return l.children[index], nil
}

// Bind freezes the filter sequence. Calling Bind twice returns
// ErrAlreadyBound.
func (l *PipelineLayout) Bind() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.bound {
		return ErrAlreadyBound
	}
	l.bound = true
	return nil
}

// Bound reports whether Bind has been called.
func (l *PipelineLayout) Bound() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bound
}

// Allocated returns the lifetime count of Pipelines constructed or reused
// from the pool.
func (l *PipelineLayout) Allocated() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allocated
}

// Active returns the number of currently-live (not pooled) Pipelines.
func (l *PipelineLayout) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.live)
}

// Alloc instantiates (or reuses from the pool) a Pipeline bound to ctx,
// forwarding its final output to sink (§4.3 step 1-3).
func (l *PipelineLayout) Alloc(ctx *Context, sink Input) (*Pipeline, error) {
	l.mu.Lock()
	if !l.bound {
		l.mu.Unlock()
		return nil, ErrUnboundLayout
	}

	var p *Pipeline
	hit := false
	if n := len(l.pool); n > 0 {
		p = l.pool[n-1]
		l.pool = l.pool[:n-1]
		hit = true
	}
	l.allocated++
	hook := l.metrics
	tracer := l.tracer
	l.mu.Unlock()

	if p == nil {
		p = newPipeline(l)
	}
	p.bind(ctx, sink)
	if tracer != nil {
		p.endSpan = tracer.StartAllocSpan(l.name)
	}

	l.mu.Lock()
	l.live[p] = struct{}{}
	l.mu.Unlock()

	if hook != nil {
		hook.Alloc(l.name)
		if hit {
			hook.PoolHit(l.name)
		}
	}

	return p, nil
}

// Free drives reset() on every filter (reverse order), unlinks the output,
// and returns the Pipeline to the pool — or destroys it if the pool is at
// capacity (§4.3 step "free").
func (l *PipelineLayout) Free(p *Pipeline) {
	if p == nil || p.layout != l {
		return
	}

	p.resetFilters()

	if p.endSpan != nil {
		p.endSpan()
		p.endSpan = nil
	}

	l.mu.Lock()
	delete(l.live, p)
	if len(l.pool) < l.maxPool {
		l.pool = append(l.pool, p)
	}
	hook := l.metrics
	l.mu.Unlock()

	if hook != nil {
		hook.Free(l.name)
	}
}

// Shutdown signals every live Pipeline to propagate a graceful StreamEnd
// through its head (§4.3). Pipelines already freed are unaffected; a
// Pipeline mid-shutdown is not automatically recycled until Free is called
// on it once its in-flight events drain.
func (l *PipelineLayout) Shutdown() {
	l.mu.Lock()
	live := make([]*Pipeline, 0, len(l.live))
	for p := range l.live {
		live = append(live, p)
	}
	l.mu.Unlock()

	for _, p := range live {
		p.shutdown()
	}
}
