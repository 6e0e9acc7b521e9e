package push

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "pushd/pkg/logx"
)

// Registry publishes through a Publisher once per step.
//
// Start, Stop and Close may be called from any goroutine. None of them return
// publish failures; those only reach the logger and the Metrics sink.
type Registry struct {
	cfg   StepConfig
	pub   Publisher
	delay *DelayCalculator
	guard *Guard
	log   logx.Logger

	publishTimeout time.Duration
	closeHooks     []func() error

	mu       sync.Mutex
	sched    *schedule
	draining []*schedule // cancelled, ticks possibly still running

	closing atomic.Bool
	closed  atomic.Bool
}

type Option func(*options)

type options struct {
	log            logx.Logger
	clock          Clock
	rand           func() float64
	guard          *Guard
	metrics        Metrics
	publishTimeout time.Duration
	closeHooks     []func() error
}

func WithLogger(log logx.Logger) Option { return func(o *options) { o.log = log } }

// WithClock sets the clock used to align the first publish to step boundaries.
func WithClock(c Clock) Option { return func(o *options) { o.clock = c } }

// WithRandom sets the jitter source; fn must return values in [0, 1).
func WithRandom(fn func() float64) Option { return func(o *options) { o.rand = fn } }

// WithGuard shares a Guard between registries, so a rebuilt Registry cannot
// overlap a publish still running on the one it replaced.
// WithMetrics is ignored when a Guard is supplied.
func WithGuard(g *Guard) Option { return func(o *options) { o.guard = g } }

func WithMetrics(m Metrics) Option { return func(o *options) { o.metrics = m } }

// WithPublishTimeout bounds the context passed to each Publish call. 0 means no deadline.
func WithPublishTimeout(d time.Duration) Option {
	return func(o *options) { o.publishTimeout = d }
}

// WithCloseHook registers fn to run once when the Registry is closed, after the final publish.
func WithCloseHook(fn func() error) Option {
	return func(o *options) {
		if fn != nil {
			o.closeHooks = append(o.closeHooks, fn)
		}
	}
}

// New validates cfg and returns a stopped Registry.
func New(cfg StepConfig, pub Publisher, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, &ConfigError{Field: "config", Reason: "is required"}
	}
	if err := cfg.RequireValid(); err != nil {
		return nil, err
	}
	if pub == nil {
		return nil, errors.New("push: publisher is required")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log.IsZero() {
		o.log = logx.Nop()
	}
	guard := o.guard
	if guard == nil {
		guard = NewGuard(o.log, o.metrics)
	}

	return &Registry{
		cfg:            cfg,
		pub:            pub,
		delay:          NewDelayCalculator(o.clock, o.rand),
		guard:          guard,
		log:            o.log,
		publishTimeout: o.publishTimeout,
		closeHooks:     o.closeHooks,
	}, nil
}

// Name returns the publisher's name.
func (r *Registry) Name() string { return r.pub.Name() }

// Config returns the StepConfig the Registry was built with.
func (r *Registry) Config() StepConfig { return r.cfg }

// Guard returns the publish gate, for sharing with a replacement Registry.
func (r *Registry) Guard() *Guard { return r.guard }

// Start is StartWith(DefaultWorkerFactory).
func (r *Registry) Start() { r.StartWith(DefaultWorkerFactory) }

// StartWith installs the recurring publish trigger on one worker created by f.
//
// A running schedule is stopped first. Nothing is scheduled when the config is disabled.
func (r *Registry) StartWith(f WorkerFactory) {
	if f == nil {
		f = DefaultWorkerFactory
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopLocked()
	if !r.cfg.Enabled() {
		r.log.Debug("publishing disabled; not scheduling", logx.String("exporter", r.pub.Name()))
		return
	}

	step := r.cfg.Step()
	r.log.Info("publishing metrics", logx.String("exporter", r.pub.Name()), logx.String("every", step.String()))

	delay := r.delay.InitialDelay(step)
	first := time.Now().Add(delay)

	c := cron.New(cron.WithLogger(cronLogger{log: r.log}))
	h := newSchedule("push.publisher."+r.pub.Name(), c)
	c.Schedule(fixedRate{first: first, period: step}, h.job(func() { r.PublishSafely() }))
	r.sched = h
	f.Go(h.name, h.run)

	r.log.Debug("publish schedule installed",
		logx.String("exporter", r.pub.Name()),
		logx.Duration("initial_delay", delay),
		logx.Time("first", first),
	)
}

// Stop cancels the recurring trigger and releases its worker. Once it returns
// no tick starts a new publish; a publish already in flight is not waited
// for (see Drain). Safe to call when stopped.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Registry) stopLocked() {
	if r.sched == nil {
		return
	}
	r.sched.cancel()
	r.draining = append(r.draining, r.sched)
	r.sched = nil
	r.log.Debug("publish schedule stopped", logx.String("exporter", r.pub.Name()))
}

// Drain waits until every tick admitted before the last Stop has finished
// publishing, or ctx is done.
func (r *Registry) Drain(ctx context.Context) error {
	r.mu.Lock()
	hs := r.draining
	r.draining = nil
	r.mu.Unlock()

	for i, h := range hs {
		if err := h.wait(ctx); err != nil {
			r.mu.Lock()
			r.draining = append(hs[i:len(hs):len(hs)], r.draining...)
			r.mu.Unlock()
			return err
		}
	}
	return nil
}

// Scheduled reports whether a recurring trigger is installed.
func (r *Registry) Scheduled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sched != nil
}

// Close stops the trigger and, if publishing is enabled, makes one last
// guarded publish. The final publish is skipped (not queued) when another one
// is in flight. Scheduled publishes still running are waited for before the
// close hooks and the publisher's own Close run. Only the first call does any
// of this; the hooks' errors are logged.
func (r *Registry) Close() {
	if !r.closing.CompareAndSwap(false, true) {
		return
	}
	r.Stop()
	if r.cfg.Enabled() {
		r.PublishSafely()
	}
	_ = r.Drain(context.Background())

	for _, fn := range r.closeHooks {
		if err := fn(); err != nil {
			r.log.Warn("close hook failed", logx.String("exporter", r.pub.Name()), logx.Err(err))
		}
	}
	if c, ok := r.pub.(io.Closer); ok {
		if err := c.Close(); err != nil {
			r.log.Warn("exporter close failed", logx.String("exporter", r.pub.Name()), logx.Err(err))
		}
	}
	r.closed.Store(true)
	r.log.Debug("registry closed", logx.String("exporter", r.pub.Name()))
}

// Closed reports whether Close has completed its shutdown sequence.
func (r *Registry) Closed() bool { return r.closed.Load() }

// IsPublishing reports whether a publish is in flight.
func (r *Registry) IsPublishing() bool { return r.guard.Running() }

// PublishSafely runs one guarded publish now and reports whether it ran.
// It returns false without waiting when another publish is in flight.
func (r *Registry) PublishSafely() bool {
	return r.guard.TryRun(r.pub.Name(), r.publishOnce)
}

func (r *Registry) publishOnce() error {
	ctx := context.Background()
	if r.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.publishTimeout)
		defer cancel()
	}
	return r.pub.Publish(ctx)
}
