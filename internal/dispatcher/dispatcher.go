package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/urbandriving/engine/internal/agent"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

// ErrAgentPanic wraps a panic raised inside a policy evaluated on a worker.
var ErrAgentPanic = errors.New("agent panicked")

// Task is one policy evaluation.
type Task struct {
	Ref     state.Ref
	Agent   agent.Agent
	Request agent.Request
}

// Future is the pending result of a submitted task. A future whose evaluation
// reads the caller's state must not return before the evaluation has; ctx only
// bounds waiting on a transport.
type Future interface {
	Wait(ctx context.Context) (core.Action, error)
}

// Executor runs tasks. The stepper depends only on this, not on where tasks run.
type Executor interface {
	Submit(ctx context.Context, t Task) Future
	Close() error
}

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures a Dispatcher.
type Option func(*config)

type config struct {
	workers int
	logged  bool
}

// Workers evaluates tasks on up to n goroutines. Zero or less evaluates inline on
// the submitting goroutine.
func Workers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// Logged adds debug logging around every evaluation.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

// Dispatcher is the in-process Executor.
type Dispatcher struct {
	logger Logger
	logged bool
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	// OTEL metrics
	inflight      atomic.Int64
	inflightGauge metric.Int64ObservableGauge
	processed     metric.Int64Counter
	failed        metric.Int64Counter
	registration  metric.Registration
}

var _ Executor = (*Dispatcher)(nil)

// New creates a Dispatcher with the given logger.
// Uses the global OTel meter for metrics (no-op if not configured).
func New(logger Logger, opts ...Option) (*Dispatcher, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	d := &Dispatcher{logger: logger, logged: cfg.logged}
	if cfg.workers > 0 {
		d.sem = semaphore.NewWeighted(int64(cfg.workers))
	}

	if err := d.initMetrics(); err != nil {
		return nil, err
	}
	return d, nil
}

// Concurrent reports whether tasks run on worker goroutines.
func (d *Dispatcher) Concurrent() bool {
	return d.sem != nil
}

// Submit schedules a task. With workers it blocks only while every worker is
// busy; inline it evaluates before returning.
func (d *Dispatcher) Submit(ctx context.Context, t Task) Future {
	if d.sem == nil {
		a, err := d.run(ctx, t)
		return resolved(a, err)
	}
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return resolved(core.Action{}, err)
	}
	f := &future{done: make(chan struct{})}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.action, f.err = core.Action{}, fmt.Errorf("%s: %w: %v", t.Ref, ErrAgentPanic, r)
			}
		}()
		f.action, f.err = d.run(ctx, t)
	}()
	return f
}

func (d *Dispatcher) run(ctx context.Context, t Task) (core.Action, error) {
	d.inflight.Add(1)
	defer d.inflight.Add(-1)

	groupAttr := metric.WithAttributes(attribute.String("group", t.Ref.Group.String()))
	start := time.Now()
	if d.logged {
		d.logger.Debug("evaluating policy", "ref", t.Ref.String())
	}

	a, err := t.Agent.EvalPolicy(ctx, t.Request)

	d.processed.Add(ctx, 1, groupAttr)
	if err != nil {
		d.failed.Add(ctx, 1, groupAttr)
		if d.logged {
			d.logger.Error("policy failed", "ref", t.Ref.String(), "duration", time.Since(start), "error", err)
		}
		return core.Action{}, fmt.Errorf("%s: %w", t.Ref, err)
	}
	if d.logged {
		d.logger.Debug("policy complete", "ref", t.Ref.String(), "action", a.Kind.String(), "duration", time.Since(start))
	}
	return a, nil
}

// Close waits for running tasks and releases the metric callback.
func (d *Dispatcher) Close() error {
	d.wg.Wait()
	return d.registration.Unregister()
}

type future struct {
	done   chan struct{}
	action core.Action
	err    error
}

func resolved(a core.Action, err error) *future {
	f := &future{done: make(chan struct{}), action: a, err: err}
	close(f.done)
	return f
}

// Wait blocks until the evaluation has returned, even when ctx is done: the
// worker still reads the submitted state. The evaluation itself receives the
// ctx given to Submit.
func (f *future) Wait(context.Context) (core.Action, error) {
	<-f.done
	return f.action, f.err
}

// Gather waits for every future and returns the actions in submission order. The
// error of the earliest failed future wins.
func Gather(ctx context.Context, futures []Future) ([]core.Action, error) {
	actions := make([]core.Action, len(futures))
	var first error
	for i, f := range futures {
		a, err := f.Wait(ctx)
		if err != nil && first == nil {
			first = err
		}
		actions[i] = a
	}
	if first != nil {
		return nil, first
	}
	return actions, nil
}
