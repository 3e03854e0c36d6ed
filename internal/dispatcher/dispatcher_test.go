package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/urbandriving/engine/internal/agent"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

// funcAgent adapts a function to agent.Agent.
type funcAgent func(ctx context.Context, req agent.Request) (core.Action, error)

func (f funcAgent) EvalPolicy(ctx context.Context, req agent.Request) (core.Action, error) {
	return f(ctx, req)
}

func newTestDispatcher(t *testing.T, opts ...Option) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger, opts...)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	return d, logger
}

func velocityTask(i int) Task {
	return Task{
		Ref: state.Ref{Group: state.BackgroundCars, Index: i},
		Agent: funcAgent(func(context.Context, agent.Request) (core.Action, error) {
			return core.Velocity(float64(i)), nil
		}),
	}
}

func TestDispatcher_InlineRunsBeforeReturning(t *testing.T) {
	d, _ := newTestDispatcher(t)

	called := false
	f := d.Submit(context.Background(), Task{Agent: funcAgent(func(context.Context, agent.Request) (core.Action, error) {
		called = true
		return core.Null(), nil
	})})

	if !called {
		t.Error("inline task did not run during Submit")
	}
	if d.Concurrent() {
		t.Error("expected inline dispatcher")
	}
	if _, err := f.Wait(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDispatcher_PoolBoundsConcurrency(t *testing.T) {
	d, _ := newTestDispatcher(t, Workers(2))

	var running, peak atomic.Int32
	release := make(chan struct{})
	var futures []Future
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i := 0; i < 4; i++ {
			futures = append(futures, d.Submit(context.Background(), Task{Agent: funcAgent(func(context.Context, agent.Request) (core.Action, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				<-release
				running.Add(-1)
				return core.Null(), nil
			})}))
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	<-submitted

	if _, err := Gather(context.Background(), futures); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > 2 {
		t.Errorf("expected at most 2 concurrent evaluations, got %d", peak.Load())
	}
}

func TestGather_PreservesSubmissionOrder(t *testing.T) {
	for _, workers := range []int{0, 3} {
		d, _ := newTestDispatcher(t, Workers(workers))

		var futures []Future
		for i := 0; i < 10; i++ {
			futures = append(futures, d.Submit(context.Background(), velocityTask(i)))
		}
		actions, err := Gather(context.Background(), futures)
		if err != nil {
			t.Fatalf("workers=%d: unexpected error: %v", workers, err)
		}
		for i, a := range actions {
			if a != core.Velocity(float64(i)) {
				t.Errorf("workers=%d: action %d = %+v", workers, i, a)
			}
		}
	}
}

func TestGather_EarliestErrorWins(t *testing.T) {
	d, _ := newTestDispatcher(t, Workers(4))
	errA := errors.New("a")
	errB := errors.New("b")

	fail := func(i int, err error, delay time.Duration) Task {
		return Task{
			Ref: state.Ref{Group: state.Pedestrians, Index: i},
			Agent: funcAgent(func(context.Context, agent.Request) (core.Action, error) {
				time.Sleep(delay)
				return core.Action{}, err
			}),
		}
	}

	futures := []Future{
		d.Submit(context.Background(), velocityTask(0)),
		d.Submit(context.Background(), fail(1, errA, 20*time.Millisecond)),
		d.Submit(context.Background(), fail(2, errB, 0)),
	}
	_, err := Gather(context.Background(), futures)
	if !errors.Is(err, errA) {
		t.Fatalf("expected first error by index, got %v", err)
	}
	if !strings.Contains(err.Error(), "pedestrians[1]") {
		t.Errorf("expected error to name the ref, got %q", err)
	}
}

func TestDispatcher_PanicBecomesError(t *testing.T) {
	d, _ := newTestDispatcher(t, Workers(1))

	f := d.Submit(context.Background(), Task{Agent: funcAgent(func(context.Context, agent.Request) (core.Action, error) {
		panic("boom")
	})})
	_, err := f.Wait(context.Background())
	if !errors.Is(err, ErrAgentPanic) {
		t.Errorf("expected ErrAgentPanic, got %v", err)
	}
}

func TestGather_WaitsForRunningEvaluations(t *testing.T) {
	d, _ := newTestDispatcher(t, Workers(2))

	var running atomic.Int32
	slow := funcAgent(func(context.Context, agent.Request) (core.Action, error) {
		running.Add(1)
		defer running.Add(-1)
		time.Sleep(50 * time.Millisecond)
		return core.Null(), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	futures := []Future{
		d.Submit(ctx, Task{Agent: slow}),
		d.Submit(ctx, Task{Agent: slow}),
	}
	if _, err := Gather(ctx, futures); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := running.Load(); n != 0 {
		t.Errorf("Gather returned with %d evaluations still running", n)
	}
}

func TestGather_CancelledAgentErrorPropagates(t *testing.T) {
	d, _ := newTestDispatcher(t, Workers(1))

	ctx, cancel := context.WithCancel(context.Background())
	f := d.Submit(ctx, Task{Agent: funcAgent(func(ctx context.Context, _ agent.Request) (core.Action, error) {
		<-ctx.Done()
		return core.Action{}, ctx.Err()
	})})
	cancel()

	if _, err := Gather(context.Background(), []Future{f}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context canceled, got %v", err)
	}
}

func TestDispatcher_Logged(t *testing.T) {
	d, logger := newTestDispatcher(t, Logged())

	d.Submit(context.Background(), velocityTask(1))
	d.Submit(context.Background(), Task{Agent: funcAgent(func(context.Context, agent.Request) (core.Action, error) {
		return core.Action{}, fmt.Errorf("test error")
	})})

	logger.mu.Lock()
	defer logger.mu.Unlock()

	if len(logger.messages) < 4 {
		t.Errorf("expected at least 4 log messages, got %d", len(logger.messages))
	}
	hasError := false
	for _, msg := range logger.messages {
		if strings.HasPrefix(msg, "ERROR") {
			hasError = true
			break
		}
	}
	if !hasError {
		t.Error("expected error log message")
	}
}
