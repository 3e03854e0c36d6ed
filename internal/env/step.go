package env

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/urbandriving/engine/internal/agent"
	"github.com/urbandriving/engine/internal/dispatcher"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

// Observation is what the caller sees after Reset and Step. Only the field of the
// configured mode is set.
type Observation struct {
	// State is the live state (raw mode). It is only valid until the next Step.
	State *state.State
	// Features holds one vector per controlled car (feature mode).
	Features [][]float64
	// Bitmap is the rendered frame (bitmap mode).
	Bitmap image.Image
}

// Info carries diagnostics for one tick.
type Info struct {
	SavedActions []core.Action
	Collisions   state.Collisions
}

// Result is the outcome of one tick.
type Result struct {
	Observation Observation
	Reward      float64
	Done        bool
	Info        Info
}

// StepOption adjusts a single Step.
type StepOption func(*stepConfig)

type stepConfig struct {
	simplified bool
}

// Simplified steps only the background: controlled cars hold still, caller actions
// are ignored and background agents skip their collision-avoidance queries.
func Simplified() StepOption {
	return func(c *stepConfig) { c.simplified = true }
}

// Step advances the world one tick. actions holds one action per controlled car.
func (e *Environment) Step(ctx context.Context, actions []core.Action, opts ...StepOption) (Result, error) {
	switch {
	case e.status == Uninitialized:
		return Result{}, ErrNotReset
	case e.corrupt:
		return Result{}, ErrCorrupt
	case e.status == Done:
		return Result{}, ErrEpisodeDone
	}

	var cfg stepConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if n := e.current.Count(state.ControlledCars); !cfg.simplified && len(actions) != n {
		return Result{}, fmt.Errorf("%w: got %d, want %d", ErrActionCount, len(actions), n)
	}

	start := time.Now()
	e.status = Stepping

	refs, applied, err := e.collect(ctx, actions, cfg.simplified)
	if err != nil {
		e.status = Ready
		return Result{}, err
	}

	for i, ref := range refs {
		if err := e.current.At(ref).Step(applied[i]); err != nil {
			e.corrupt = true
			e.status = Done
			e.logger.ErrorContext(ctx, "Tick interrupted", "ref", ref.String(), "error", err)
			return Result{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, ref, err)
		}
	}
	e.current.Time++

	cols := e.current.Collisions()
	reward := e.reward(e.current)
	done := (e.maxTime > 0 && e.current.Time >= e.maxTime) || cols.Any()

	e.status = Ready
	if done {
		e.status = Done
	}

	// The tick has happened: record it before observing, which may fail.
	e.track(ctx, refs, applied, cols, reward, done)
	e.stepTime.Record(ctx, float64(time.Since(start).Microseconds())/1000)

	obs, err := e.observe()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Observation: obs,
		Reward:      reward,
		Done:        done,
		Info:        Info{SavedActions: actions, Collisions: cols},
	}, nil
}

// collect evaluates every agent against the pre-tick state. Background agents go
// through the executor; controlled agents validate the caller's actions inline.
// The returned refs and actions are in canonical order.
func (e *Environment) collect(ctx context.Context, actions []core.Action, simplified bool) ([]state.Ref, []core.Action, error) {
	refs := make([]state.Ref, 0, len(e.bindings))
	futures := make([]dispatcher.Future, 0, len(e.bindings))
	for _, b := range e.bindings {
		if b.Ref.Group == state.ControlledCars {
			if simplified {
				continue
			}
			input := actions[b.Ref.Index]
			a, err := b.Agent.EvalPolicy(ctx, agent.Request{State: e.current, Input: &input})
			if err != nil {
				err = fmt.Errorf("%s: %w", b.Ref, err)
			}
			futures = append(futures, settled{action: a, err: err})
		} else {
			futures = append(futures, e.executor.Submit(ctx, dispatcher.Task{
				Ref:     b.Ref,
				Agent:   b.Agent,
				Request: agent.Request{State: e.current, Simplified: simplified},
			}))
		}
		refs = append(refs, b.Ref)
	}

	applied, err := dispatcher.Gather(ctx, futures)
	if err != nil {
		return nil, nil, err
	}
	return refs, applied, nil
}

func (e *Environment) observe() (Observation, error) {
	switch e.mode {
	case ObserveFeature:
		n := e.current.Count(state.ControlledCars)
		feats := make([][]float64, n)
		for i := range n {
			f, err := e.featurizer.Featurize(e.current, i)
			if err != nil {
				return Observation{}, fmt.Errorf("featurize controlled car %d: %w", i, err)
			}
			feats[i] = f
		}
		return Observation{Features: feats}, nil
	case ObserveBitmap:
		if err := e.Render(); err != nil {
			return Observation{}, err
		}
		return Observation{Bitmap: e.visualizer.Bitmap()}, nil
	default:
		return Observation{State: e.current}, nil
	}
}

// track updates metrics, the episode summary and the recorder.
func (e *Environment) track(ctx context.Context, refs []state.Ref, applied []core.Action, cols state.Collisions, reward float64, done bool) {
	e.ticks.Add(ctx, 1)
	if n := cols.Count(); n > 0 {
		e.collisions.Add(ctx, int64(n))
	}

	e.summary.Ticks = e.current.Time
	e.summary.TotalReward += reward
	e.summary.Collisions += cols.Count()
	if e.episodeCtx != nil {
		e.episodeCtx.SetTick(e.current.Time)
	}

	if e.recorder != nil {
		rec := tickRecord(e.episode.ID, e.current, refs, applied, cols, reward, done)
		if err := e.recorder.RecordTick(rec); err != nil {
			e.logger.ErrorContext(ctx, "Failed to record tick", "time", e.current.Time, "error", err)
		}
	}
	e.logger.DebugContext(ctx, "Tick complete",
		"time", e.current.Time,
		"reward", reward,
		"collisions", cols.Count(),
		"done", done)

	if done {
		reason := core.TerminationTimeout
		if cols.Any() {
			reason = core.TerminationCollision
		}
		e.endEpisode(reason)
	}
}

// settled is a Future that is already resolved.
type settled struct {
	action core.Action
	err    error
}

func (r settled) Wait(context.Context) (core.Action, error) {
	return r.action, r.err
}
