package env

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbandriving/engine/internal/agent"
	"github.com/urbandriving/engine/internal/dispatcher"
	"github.com/urbandriving/engine/internal/episode"
	"github.com/urbandriving/engine/internal/featurize"
	"github.com/urbandriving/engine/internal/object"
	"github.com/urbandriving/engine/internal/render"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

type fakeRecorder struct {
	episodes []*core.Episode
	ticks    []*core.TickRecord
	ends     []*core.EpisodeSummary
	fail     bool
}

func (r *fakeRecorder) StartEpisode(e *core.Episode) error {
	r.episodes = append(r.episodes, e)
	return nil
}

func (r *fakeRecorder) RecordTick(t *core.TickRecord) error {
	if r.fail {
		return errors.New("disk full")
	}
	r.ticks = append(r.ticks, t)
	return nil
}

func (r *fakeRecorder) EndEpisode(s *core.EpisodeSummary) error {
	r.ends = append(r.ends, s)
	return nil
}

type agentFunc func(context.Context, agent.Request) (core.Action, error)

func (f agentFunc) EvalPolicy(ctx context.Context, req agent.Request) (core.Action, error) {
	return f(ctx, req)
}

func newEnv(t *testing.T, s *state.State, opts ...Option) *Environment {
	t.Helper()
	e, err := New(s, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func emptyWorld() *state.State {
	return state.New(1000, 1000, nil)
}

func intersection(t *testing.T, cfg state.IntersectionConfig) *state.State {
	t.Helper()
	s, err := state.NewIntersection(cfg)
	require.NoError(t, err)
	return s
}

func TestStep_BeforeReset(t *testing.T) {
	e := newEnv(t, emptyWorld())

	assert.Equal(t, Uninitialized, e.Status())
	_, err := e.Step(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNotReset)
	assert.Nil(t, e.StateCopy())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNoState)

	_, err = New(emptyWorld(), Observe(ObserveBitmap))
	assert.ErrorIs(t, err, ErrNoVisualizer)

	_, err = New(emptyWorld(), Observe(ObserveFeature))
	assert.ErrorIs(t, err, ErrNoFeaturizer)

	_, err = New(emptyWorld(), Observe("pixels"))
	assert.Error(t, err)

	_, err = ParseObservationMode("feature")
	assert.NoError(t, err)
	_, err = ParseObservationMode("nope")
	assert.Error(t, err)
}

func TestReset_Idempotent(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, intersection(t, state.IntersectionConfig{BackgroundCars: 2, ControlledCars: 1, Pedestrians: 2, TrafficLights: true}))

	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	first := e.StateCopy()

	_, err = e.Step(ctx, []core.Action{core.Velocity(3)})
	require.NoError(t, err)

	_, err = e.Reset(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, first, e.StateCopy())
	assert.Equal(t, Ready, e.Status())
}

func TestReset_RandomizeIsReproducible(t *testing.T) {
	ctx := context.Background()
	template := intersection(t, state.IntersectionConfig{BackgroundCars: 3, ControlledCars: 1, Pedestrians: 2})

	a := newEnv(t, template, Randomize(42))
	b := newEnv(t, template, Randomize(42))
	for range 3 {
		_, err := a.Reset(ctx, nil)
		require.NoError(t, err)
		_, err = b.Reset(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, a.StateCopy(), b.StateCopy())
	}
	assert.Equal(t, 0, template.Time)
}

func TestReset_RandomizeFailure(t *testing.T) {
	s := emptyWorld()
	s.Add(state.BackgroundCars, object.NewCar(100, 100, 0))
	e := newEnv(t, s, Randomize(1))

	_, err := e.Reset(context.Background(), nil)
	assert.ErrorIs(t, err, state.ErrNotEnoughSpawns)
	assert.Equal(t, Uninitialized, e.Status())
}

func TestStep_MonotonicTicks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, intersection(t, state.IntersectionConfig{BackgroundCars: 1, TrafficLights: true}), MaxTime(0))

	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	for n := 1; n <= 40; n++ {
		res, err := e.Step(ctx, nil)
		require.NoError(t, err)
		require.False(t, res.Done)
		assert.Equal(t, n, e.State().Time)
		assert.Same(t, e.State(), res.Observation.State)
	}
}

func TestStep_OverlappingCarsEndEpisode(t *testing.T) {
	ctx := context.Background()
	s := emptyWorld()
	s.Add(state.BackgroundCars, object.NewCar(500, 500, 0))
	s.Add(state.BackgroundCars, object.NewCar(530, 500, 0))
	rec := &fakeRecorder{}
	e := newEnv(t, s, WithRegistry(agent.NewRegistry()), WithRecorder(rec))

	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	res, err := e.Step(ctx, nil)
	require.NoError(t, err)

	assert.True(t, res.Done)
	assert.Equal(t, Done, e.Status())
	assert.Equal(t, []state.DynamicCollision{{
		A: state.Ref{Group: state.BackgroundCars, Index: 0},
		B: state.Ref{Group: state.BackgroundCars, Index: 1},
	}}, res.Info.Collisions.Dynamic)
	assert.Equal(t, 1.0, res.Reward, "no controlled car involved")

	require.Len(t, rec.ends, 1)
	assert.Equal(t, core.TerminationCollision, rec.ends[0].Reason)
	require.Len(t, rec.ticks, 1)
	assert.Equal(t, -1, rec.ticks[0].Collisions[0].Static)

	_, err = e.Step(ctx, nil)
	assert.ErrorIs(t, err, ErrEpisodeDone)
}

func TestStep_StraightLineKinematics(t *testing.T) {
	ctx := context.Background()
	s := emptyWorld()
	s.Add(state.ControlledCars, object.NewControlledCar(100, 500, 0))
	e := newEnv(t, s, MaxTime(0))

	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)

	const ticks = 20
	for range ticks {
		_, err := e.Step(ctx, []core.Action{core.SteeringAcc(0, 1)})
		require.NoError(t, err)
	}

	// v = min(t, vmax); x advances by v after each update.
	want := 100.0
	for k := 1; k <= ticks; k++ {
		want += min(float64(k)*object.CarMaxAccel, object.CarMaxVel)
	}
	car := e.State().Objects[state.ControlledCars][0]
	assert.InDelta(t, want, car.Shape.X, 1e-9)
	assert.InDelta(t, 500, car.Shape.Y, 1e-9)
	assert.Equal(t, object.CarMaxVel, car.Vel)
}

func TestStep_MaxTime(t *testing.T) {
	ctx := context.Background()
	s := emptyWorld()
	s.Add(state.BackgroundCars, object.NewCar(500, 500, 0))
	rec := &fakeRecorder{}
	e := newEnv(t, s, MaxTime(5), WithRegistry(agent.NewRegistry()), WithRecorder(rec), WithReward(func(*state.State) float64 { return 0 }))

	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	for tick := 1; tick <= 5; tick++ {
		res, err := e.Step(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, tick == 5, res.Done, "tick %d", tick)
	}
	require.Len(t, rec.ends, 1)
	assert.Equal(t, core.TerminationTimeout, rec.ends[0].Reason)
	assert.Equal(t, 5, rec.ends[0].Ticks)
	assert.Len(t, rec.ticks, 5)
}

func TestStep_ActionCount(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, intersection(t, state.IntersectionConfig{ControlledCars: 2}))
	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	before := e.StateCopy()

	_, err = e.Step(ctx, []core.Action{core.Null()})
	assert.ErrorIs(t, err, ErrActionCount)
	assert.Equal(t, before, e.StateCopy())
	assert.Equal(t, Ready, e.Status())
}

func TestStep_ParallelMatchesSequential(t *testing.T) {
	ctx := context.Background()
	template := intersection(t, state.IntersectionConfig{BackgroundCars: 6, Pedestrians: 4, TrafficLights: true})

	pool, err := dispatcher.New(&noopLogger{}, dispatcher.Workers(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	seq := newEnv(t, template, MaxTime(200))
	par := newEnv(t, template, MaxTime(200), WithExecutor(pool))

	_, err = seq.Reset(ctx, nil)
	require.NoError(t, err)
	_, err = par.Reset(ctx, nil)
	require.NoError(t, err)

	for {
		a, err := seq.Step(ctx, nil)
		require.NoError(t, err)
		b, err := par.Step(ctx, nil)
		require.NoError(t, err)

		require.Equal(t, seq.StateCopy(), par.StateCopy(), "tick %d", seq.State().Time)
		require.Equal(t, a.Done, b.Done)
		if a.Done {
			break
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

func TestStep_AgentErrorAbortsTick(t *testing.T) {
	ctx := context.Background()
	s := emptyWorld()
	s.Add(state.BackgroundCars, object.NewCar(500, 500, 0))
	boom := errors.New("boom")
	reg := agent.NewRegistry()
	reg.Register(object.Car, func(state.Ref, object.Object) agent.Agent {
		return agentFunc(func(context.Context, agent.Request) (core.Action, error) { return core.Action{}, boom })
	})
	e := newEnv(t, s, WithRegistry(reg))

	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	_, err = e.Step(ctx, nil)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "background_cars[0]")
	assert.Equal(t, 0, e.State().Time)
	assert.Equal(t, Ready, e.Status())
}

func TestStep_InterruptedTickIsCorrupt(t *testing.T) {
	ctx := context.Background()
	s := emptyWorld()
	s.Add(state.BackgroundCars, object.NewCar(200, 500, 0))
	s.Add(state.BackgroundCars, object.NewCar(600, 500, 0))
	reg := agent.NewRegistry()
	reg.Register(object.Car, func(ref state.Ref, _ object.Object) agent.Agent {
		return agentFunc(func(context.Context, agent.Request) (core.Action, error) {
			if ref.Index == 1 {
				return core.Light(core.LightGreen), nil
			}
			return core.Velocity(5), nil
		})
	})
	e := newEnv(t, s, WithRegistry(reg))

	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	_, err = e.Step(ctx, nil)
	require.ErrorIs(t, err, ErrCorrupt)
	assert.Equal(t, Done, e.Status())

	_, err = e.Step(ctx, nil)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = e.Reset(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 200.0, e.State().Objects[state.BackgroundCars][0].Shape.X)
}

func TestStep_Simplified(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, intersection(t, state.IntersectionConfig{BackgroundCars: 1, ControlledCars: 1}))
	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	controlled := e.State().Objects[state.ControlledCars][0]
	background := e.State().Objects[state.BackgroundCars][0]

	for range 5 {
		_, err := e.Step(ctx, nil, Simplified())
		require.NoError(t, err)
	}
	assert.Equal(t, controlled.Shape, e.State().Objects[state.ControlledCars][0].Shape)
	assert.NotEqual(t, background.Shape, e.State().Objects[state.BackgroundCars][0].Shape)
}

func TestStep_FeatureObservations(t *testing.T) {
	ctx := context.Background()
	f := featurize.New()
	e := newEnv(t, intersection(t, state.IntersectionConfig{ControlledCars: 2}), Observe(ObserveFeature), WithFeaturizer(f))

	obs, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	require.Len(t, obs.Features, 2)
	assert.Len(t, obs.Features[0], f.Len())

	res, err := e.Step(ctx, []core.Action{core.Velocity(1), core.Velocity(1)})
	require.NoError(t, err)
	assert.Len(t, res.Observation.Features, 2)
	assert.Nil(t, res.Observation.State)
}

func TestStep_BitmapObservations(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, intersection(t, state.IntersectionConfig{ControlledCars: 1}), Observe(ObserveBitmap), WithVisualizer(render.NewRaster(64, 64)))

	obs, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, obs.Bitmap)
	assert.Equal(t, 64, obs.Bitmap.Bounds().Dx())

	require.NoError(t, e.Render(render.Overlay{Points: []core.Position2D{{X: 10, Y: 10}}}))
}

func TestRender_WithoutVisualizer(t *testing.T) {
	e := newEnv(t, emptyWorld())
	assert.ErrorIs(t, e.Render(), ErrNoVisualizer)
}

func TestRecorder_FailuresDoNotAbort(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{fail: true}
	epCtx := episode.NewContext()
	e := newEnv(t, intersection(t, state.IntersectionConfig{BackgroundCars: 1}), WithRecorder(rec), WithEpisodeContext(epCtx), Named("test"))

	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rec.episodes, 1)
	assert.Equal(t, "test-1", rec.episodes[0].Name)
	assert.Len(t, rec.episodes[0].Statics, len(e.State().Statics))
	assert.Len(t, rec.episodes[0].Objects, 1)

	_, err = e.Step(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, epCtx.Tick())
	assert.Equal(t, "test-1", epCtx.Episode().Name)

	// Resetting mid-episode closes the running one.
	_, err = e.Reset(ctx, nil)
	require.NoError(t, err)
	require.Len(t, rec.ends, 1)
	assert.Equal(t, core.TerminationAborted, rec.ends[0].Reason)
	assert.Equal(t, uint(2), e.Episode().ID)
}

// failingFeaturizer succeeds for the first ok calls, then fails.
type failingFeaturizer struct {
	ok    int
	calls int
}

func (f *failingFeaturizer) Featurize(*state.State, int) ([]float64, error) {
	f.calls++
	if f.calls > f.ok {
		return nil, errors.New("featurizer broke")
	}
	return []float64{0}, nil
}

func (f *failingFeaturizer) Reset() {}

func TestStep_ObservationFailureStillRecords(t *testing.T) {
	ctx := context.Background()
	rec := &fakeRecorder{}
	e := newEnv(t, intersection(t, state.IntersectionConfig{ControlledCars: 1}),
		MaxTime(1), Observe(ObserveFeature), WithFeaturizer(&failingFeaturizer{ok: 1}), WithRecorder(rec))

	_, err := e.Reset(ctx, nil)
	require.NoError(t, err)

	_, err = e.Step(ctx, []core.Action{core.Null()})
	require.ErrorContains(t, err, "featurizer broke")

	assert.Equal(t, Done, e.Status())
	require.Len(t, rec.ticks, 1)
	require.Len(t, rec.ends, 1)
	assert.Equal(t, core.TerminationTimeout, rec.ends[0].Reason)
}

func TestStep_CancelledStepWaitsForAgents(t *testing.T) {
	s := emptyWorld()
	s.Add(state.BackgroundCars, object.NewCar(200, 500, 0))
	s.Add(state.BackgroundCars, object.NewCar(600, 500, 0))

	var running atomic.Int32
	reg := agent.NewRegistry()
	reg.Register(object.Car, func(state.Ref, object.Object) agent.Agent {
		return agentFunc(func(_ context.Context, req agent.Request) (core.Action, error) {
			running.Add(1)
			defer running.Add(-1)
			time.Sleep(50 * time.Millisecond)
			_ = req.State.Time
			return core.Velocity(1), nil
		})
	})
	pool, err := dispatcher.New(&noopLogger{}, dispatcher.Workers(2))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	e := newEnv(t, s, WithRegistry(reg), WithExecutor(pool))
	_, err = e.Reset(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, _ = e.Step(ctx, nil)

	assert.Zero(t, running.Load(), "Step returned while agents were still evaluating")

	// the caller may mutate the state right away
	e.State().Objects[state.BackgroundCars][0].Shape.X = 10
}

func TestIntersection_EveryRouteDrivesClean(t *testing.T) {
	base := intersection(t, state.IntersectionConfig{})
	names := []string{"straight", "left", "right"}
	for i, sp := range base.CarSpawns {
		for j, route := range sp.Routes {
			t.Run(fmt.Sprintf("spawn%d/%s", i, names[j]), func(t *testing.T) {
				ctx := context.Background()
				s := state.New(base.Width, base.Height, base.Statics)
				car := object.NewCar(sp.X, sp.Y, sp.Angle)
				car.Follow(route.Clone())
				s.Add(state.BackgroundCars, car)

				e := newEnv(t, s, MaxTime(400))
				_, err := e.Reset(ctx, nil)
				require.NoError(t, err)

				for done := false; !done; {
					res, err := e.Step(ctx, nil)
					require.NoError(t, err)
					require.False(t, res.Info.Collisions.Any(), "tick %d: %+v", e.State().Time, res.Info.Collisions)
					done = res.Done
				}
				assert.Equal(t, 400, e.State().Time)
			})
		}
	}
}
