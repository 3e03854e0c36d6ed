// Package env runs episodes: it owns the live world state, asks every agent for an
// action each tick, applies them, checks collisions and reports reward and
// termination.
package env

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/urbandriving/engine/internal/agent"
	"github.com/urbandriving/engine/internal/dispatcher"
	"github.com/urbandriving/engine/internal/episode"
	"github.com/urbandriving/engine/internal/render"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/pkg/core"
)

var (
	ErrNotReset     = errors.New("environment has not been reset")
	ErrEpisodeDone  = errors.New("episode is done, reset required")
	ErrActionCount  = errors.New("action count does not match controlled cars")
	ErrNoVisualizer = errors.New("no visualizer configured")
	ErrNoFeaturizer = errors.New("no featurizer configured")
	ErrCorrupt      = errors.New("state corrupted by an interrupted tick, reset required")
	ErrNoState      = errors.New("no initial state")
)

// Status is the stepper's lifecycle state.
type Status int

const (
	Uninitialized Status = iota
	Ready
	Stepping
	Done
)

func (s Status) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Stepping:
		return "stepping"
	case Done:
		return "done"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ObservationMode selects what Step and Reset return as the observation.
type ObservationMode string

const (
	ObserveRaw     ObservationMode = "raw"
	ObserveFeature ObservationMode = "feature"
	ObserveBitmap  ObservationMode = "bitmap"
)

// ParseObservationMode validates a configured mode name.
func ParseObservationMode(s string) (ObservationMode, error) {
	switch m := ObservationMode(s); m {
	case ObserveRaw, ObserveFeature, ObserveBitmap:
		return m, nil
	}
	return "", fmt.Errorf("unknown observation mode %q", s)
}

// RewardFunc scores the state after a tick.
type RewardFunc func(*state.State) float64

// DefaultReward is 1 while no controlled car is in a collision, 0 otherwise.
func DefaultReward(s *state.State) float64 {
	if len(s.Collisions().Controlled) == 0 {
		return 1
	}
	return 0
}

// Featurizer turns the state into a feature vector for one controlled car. It owns
// any history it needs; Reset clears it.
type Featurizer interface {
	Featurize(s *state.State, i int) ([]float64, error)
	Reset()
}

// Visualizer draws states.
type Visualizer interface {
	Render(s *state.State, w render.Window, rerenderStatics bool, overlays ...render.Overlay) error
	Bitmap() image.Image
}

// Recorder persists episodes. storage.Backend satisfies it.
type Recorder interface {
	StartEpisode(e *core.Episode) error
	RecordTick(t *core.TickRecord) error
	EndEpisode(s *core.EpisodeSummary) error
}

// Option configures an Environment.
type Option func(*Environment)

// WithReward replaces the reward function.
func WithReward(f RewardFunc) Option {
	return func(e *Environment) { e.reward = f }
}

// MaxTime ends episodes after n ticks. Zero or less never times out.
func MaxTime(n int) Option {
	return func(e *Environment) { e.maxTime = n }
}

// WithRegistry sets how agents are built on reset.
func WithRegistry(r *agent.Registry) Option {
	return func(e *Environment) { e.registry = r }
}

// WithExecutor evaluates background agents on ex. The environment does not close it.
func WithExecutor(ex dispatcher.Executor) Option {
	return func(e *Environment) { e.executor = ex }
}

// Observe selects the observation mode.
func Observe(m ObservationMode) Option {
	return func(e *Environment) { e.mode = m }
}

// WithFeaturizer sets the featurizer used by feature observations.
func WithFeaturizer(f Featurizer) Option {
	return func(e *Environment) { e.featurizer = f }
}

// WithVisualizer sets the visualizer used by Render and bitmap observations.
func WithVisualizer(v Visualizer) Option {
	return func(e *Environment) { e.visualizer = v }
}

// WithRecorder records every episode.
func WithRecorder(r Recorder) Option {
	return func(e *Environment) { e.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Environment) { e.logger = l }
}

// WithEpisodeContext publishes the running episode and tick to c.
func WithEpisodeContext(c *episode.Context) Option {
	return func(e *Environment) { e.episodeCtx = c }
}

// Randomize reassigns spawns on every reset. Episode n uses a generator seeded
// with (seed, n), so runs are reproducible.
func Randomize(seed int64) Option {
	return func(e *Environment) {
		e.randomize = true
		e.seed = seed
	}
}

// Named sets the episode name prefix used in records.
func Named(name string) Option {
	return func(e *Environment) { e.name = name }
}

// Environment is the stepper. It is not safe for concurrent use.
type Environment struct {
	template *state.State
	current  *state.State

	reward     RewardFunc
	maxTime    int
	registry   *agent.Registry
	executor   dispatcher.Executor
	owned      bool
	mode       ObservationMode
	featurizer Featurizer
	visualizer Visualizer
	recorder   Recorder
	logger     *slog.Logger
	episodeCtx *episode.Context

	randomize bool
	seed      int64
	name      string

	status          Status
	corrupt         bool
	bindings        []agent.Binding
	staticsRendered bool
	episodes        int
	episode         *core.Episode
	summary         core.EpisodeSummary

	// OTEL metrics
	ticks      metric.Int64Counter
	collisions metric.Int64Counter
	stepTime   metric.Float64Histogram
}

// New creates an environment over the template state. The environment must be
// Reset before stepping.
func New(template *state.State, opts ...Option) (*Environment, error) {
	if template == nil {
		return nil, ErrNoState
	}
	e := &Environment{
		template: template,
		reward:   DefaultReward,
		maxTime:  500,
		mode:     ObserveRaw,
		name:     "episode",
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.registry == nil {
		e.registry = agent.DefaultRegistry()
	}

	switch e.mode {
	case ObserveRaw:
	case ObserveFeature:
		if e.featurizer == nil {
			return nil, ErrNoFeaturizer
		}
	case ObserveBitmap:
		if e.visualizer == nil {
			return nil, fmt.Errorf("%w: bitmap observations", ErrNoVisualizer)
		}
	default:
		return nil, fmt.Errorf("unknown observation mode %q", e.mode)
	}

	if e.executor == nil {
		d, err := dispatcher.New(e.logger)
		if err != nil {
			return nil, fmt.Errorf("creating inline dispatcher: %w", err)
		}
		e.executor = d
		e.owned = true
	}

	if err := e.initMetrics(); err != nil {
		return nil, err
	}
	return e, nil
}

// Close ends a running episode and releases the executor the environment created.
func (e *Environment) Close() error {
	e.abort()
	if e.owned {
		return e.executor.Close()
	}
	return nil
}

// Status returns the lifecycle state.
func (e *Environment) Status() Status {
	return e.status
}

// Episode returns the record of the current episode, or nil before the first reset.
func (e *Environment) Episode() *core.Episode {
	return e.episode
}

// State returns the live state. Callers must not mutate it.
func (e *Environment) State() *state.State {
	return e.current
}

// StateCopy returns an independent copy of the live state, or nil before reset.
func (e *Environment) StateCopy() *state.State {
	if e.current == nil {
		return nil
	}
	return e.current.Clone()
}

// Reset starts a new episode. A non-nil template replaces the current one. The
// returned observation describes the initial state.
func (e *Environment) Reset(ctx context.Context, template *state.State) (Observation, error) {
	if template != nil {
		e.template = template
		e.staticsRendered = false
	}

	s := e.template.Clone()
	if e.randomize {
		rng := rand.New(rand.NewPCG(uint64(e.seed), uint64(e.episodes)))
		if err := s.Randomize(rng); err != nil {
			return Observation{}, fmt.Errorf("randomizing episode %d: %w", e.episodes+1, err)
		}
	}

	e.abort()
	e.current = s
	e.bindings = e.registry.Build(s)
	if e.featurizer != nil {
		e.featurizer.Reset()
	}
	e.corrupt = false
	e.status = Ready
	e.episodes++
	e.startEpisode()

	e.logger.InfoContext(ctx, "Episode reset",
		"episode", e.episode.Name,
		"objects", len(e.bindings),
		"randomized", e.randomize)

	return e.observe()
}

// Render draws the live state. Statics are redrawn on the first render after a
// template change.
func (e *Environment) Render(overlays ...render.Overlay) error {
	if e.visualizer == nil {
		return ErrNoVisualizer
	}
	if e.current == nil {
		return ErrNotReset
	}
	if err := e.visualizer.Render(e.current, render.Window{}, !e.staticsRendered, overlays...); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	e.staticsRendered = true
	return nil
}

func (e *Environment) startEpisode() {
	e.episode = newEpisodeRecord(e.current, fmt.Sprintf("%s-%d", e.name, e.episodes), e.seed, e.maxTime)
	e.episode.ID = uint(e.episodes)
	e.summary = core.EpisodeSummary{}
	if e.recorder != nil {
		if err := e.recorder.StartEpisode(e.episode); err != nil {
			e.logger.Error("Failed to record episode start", "episode", e.episode.Name, "error", err)
		}
	}
	e.summary.EpisodeID = e.episode.ID
	if e.episodeCtx != nil {
		e.episodeCtx.Start(e.episode)
	}
}

func (e *Environment) endEpisode(reason core.Termination) {
	e.summary.Reason = reason
	e.summary.EndTime = time.Now()
	if e.recorder != nil {
		if err := e.recorder.EndEpisode(&e.summary); err != nil {
			e.logger.Error("Failed to record episode end", "episode", e.episode.Name, "error", err)
		}
	}
	e.logger.Info("Episode finished",
		"episode", e.episode.Name,
		"reason", string(reason),
		"ticks", e.summary.Ticks,
		"reward", e.summary.TotalReward)
}

// abort closes an episode that is still running.
func (e *Environment) abort() {
	if e.status == Ready && e.episode != nil {
		e.endEpisode(core.TerminationAborted)
		e.status = Done
	}
}
