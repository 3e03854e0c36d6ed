package main

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/internal/dispatcher"
	"github.com/urbandriving/engine/internal/env"
	"github.com/urbandriving/engine/internal/featurize"
	"github.com/urbandriving/engine/internal/logging"
	"github.com/urbandriving/engine/internal/remote"
	"github.com/urbandriving/engine/internal/render"
	"github.com/urbandriving/engine/internal/state"
	"github.com/urbandriving/engine/internal/storage"
	"github.com/urbandriving/engine/pkg/core"
)

// bitmapSize is the side of bitmap observations, in pixels.
const bitmapSize = 200

// session is one configured environment plus everything it was wired to.
type session struct {
	cfg      config.EnvironmentConfig
	env      *env.Environment
	backend  storage.Backend
	executor dispatcher.Executor
	pilot    *autopilot
}

// tickFunc is called after every step. Returning an error stops the run.
type tickFunc func(ctx context.Context, e *env.Environment, res env.Result) error

// newSession builds the scenario and the environment from the loaded config. A
// non-nil visualizer is attached for rendering.
func newSession(ctx context.Context, vis env.Visualizer) (*session, error) {
	cfg := config.GetEnvironmentConfig()
	s := &session{cfg: cfg}

	template, err := state.NewIntersection(state.IntersectionConfig{
		BackgroundCars: cfg.BackgroundCars,
		ControlledCars: cfg.ControlledCars,
		Pedestrians:    cfg.Pedestrians,
		TrafficLights:  cfg.TrafficLights,
	})
	if err != nil {
		return nil, fmt.Errorf("building intersection: %w", err)
	}

	mode, err := env.ParseObservationMode(cfg.Observation)
	if err != nil {
		return nil, err
	}

	s.executor, err = createExecutor(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s.backend, err = createStorageBackend(config.GetStorageConfig())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating storage backend: %w", err)
	}
	if s.backend != nil {
		if err := s.backend.Init(); err != nil {
			s.backend = nil
			s.Close()
			return nil, fmt.Errorf("initializing storage backend: %w", err)
		}
	}

	opts := []env.Option{
		env.MaxTime(cfg.MaxTime),
		env.Observe(mode),
		env.WithLogger(Logger),
		env.WithEpisodeContext(EpisodeContext),
		env.Named("intersection"),
	}
	if s.executor != nil {
		opts = append(opts, env.WithExecutor(s.executor))
	}
	if s.backend != nil {
		opts = append(opts, env.WithRecorder(s.backend))
	}
	if cfg.Randomize {
		opts = append(opts, env.Randomize(cfg.Seed))
	}
	if mode == env.ObserveFeature {
		opts = append(opts, env.WithFeaturizer(featurize.New()))
	}
	if vis == nil && mode == env.ObserveBitmap {
		vis = render.NewRaster(bitmapSize, bitmapSize)
	}
	if vis != nil {
		opts = append(opts, env.WithVisualizer(vis))
	}

	s.env, err = env.New(template, opts...)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating environment: %w", err)
	}
	return s, nil
}

// createExecutor returns the executor background agents are evaluated on. Nil
// lets the environment evaluate them inline.
func createExecutor(ctx context.Context, cfg config.EnvironmentConfig) (dispatcher.Executor, error) {
	if rc := config.GetRemoteConfig(); rc.Enabled {
		ex, err := remote.Dial(ctx, rc.URL, Logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to agent server: %w", err)
		}
		Logger.Info("Evaluating background agents remotely", "url", rc.URL)
		return ex, nil
	}
	if !cfg.Concurrent {
		return nil, nil
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	d, err := dispatcher.New(
		logging.NewDispatcherLogger(SlogManager.Zerolog("dispatcher")),
		dispatcher.Workers(workers),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}
	return d, nil
}

// Close shuts the environment, the executor and the recorder down in that order.
func (s *session) Close() error {
	var errs []error
	if s.env != nil {
		errs = append(errs, s.env.Close())
	}
	if s.executor != nil {
		errs = append(errs, s.executor.Close())
	}
	if s.backend != nil {
		if exp, ok := s.backend.(storage.Exporter); ok && exp.ExportedFilePath() != "" {
			Logger.Info("Exported last episode", "path", exp.ExportedFilePath())
		}
		errs = append(errs, s.backend.Close())
	}
	return errors.Join(errs...)
}

// episode resets the environment and steps it until the episode is done.
func (s *session) episode(ctx context.Context, onTick tickFunc) (core.EpisodeSummary, error) {
	if _, err := s.env.Reset(ctx, nil); err != nil {
		return core.EpisodeSummary{}, err
	}
	s.pilot = newAutopilot(s.env.State())

	var opts []env.StepOption
	if s.cfg.Simplified {
		opts = append(opts, env.Simplified())
	}
	var total core.EpisodeSummary
	for s.env.Status() != env.Done {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var actions []core.Action
		if !s.cfg.Simplified {
			var err error
			actions, err = s.pilot.Actions(ctx, s.env.State())
			if err != nil {
				return total, err
			}
		}
		res, err := s.env.Step(ctx, actions, opts...)
		if err != nil {
			return total, err
		}
		total.Ticks++
		total.TotalReward += res.Reward
		total.Collisions += res.Info.Collisions.Count()
		if onTick != nil {
			if err := onTick(ctx, s.env, res); err != nil {
				return total, err
			}
		}
	}
	total.EpisodeID = s.env.Episode().ID
	return total, nil
}

// runEpisodes runs the configured number of episodes. onTick may be nil.
func runEpisodes(ctx context.Context, onTick tickFunc) error {
	return runWith(ctx, nil, onTick)
}

func runWith(ctx context.Context, vis env.Visualizer, onTick tickFunc) error {
	s, err := newSession(ctx, vis)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			Logger.Error("Failed to close session", "error", err)
		}
	}()

	for i := range max(s.cfg.Episodes, 1) {
		sum, err := s.episode(ctx, onTick)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				Logger.Info("Run interrupted", "episode", i+1)
				return nil
			}
			return fmt.Errorf("episode %d: %w", i+1, err)
		}
		Logger.Info("Episode summary",
			"episode", sum.EpisodeID,
			"ticks", sum.Ticks,
			"reward", sum.TotalReward,
			"collisions", sum.Collisions)
	}
	return nil
}
