package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/urbandriving/engine/internal/config"
	"github.com/urbandriving/engine/internal/episode"
	"github.com/urbandriving/engine/internal/logging"
	intOtel "github.com/urbandriving/engine/internal/otel"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.1.0"
	BuildDate      string = "unknown"

	AppName string = "urbandriving"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// EpisodeContext tags every log record with the running episode and tick
	EpisodeContext = episode.NewContext()

	SessionStartTime time.Time = time.Now()

	logFile  *os.File
	otelFile *os.File
)

const usage = `Usage: urbandriving [flags] <command> [args]

Commands:
  run            run episodes headless (default)
  watch          run episodes in the terminal viewer
  agent-server   serve background agent evaluations over WebSocket
  setupdb        migrate the configured database schema
  export [ids]   write recorded episodes from the database as JSON
  version        print the version

Flags:
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if Logger != nil {
			Logger.Error("Exiting", "error", err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newFlagSet declares the command line flags. Flag names are config keys so
// they are bound straight into viper.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	fs.String("config", ".", "directory containing "+config.FileName)
	fs.String("logLevel", "info", "log level: debug, info, warn, error")
	fs.String("logsDir", "./logs", "directory for log files")

	fs.Int("environment.backgroundCars", 4, "background cars")
	fs.Int("environment.controlledCars", 1, "controlled cars")
	fs.Int("environment.pedestrians", 0, "pedestrians")
	fs.Bool("environment.trafficLights", true, "place traffic lights")
	fs.Int("environment.maxTime", 500, "ticks before an episode times out")
	fs.Bool("environment.randomize", false, "randomize spawns on every reset")
	fs.Int64("environment.seed", 0, "seed for randomized resets")
	fs.Int("environment.episodes", 1, "episodes to run")
	fs.Bool("environment.concurrent", false, "evaluate background agents on a worker pool")
	fs.Int("environment.workers", 0, "worker pool size, 0 uses every CPU")
	fs.String("environment.observation", "raw", "observation mode: raw, feature, bitmap")
	fs.Bool("environment.simplified", false, "step the background only")
	fs.Bool("environment.visualize", false, "make run behave like watch")

	fs.Bool("agents.remote.enabled", false, "evaluate background agents on a remote agent server")
	fs.String("agents.remote.url", "ws://localhost:8765/agents", "agent server URL")
	fs.String("agents.remote.listen", ":8765", "agent-server listen address")

	fs.String("storage.type", "memory", "recorder: memory, sqlite, postgres, websocket, influx, none")
	fs.String("storage.memory.outputDir", "./recordings", "directory for JSON exports")
	fs.String("storage.sqlite.path", "", "SQLite dump file")
	return fs
}

func run(args []string) error {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	configDir, _ := fs.GetString("config")
	configErr := config.Load(configDir)
	if err := config.BindFlags(fs); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	if err := setupLogging(); err != nil {
		return err
	}
	defer shutdownLogging()
	if configErr != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", configErr)
	} else {
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := "run", fs.Args()
	if len(rest) > 0 {
		cmd, rest = strings.ToLower(rest[0]), rest[1:]
	}
	Logger.Info("Starting up...", "command", cmd, "version", CurrentVersion, "buildDate", BuildDate)

	switch cmd {
	case "run":
		if config.GetEnvironmentConfig().Visualize {
			return watch(ctx)
		}
		return runEpisodes(ctx, nil)
	case "watch":
		return watch(ctx)
	case "agent-server":
		return serveAgents(ctx)
	case "setupdb":
		return setupDB()
	case "export":
		return exportEpisodes(rest)
	case "version":
		fmt.Printf("%s %s (%s)\n", AppName, CurrentVersion, BuildDate)
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// setupLogging opens the session log file and, when enabled, the OTel
// provider, then builds the slog logger on top of them.
func setupLogging() error {
	var err error
	logsDir := viper.GetString("logsDir")

	logFile, err = logging.OpenLogFile(logsDir, AppName, SessionStartTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file, logging to console: %v\n", err)
		logFile = nil
	}

	otelCfg := config.GetOTelConfig()
	providerCfg := intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
	}
	if otelCfg.Enabled {
		otelFile, err = logging.OpenLogFile(logsDir, AppName+".otel", SessionStartTime)
		if err != nil {
			return fmt.Errorf("opening OTel log file: %w", err)
		}
		providerCfg.LogWriter = otelFile
	}
	OTelProvider, err = intOtel.New(providerCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize OTel: %w", err)
	}

	opts := logging.Options{
		Level:    viper.GetString("logLevel"),
		Provider: OTelProvider.LoggerProvider(),
		Context:  EpisodeContext.Attrs,
	}
	if logFile != nil {
		opts.File = logFile
	}
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()
	slog.SetDefault(Logger)
	return nil
}

func shutdownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if err := OTelProvider.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to shut down OTel: %v\n", err)
	}
	for _, f := range []*os.File{logFile, otelFile} {
		if f != nil {
			_ = f.Close()
		}
	}
}
