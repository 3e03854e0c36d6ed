package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "urbandriving.cfg.json"

// EnvironmentConfig holds the scenario and stepper settings
type EnvironmentConfig struct {
	BackgroundCars int    `json:"backgroundCars" mapstructure:"backgroundCars"`
	ControlledCars int    `json:"controlledCars" mapstructure:"controlledCars"`
	Pedestrians    int    `json:"pedestrians" mapstructure:"pedestrians"`
	TrafficLights  bool   `json:"trafficLights" mapstructure:"trafficLights"`
	MaxTime        int    `json:"maxTime" mapstructure:"maxTime"`
	Visualize      bool   `json:"visualize" mapstructure:"visualize"`
	Randomize      bool   `json:"randomize" mapstructure:"randomize"`
	Concurrent     bool   `json:"concurrent" mapstructure:"concurrent"`
	Workers        int    `json:"workers" mapstructure:"workers"`
	Observation    string `json:"observation" mapstructure:"observation"`
	Seed           int64  `json:"seed" mapstructure:"seed"`
	Episodes       int    `json:"episodes" mapstructure:"episodes"`
	Simplified     bool   `json:"simplified" mapstructure:"simplified"`
}

// RemoteConfig holds the remote agent server settings
type RemoteConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Listen  string `json:"listen" mapstructure:"listen"`
}

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	Path         string        `json:"path" mapstructure:"path"`
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// WebSocketConfig holds streaming storage backend settings
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// StorageConfig selects and configures the episode recorder
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Postgres  PostgresConfig  `json:"postgres" mapstructure:"postgres"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
	Influx    InfluxConfig    `json:"influx" mapstructure:"influx"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")

	viper.SetDefault("environment.backgroundCars", 4)
	viper.SetDefault("environment.controlledCars", 1)
	viper.SetDefault("environment.pedestrians", 0)
	viper.SetDefault("environment.trafficLights", true)
	viper.SetDefault("environment.maxTime", 500)
	viper.SetDefault("environment.visualize", false)
	viper.SetDefault("environment.randomize", false)
	viper.SetDefault("environment.concurrent", false)
	viper.SetDefault("environment.workers", 0)
	viper.SetDefault("environment.observation", "raw")
	viper.SetDefault("environment.seed", 0)
	viper.SetDefault("environment.episodes", 1)
	viper.SetDefault("environment.simplified", false)

	viper.SetDefault("agents.remote.enabled", false)
	viper.SetDefault("agents.remote.url", "ws://localhost:8765/agents")
	viper.SetDefault("agents.remote.listen", ":8765")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.path", "")

	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "urbandriving")

	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api/episodes")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("storage.influx.host", "localhost")
	viper.SetDefault("storage.influx.port", "8086")
	viper.SetDefault("storage.influx.protocol", "http")
	viper.SetDefault("storage.influx.token", "supersecrettoken")
	viper.SetDefault("storage.influx.org", "urbandriving")
	viper.SetDefault("storage.influx.bucket", "episodes")
	viper.SetDefault("storage.influx.backupPath", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "urbandriving")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults stay in
// effect when the file cannot be read.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// BindFlags lets command line flags override config keys. Flag names are the
// config keys, e.g. --environment.maxTime.
func BindFlags(fs *pflag.FlagSet) error {
	return viper.BindPFlags(fs)
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetEnvironmentConfig returns the scenario and stepper settings.
func GetEnvironmentConfig() EnvironmentConfig {
	return EnvironmentConfig{
		BackgroundCars: viper.GetInt("environment.backgroundCars"),
		ControlledCars: viper.GetInt("environment.controlledCars"),
		Pedestrians:    viper.GetInt("environment.pedestrians"),
		TrafficLights:  viper.GetBool("environment.trafficLights"),
		MaxTime:        viper.GetInt("environment.maxTime"),
		Visualize:      viper.GetBool("environment.visualize"),
		Randomize:      viper.GetBool("environment.randomize"),
		Concurrent:     viper.GetBool("environment.concurrent"),
		Workers:        viper.GetInt("environment.workers"),
		Observation:    viper.GetString("environment.observation"),
		Seed:           viper.GetInt64("environment.seed"),
		Episodes:       viper.GetInt("environment.episodes"),
		Simplified:     viper.GetBool("environment.simplified"),
	}
}

// GetRemoteConfig returns the remote agent server settings.
func GetRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Enabled: viper.GetBool("agents.remote.enabled"),
		URL:     viper.GetString("agents.remote.url"),
		Listen:  viper.GetString("agents.remote.listen"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			Path:         viper.GetString("storage.sqlite.path"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
		Influx: InfluxConfig{
			Host:       viper.GetString("storage.influx.host"),
			Port:       viper.GetString("storage.influx.port"),
			Protocol:   viper.GetString("storage.influx.protocol"),
			Token:      viper.GetString("storage.influx.token"),
			Org:        viper.GetString("storage.influx.org"),
			Bucket:     viper.GetString("storage.influx.bucket"),
			BackupPath: viper.GetString("storage.influx.backupPath"),
		},
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
