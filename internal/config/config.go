// Package config provides configuration management for clipwave using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8080
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 10
	defaultConnMaxIdleTime = 30 * time.Minute

	defaultAudioCodec      = "libmp3lame"
	defaultAudioBitrate    = "192k"
	defaultAudioSampleRate = 44100

	defaultDownloadFormat = "bestaudio/best"

	defaultAcquireSpeedRatio     = 5.0
	defaultDurationToleranceSecs = 2.0
	defaultDocumentRetries       = 3
	defaultDocumentRetryDelay    = 5 * time.Second
	defaultScratchRetention      = 24 * time.Hour
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Redis    RedisConfig    `mapstructure:"redis"`
	FFmpeg   FFmpegConfig   `mapstructure:"ffmpeg"`
	Ytdlp    YtdlpConfig    `mapstructure:"ytdlp"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// BaseDir is the root of the local object store.
	BaseDir string `mapstructure:"base_dir"`
	// ScratchDir holds transient files created while a job runs. Every file
	// placed here is tracked and removed when its job finishes.
	ScratchDir string `mapstructure:"scratch_dir"`
	// ScratchRetention bounds how long an orphaned scratch file may survive
	// before the janitor removes it.
	ScratchRetention time.Duration `mapstructure:"scratch_retention"`
	// JanitorCron is the cron expression for the scratch sweep.
	JanitorCron string `mapstructure:"janitor_cron"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// RedisConfig holds the progress sink connection configuration.
type RedisConfig struct {
	// Enabled selects the Redis-backed progress sink; when false an in-process
	// sink is used instead.
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// KeyPrefix namespaces progress keys, e.g. "clipwave:progress:".
	KeyPrefix string `mapstructure:"key_prefix"`
}

// FFmpegConfig holds transcoder invocation configuration.
type FFmpegConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to ffmpeg binary (empty = look up in PATH)
	ProbePath  string `mapstructure:"probe_path"`  // Path to ffprobe binary (empty = look up in PATH)
	AudioCodec string `mapstructure:"audio_codec"`
	Bitrate    string `mapstructure:"bitrate"`
	SampleRate int    `mapstructure:"sample_rate"`
	// FatalPatterns are stderr substrings that indicate failure even before
	// the process exits, e.g. "Output file is empty".
	FatalPatterns []string `mapstructure:"fatal_patterns"`
}

// YtdlpConfig holds downloader invocation configuration.
type YtdlpConfig struct {
	BinaryPath string `mapstructure:"binary_path"` // Path to yt-dlp binary (empty = look up in PATH)
	Format     string `mapstructure:"format"`      // Format selector passed to -f
	CookieFile string `mapstructure:"cookie_file"` // Optional cookies.txt path
}

// PipelineConfig holds pipeline tuning parameters.
type PipelineConfig struct {
	// AcquireSpeedRatio is how many times faster acquisition is assumed to be
	// than transcoding per unit of media time. Hand-tuned, not measured.
	AcquireSpeedRatio float64 `mapstructure:"acquire_speed_ratio"`
	// DurationTolerance is the allowed excess, in seconds, between a
	// section download's actual duration and the requested duration before a
	// corrective trim is forced on the transcode stage.
	DurationTolerance float64 `mapstructure:"duration_tolerance"`
	// DocumentRetries and DocumentRetryDelay bound the existence poll that
	// tolerates read-after-write lag in the document store.
	DocumentRetries    int           `mapstructure:"document_retries"`
	DocumentRetryDelay time.Duration `mapstructure:"document_retry_delay"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with CLIPWAVE_ and use underscores for
// nesting. Example: CLIPWAVE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/clipwave")
		v.AddConfigPath("$HOME/.clipwave")
	}

	v.SetEnvPrefix("CLIPWAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// FromViper unmarshals and validates configuration from an already-populated
// viper instance, e.g. the global one managed by the CLI.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file so defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "clipwave.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.scratch_dir", "scratch")
	v.SetDefault("storage.scratch_retention", defaultScratchRetention)
	v.SetDefault("storage.janitor_cron", "0 * * * *") // hourly

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "clipwave:progress:")

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.audio_codec", defaultAudioCodec)
	v.SetDefault("ffmpeg.bitrate", defaultAudioBitrate)
	v.SetDefault("ffmpeg.sample_rate", defaultAudioSampleRate)
	v.SetDefault("ffmpeg.fatal_patterns", []string{
		"Output file is empty",
		"Invalid data found when processing input",
	})

	// yt-dlp defaults
	v.SetDefault("ytdlp.binary_path", "")
	v.SetDefault("ytdlp.format", defaultDownloadFormat)
	v.SetDefault("ytdlp.cookie_file", "")

	// Pipeline defaults
	v.SetDefault("pipeline.acquire_speed_ratio", defaultAcquireSpeedRatio)
	v.SetDefault("pipeline.duration_tolerance", defaultDurationToleranceSecs)
	v.SetDefault("pipeline.document_retries", defaultDocumentRetries)
	v.SetDefault("pipeline.document_retry_delay", defaultDocumentRetryDelay)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Pipeline.AcquireSpeedRatio <= 0 {
		return fmt.Errorf("pipeline.acquire_speed_ratio must be positive")
	}
	if c.Pipeline.DurationTolerance < 0 {
		return fmt.Errorf("pipeline.duration_tolerance must not be negative")
	}
	if c.Pipeline.DocumentRetries < 1 {
		return fmt.Errorf("pipeline.document_retries must be at least 1")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ScratchPath returns the full path to the scratch directory.
func (c *StorageConfig) ScratchPath() string {
	return filepath.Join(c.BaseDir, c.ScratchDir)
}
