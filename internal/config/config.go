// Package config provides configuration management for exportd using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 8090
	defaultServerTimeout   = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	defaultJobRetention    = time.Hour
	defaultReapSchedule    = "@every 10m"
	defaultFinalizeTimeout = 2 * time.Minute
	defaultMuxTimeout      = time.Minute
	defaultFrameWindow     = 240
	defaultMaxBufferBytes  = 512 * 1024 * 1024
	defaultMaxFrameBytes   = 64 * 1024 * 1024
	defaultMaxAudioBytes   = 256 * 1024 * 1024
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Export  ExportConfig  `mapstructure:"export"`
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
	TempDir string `mapstructure:"temp_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// ExportConfig holds export job orchestration configuration.
type ExportConfig struct {
	// JobRetention is how long terminal jobs (and their temp artifacts)
	// are kept before the reaper removes them.
	JobRetention time.Duration `mapstructure:"job_retention"`
	// ReapSchedule is the cron schedule for the background reap sweep.
	ReapSchedule string `mapstructure:"reap_schedule"`
	// FinalizeTimeout bounds the wait for encoder exit during finalize.
	FinalizeTimeout time.Duration `mapstructure:"finalize_timeout"`
	// MuxTimeout bounds the audio mux pass.
	MuxTimeout time.Duration `mapstructure:"mux_timeout"`
	// FrameWindow is how many frames ahead of the next expected index a
	// submission may arrive before it is rejected.
	FrameWindow int `mapstructure:"frame_window"`
	// MaxBufferBytes caps the total bytes held in a job's reorder buffer.
	// Supports human-readable values like "512MB".
	MaxBufferBytes ByteSize `mapstructure:"max_buffer_bytes"`
	// MaxFrameBytes caps a single frame payload (request body limit).
	MaxFrameBytes ByteSize `mapstructure:"max_frame_bytes"`
	// MaxAudioBytes caps the audio track upload (request body limit).
	MaxAudioBytes ByteSize `mapstructure:"max_audio_bytes"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath      string   `mapstructure:"binary_path"`      // Path to ffmpeg binary (empty = auto-detect)
	ProbePath       string   `mapstructure:"probe_path"`       // Path to ffprobe binary (empty = auto-detect)
	UseHWAccel      bool     `mapstructure:"use_hwaccel"`      // Prefer hardware encoders when available
	HWAccelPriority []string `mapstructure:"hwaccel_priority"` // Priority order: nvenc, qsv, vaapi, videotoolbox
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with EXPORTD_ and use underscores for
// nesting. Example: EXPORTD_SERVER_PORT=8090.
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
		v.AddConfigPath("/etc/exportd")
		v.AddConfigPath("$HOME/.exportd")
	}

	v.SetEnvPrefix("EXPORTD")
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
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		ByteSizeDecodeHook(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.idle_timeout", defaultIdleTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Storage defaults
	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.temp_dir", "exports")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Export defaults
	v.SetDefault("export.job_retention", defaultJobRetention)
	v.SetDefault("export.reap_schedule", defaultReapSchedule)
	v.SetDefault("export.finalize_timeout", defaultFinalizeTimeout)
	v.SetDefault("export.mux_timeout", defaultMuxTimeout)
	v.SetDefault("export.frame_window", defaultFrameWindow)
	v.SetDefault("export.max_buffer_bytes", defaultMaxBufferBytes)
	v.SetDefault("export.max_frame_bytes", defaultMaxFrameBytes)
	v.SetDefault("export.max_audio_bytes", defaultMaxAudioBytes)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.use_hwaccel", true)
	v.SetDefault("ffmpeg.hwaccel_priority", []string{"nvenc", "qsv", "vaapi", "videotoolbox"})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
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

	if c.Export.JobRetention <= 0 {
		return fmt.Errorf("export.job_retention must be positive")
	}
	if c.Export.FinalizeTimeout <= 0 {
		return fmt.Errorf("export.finalize_timeout must be positive")
	}
	if c.Export.MuxTimeout <= 0 {
		return fmt.Errorf("export.mux_timeout must be positive")
	}
	if c.Export.FrameWindow < 1 {
		return fmt.Errorf("export.frame_window must be at least 1")
	}
	if c.Export.MaxBufferBytes < 1 {
		return fmt.Errorf("export.max_buffer_bytes must be positive")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TempPath returns the full path to the export temp directory.
func (c *StorageConfig) TempPath() string {
	return filepath.Join(c.BaseDir, c.TempDir)
}
