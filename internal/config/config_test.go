package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "./data", cfg.Storage.BaseDir)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, time.Hour, cfg.Export.JobRetention)
	assert.Equal(t, 2*time.Minute, cfg.Export.FinalizeTimeout)
	assert.Equal(t, time.Minute, cfg.Export.MuxTimeout)
	assert.Equal(t, 240, cfg.Export.FrameWindow)
	assert.Equal(t, int64(512*1024*1024), cfg.Export.MaxBufferBytes.Int64())
	assert.Equal(t, int64(64*1024*1024), cfg.Export.MaxFrameBytes.Int64())
	assert.Equal(t, int64(256*1024*1024), cfg.Export.MaxAudioBytes.Int64())
	assert.True(t, cfg.FFmpeg.UseHWAccel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9999
export:
  job_retention: 30m
  frame_window: 60
  max_buffer_bytes: 128MB
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Export.JobRetention)
	assert.Equal(t, 60, cfg.Export.FrameWindow)
	assert.Equal(t, int64(128*1024*1024), cfg.Export.MaxBufferBytes.Int64())
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EXPORTD_SERVER_PORT", "7070")
	t.Setenv("EXPORTD_EXPORT_MAX_BUFFER_BYTES", "1GB")
	t.Setenv("EXPORTD_LOGGING_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, int64(1024*1024*1024), cfg.Export.MaxBufferBytes.Int64())
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "empty base dir",
			mutate:  func(c *Config) { c.Storage.BaseDir = "" },
			wantErr: "storage.base_dir",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "zero retention",
			mutate:  func(c *Config) { c.Export.JobRetention = 0 },
			wantErr: "export.job_retention",
		},
		{
			name:    "zero frame window",
			mutate:  func(c *Config) { c.Export.FrameWindow = 0 },
			wantErr: "export.frame_window",
		},
		{
			name:    "zero buffer cap",
			mutate:  func(c *Config) { c.Export.MaxBufferBytes = 0 },
			wantErr: "export.max_buffer_bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestServerAddress(t *testing.T) {
	sc := ServerConfig{Host: "127.0.0.1", Port: 8090}
	assert.Equal(t, "127.0.0.1:8090", sc.Address())
}

func TestStorageTempPath(t *testing.T) {
	sc := StorageConfig{BaseDir: "/var/lib/exportd", TempDir: "exports"}
	assert.Equal(t, filepath.Join("/var/lib/exportd", "exports"), sc.TempPath())
}
