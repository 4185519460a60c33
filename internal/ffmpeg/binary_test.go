package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freecut/exportd/internal/config"
)

// fakeFFmpeg writes a shell script that mimics the ffmpeg subcommands the
// detector calls.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixture requires a POSIX shell")
	}

	script := `#!/bin/sh
case "$1" in
-version)
	echo "ffmpeg version 6.1.1 Copyright (c) 2000-2023 the FFmpeg developers"
	;;
-encoders)
	echo "Encoders:"
	echo " ------"
	echo " V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC"
	echo " A....D aac                  AAC (Advanced Audio Coding)"
	;;
esac
`
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestDetectorDetect(t *testing.T) {
	detector := NewDetector(config.FFmpegConfig{
		BinaryPath: fakeFFmpeg(t),
		UseHWAccel: false,
	})

	info, err := detector.Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "6.1.1", info.Version)
	assert.Equal(t, 6, info.MajorVersion)
	assert.Equal(t, 1, info.MinorVersion)
	assert.True(t, info.HasEncoder("libx264"))
	assert.True(t, info.HasEncoder("aac"))
	assert.False(t, info.HasEncoder("h264_nvenc"))

	assert.Equal(t, "libx264", info.HWAccel.Encoder)
	assert.False(t, info.HWAccel.Available)
}

func TestDetectorCaches(t *testing.T) {
	path := fakeFFmpeg(t)
	detector := NewDetector(config.FFmpegConfig{BinaryPath: path, UseHWAccel: false})

	first, err := detector.Detect(context.Background())
	require.NoError(t, err)

	// Removing the binary does not invalidate a warm cache.
	require.NoError(t, os.Remove(path))
	second, err := detector.Detect(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	detector.Clear()
	_, err = detector.Detect(context.Background())
	assert.Error(t, err)
}

func TestDetectorMissingBinary(t *testing.T) {
	detector := NewDetector(config.FFmpegConfig{
		BinaryPath: filepath.Join(t.TempDir(), "missing"),
	})

	_, err := detector.Detect(context.Background())
	assert.Error(t, err)
}
