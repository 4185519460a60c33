package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freecut/exportd/internal/ffmpeg"
)

type fakeDetector struct {
	info *ffmpeg.BinaryInfo
	err  error
}

func (f *fakeDetector) Detect(ctx context.Context) (*ffmpeg.BinaryInfo, error) {
	return f.info, f.err
}

type fakeProber struct {
	result *ffmpeg.ProbeResult
	err    error
}

func (f *fakeProber) Probe(ctx context.Context, filePath string) (*ffmpeg.ProbeResult, error) {
	return f.result, f.err
}

type fakeThumbnailer struct {
	data []byte
	err  error
}

func (f *fakeThumbnailer) Thumbnail(ctx context.Context, filePath string, offset time.Duration) ([]byte, error) {
	return f.data, f.err
}

func TestGetFFmpegInfoAvailable(t *testing.T) {
	h := NewSystemHandler(&fakeDetector{
		info: &ffmpeg.BinaryInfo{
			FFmpegPath:   "/usr/bin/ffmpeg",
			Version:      "6.1.1",
			MajorVersion: 6,
			MinorVersion: 1,
			Encoders:     []string{"libx264", "h264_nvenc"},
			HWAccel:      ffmpeg.HWAccel{Encoder: "h264_nvenc", HWAccel: "cuda", Available: true},
		},
	}, &fakeProber{}, &fakeThumbnailer{})

	out, err := h.GetFFmpegInfo(context.Background(), &FFmpegInfoInput{})
	require.NoError(t, err)
	assert.True(t, out.Body.Available)
	assert.Equal(t, "6.1.1", out.Body.Version)
	assert.Equal(t, "h264_nvenc", out.Body.HWEncoder)
	assert.Equal(t, "cuda", out.Body.HWAccel)
}

func TestGetFFmpegInfoUnavailable(t *testing.T) {
	h := NewSystemHandler(&fakeDetector{err: fmt.Errorf("ffmpeg binary not found")}, &fakeProber{}, &fakeThumbnailer{})

	out, err := h.GetFFmpegInfo(context.Background(), &FFmpegInfoInput{})
	require.NoError(t, err)
	assert.False(t, out.Body.Available)
	assert.Empty(t, out.Body.Version)
}

func TestProbeMedia(t *testing.T) {
	h := NewSystemHandler(&fakeDetector{}, &fakeProber{
		result: &ffmpeg.ProbeResult{Duration: 12.5, Width: 1920, Height: 1080, FPS: 30, Codec: "h264"},
	}, &fakeThumbnailer{})

	input := &ProbeInput{}
	input.Body.Path = "/tmp/clip.mp4"

	out, err := h.ProbeMedia(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 1920, out.Body.Width)
	assert.InDelta(t, 12.5, out.Body.Duration, 1e-9)
}

func TestProbeMediaFailure(t *testing.T) {
	h := NewSystemHandler(&fakeDetector{}, &fakeProber{err: fmt.Errorf("no video stream")}, &fakeThumbnailer{})

	input := &ProbeInput{}
	input.Body.Path = "/tmp/missing.mp4"

	_, err := h.ProbeMedia(context.Background(), input)
	require.Error(t, err)

	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.GetStatus())
}

func TestGenerateThumbnail(t *testing.T) {
	h := NewSystemHandler(&fakeDetector{}, &fakeProber{}, &fakeThumbnailer{data: []byte{0xff, 0xd8, 0xff}})

	input := &ThumbnailInput{}
	input.Body.Path = "/tmp/clip.mp4"
	input.Body.TimeSeconds = 1.5

	out, err := h.GenerateThumbnail(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", out.Body.Thumbnail)
}

func TestGenerateThumbnailFailure(t *testing.T) {
	h := NewSystemHandler(&fakeDetector{}, &fakeProber{}, &fakeThumbnailer{err: fmt.Errorf("ffmpeg not available")})

	input := &ThumbnailInput{}
	input.Body.Path = "/tmp/missing.mp4"

	_, err := h.GenerateThumbnail(context.Background(), input)
	require.Error(t, err)

	var statusErr huma.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.GetStatus())
}

func TestGetSystemInfo(t *testing.T) {
	h := NewSystemHandler(&fakeDetector{}, &fakeProber{}, &fakeThumbnailer{})

	out, err := h.GetSystemInfo(context.Background(), &SystemInfoInput{})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Body.OS)
	assert.NotZero(t, out.Body.CPUCores)
}
