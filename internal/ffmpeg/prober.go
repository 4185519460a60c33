package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult holds the properties of a probed media file.
type ProbeResult struct {
	Duration   float64 `json:"duration"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FPS        float64 `json:"fps"`
	Codec      string  `json:"codec"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	Bitrate    int64   `json:"bitrate"`
}

// Prober probes media files with ffprobe.
type Prober struct {
	detector *Detector
	timeout  time.Duration
}

// NewProber creates a prober.
func NewProber(detector *Detector) *Prober {
	return &Prober{
		detector: detector,
		timeout:  15 * time.Second,
	}
}

// ffprobe JSON output structures (partial).
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
	Duration   string `json:"duration"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

// Probe inspects a media file and returns its properties. Requires a video
// stream; audio-only files are rejected.
func (p *Prober) Probe(ctx context.Context, filePath string) (*ProbeResult, error) {
	ffprobePath, err := p.detector.FFprobePath(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var data probeOutput
	if err := json.Unmarshal(output, &data); err != nil {
		return nil, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	var video, audio *probeStream
	for i := range data.Streams {
		s := &data.Streams[i]
		switch s.CodecType {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			if audio == nil {
				audio = s
			}
		}
	}
	if video == nil {
		return nil, fmt.Errorf("no video stream found")
	}

	result := &ProbeResult{
		Width:    video.Width,
		Height:   video.Height,
		FPS:      parseFrameRate(video.RFrameRate),
		Codec:    video.CodecName,
		Duration: parseFloat(data.Format.Duration, parseFloat(video.Duration, 0)),
	}
	if audio != nil {
		result.AudioCodec = audio.CodecName
	}
	if v, err := strconv.ParseInt(data.Format.BitRate, 10, 64); err == nil {
		result.Bitrate = v
	}

	return result, nil
}

// parseFrameRate parses an ffprobe rational like "30000/1001".
func parseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		return parseFloat(rate, 30)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 30
	}
	return n / d
}

func parseFloat(s string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return fallback
}
