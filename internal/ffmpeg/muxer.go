package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
)

// Muxer runs the finalize pass that copies the encoded video stream and
// attaches the captured audio track.
type Muxer struct {
	detector *Detector
	logger   *slog.Logger
}

// NewMuxer creates a muxer.
func NewMuxer(detector *Detector, logger *slog.Logger) *Muxer {
	return &Muxer{
		detector: detector,
		logger:   logger,
	}
}

// Mux combines the video-only artifact with an audio file into outputPath.
// The caller bounds the run time through the context.
func (m *Muxer) Mux(ctx context.Context, videoOnlyPath, audioPath, outputPath, container string, audioBitrate int64) error {
	info, err := m.detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("ffmpeg not available: %w", err)
	}

	command := BuildMuxCommand(info.FFmpegPath, videoOnlyPath, audioPath, outputPath, container, audioBitrate)
	m.logger.Debug("muxing audio", slog.String("command", command.String()))

	if err := command.Run(ctx); err != nil {
		return fmt.Errorf("mux failed: %w (stderr: %s)", err, command.StderrTail())
	}
	return nil
}
