package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"time"
)

// Thumbnailer extracts single-frame JPEG previews from media files.
type Thumbnailer struct {
	detector *Detector
	timeout  time.Duration
}

// NewThumbnailer creates a thumbnailer.
func NewThumbnailer(detector *Detector) *Thumbnailer {
	return &Thumbnailer{
		detector: detector,
		timeout:  10 * time.Second,
	}
}

// Thumbnail extracts one scaled JPEG frame at the given offset and returns
// the encoded image bytes. The intermediate file is removed before returning.
func (t *Thumbnailer) Thumbnail(ctx context.Context, filePath string, offset time.Duration) ([]byte, error) {
	info, err := t.detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	tmp, err := os.CreateTemp("", "thumb_*.jpg")
	if err != nil {
		return nil, fmt.Errorf("creating thumbnail file: %w", err)
	}
	outputPath := tmp.Name()
	tmp.Close()
	defer os.Remove(outputPath)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	command := BuildThumbnailCommand(info.FFmpegPath, filePath, outputPath, offset)
	if err := command.Run(ctx); err != nil {
		return nil, fmt.Errorf("thumbnail generation failed: %w (stderr: %s)", err, command.StderrTail())
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("reading thumbnail: %w", err)
	}
	return data, nil
}
