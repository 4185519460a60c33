// Package export implements the frame-streaming export orchestrator: job
// lifecycle, ordered frame delivery into a long-lived encoder process, and
// the finalize/mux protocol.
package export

import (
	"context"
	"sync"
	"time"

	"github.com/freecut/exportd/internal/ffmpeg"
)

// Status is a job lifecycle state. Terminal states absorb all further
// transitions.
type Status string

const (
	StatusEncoding   Status = "encoding"
	StatusFinalizing Status = "finalizing"
	StatusDone       Status = "done"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCancelled
}

// Pipeline is the encoder process handle a job feeds. The real
// implementation lives in internal/ffmpeg; tests substitute fakes.
type Pipeline interface {
	Write(frame []byte) error
	CloseInput() error
	Wait(ctx context.Context) error
	Terminate()
	EncoderFPS() float64
	StderrTail() string
}

// PipelineStarter launches encoder pipelines.
type PipelineStarter interface {
	Start(ctx context.Context, spec ffmpeg.EncodeSpec, videoOnlyPath string) (Pipeline, error)
}

// StarterFunc adapts a function to the PipelineStarter interface.
type StarterFunc func(ctx context.Context, spec ffmpeg.EncodeSpec, videoOnlyPath string) (Pipeline, error)

func (f StarterFunc) Start(ctx context.Context, spec ffmpeg.EncodeSpec, videoOnlyPath string) (Pipeline, error) {
	return f(ctx, spec, videoOnlyPath)
}

// Muxer runs the audio mux pass during finalize.
type Muxer interface {
	Mux(ctx context.Context, videoOnlyPath, audioPath, outputPath, container string, audioBitrate int64) error
}

// MuxerFunc adapts a function to the Muxer interface.
type MuxerFunc func(ctx context.Context, videoOnlyPath, audioPath, outputPath, container string, audioBitrate int64) error

func (f MuxerFunc) Mux(ctx context.Context, videoOnlyPath, audioPath, outputPath, container string, audioBitrate int64) error {
	return f(ctx, videoOnlyPath, audioPath, outputPath, container, audioBitrate)
}

// Job is one export session. The mutex is the single ordering authority
// for buffer, counters and status; pipeline writes happen under it so
// frames reach the encoder in index order.
type Job struct {
	ID            string
	Spec          ffmpeg.EncodeSpec
	TotalFrames   int
	TempDir       string
	OutputPath    string
	VideoOnlyPath string
	CreatedAt     time.Time

	mu             sync.Mutex
	status         Status
	errMsg         string
	pipeline       Pipeline
	buffer         *frameBuffer
	framesReceived int
	audioPath      string
	encoderFPS     float64
	fileSize       int64
}

// Snapshot is a read-only view of a job's state.
type Snapshot struct {
	ID             string    `json:"id"`
	Status         Status    `json:"status"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	FPS            float64   `json:"fps"`
	TotalFrames    int       `json:"total_frames"`
	FramesReceived int       `json:"frames_received"`
	Progress       float64   `json:"progress"`
	EncoderFPS     float64   `json:"encoder_fps"`
	Container      string    `json:"container"`
	OutputPath     string    `json:"output_path"`
	FileSize       int64     `json:"file_size,omitempty"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// frameSize returns the expected payload size for one RGBA frame.
func (j *Job) frameSize() int {
	return j.Spec.Width * j.Spec.Height * 4
}

// snapshotLocked builds a snapshot. Caller holds j.mu.
func (j *Job) snapshotLocked() Snapshot {
	progress := 0.0
	if j.TotalFrames > 0 {
		progress = float64(j.framesReceived) / float64(j.TotalFrames)
		if progress > 1 {
			progress = 1
		}
	}

	fps := j.encoderFPS
	if j.pipeline != nil {
		fps = j.pipeline.EncoderFPS()
	}

	return Snapshot{
		ID:             j.ID,
		Status:         j.status,
		Width:          j.Spec.Width,
		Height:         j.Spec.Height,
		FPS:            j.Spec.FPS,
		TotalFrames:    j.TotalFrames,
		FramesReceived: j.framesReceived,
		Progress:       progress,
		EncoderFPS:     fps,
		Container:      j.Spec.Container,
		OutputPath:     j.OutputPath,
		FileSize:       j.fileSize,
		Error:          j.errMsg,
		CreatedAt:      j.CreatedAt,
	}
}

// Snapshot returns a read-only view of the job.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snapshotLocked()
}

// failLocked moves the job to error and detaches the pipeline. The handle
// is terminated asynchronously so callers never block on teardown.
// Caller holds j.mu. Terminal states absorb.
func (j *Job) failLocked(msg string) {
	if j.status.Terminal() {
		return
	}
	j.status = StatusError
	j.errMsg = msg
	j.detachPipelineLocked()
}

// detachPipelineLocked drops the pipeline handle, killing the process in
// the background. Caller holds j.mu.
func (j *Job) detachPipelineLocked() {
	if j.pipeline == nil {
		return
	}
	p := j.pipeline
	j.encoderFPS = p.EncoderFPS()
	j.pipeline = nil
	go p.Terminate()
}
