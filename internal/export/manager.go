package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/freecut/exportd/internal/config"
	"github.com/freecut/exportd/internal/ffmpeg"
)

// CreateRequest describes a new export session.
type CreateRequest struct {
	Width        int
	Height       int
	FPS          float64
	TotalFrames  int
	Codec        string
	Quality      string
	Container    string
	VideoBitrate int64
	AudioBitrate int64
}

// Manager owns the job registry. It is the only component that creates or
// removes jobs; everything else goes through its operations.
type Manager struct {
	cfg     config.ExportConfig
	baseDir string
	starter PipelineStarter
	muxer   Muxer
	logger  *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job

	now func() time.Time
}

// NewManager creates a job manager. baseDir is where per-job temp
// directories are created.
func NewManager(cfg config.ExportConfig, baseDir string, starter PipelineStarter, muxer Muxer, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		baseDir: baseDir,
		starter: starter,
		muxer:   muxer,
		logger:  logger,
		jobs:    make(map[string]*Job),
		now:     time.Now,
	}
}

// Create validates the request, starts an encoder pipeline and registers a
// new job in the encoding state. Expired terminal jobs are swept first.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (Snapshot, error) {
	if req.TotalFrames <= 0 {
		return Snapshot{}, fmt.Errorf("totalFrames must be > 0")
	}
	if req.Width <= 0 || req.Height <= 0 {
		return Snapshot{}, fmt.Errorf("width and height must be > 0")
	}
	if req.FPS <= 0 {
		return Snapshot{}, fmt.Errorf("fps must be > 0")
	}

	if req.Quality == "" {
		req.Quality = "high"
	}
	if req.Container == "" {
		req.Container = "mp4"
	}

	m.Reap()

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return Snapshot{}, fmt.Errorf("creating export dir: %w", err)
	}
	tempDir, err := os.MkdirTemp(m.baseDir, "export_")
	if err != nil {
		return Snapshot{}, fmt.Errorf("creating job dir: %w", err)
	}

	id := ulid.Make().String()
	ext := ffmpeg.ContainerExt(req.Container)
	spec := ffmpeg.EncodeSpec{
		Width:        req.Width,
		Height:       req.Height,
		FPS:          req.FPS,
		Codec:        req.Codec,
		Quality:      req.Quality,
		Container:    req.Container,
		VideoBitrate: req.VideoBitrate,
		AudioBitrate: req.AudioBitrate,
	}

	job := &Job{
		ID:            id,
		Spec:          spec,
		TotalFrames:   req.TotalFrames,
		TempDir:       tempDir,
		OutputPath:    filepath.Join(tempDir, "export_"+id+ext),
		VideoOnlyPath: filepath.Join(tempDir, "video_"+id+ext),
		CreatedAt:     m.now(),
		status:        StatusEncoding,
		buffer:        newFrameBuffer(m.cfg.FrameWindow, m.cfg.MaxBufferBytes.Int64()),
	}

	pipeline, err := m.starter.Start(ctx, spec, job.VideoOnlyPath)
	if err != nil {
		os.RemoveAll(tempDir)
		return Snapshot{}, fmt.Errorf("starting encoder: %w", err)
	}
	job.pipeline = pipeline

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	m.logger.Info("export job created",
		slog.String("job_id", id),
		slog.Int("width", req.Width),
		slog.Int("height", req.Height),
		slog.Float64("fps", req.FPS),
		slog.Int("total_frames", req.TotalFrames),
		slog.String("container", spec.Container))

	return job.Snapshot(), nil
}

// get fetches a job by ID.
func (m *Manager) get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job, nil
}

// SubmitFrame accepts one frame payload for an index and flushes the
// contiguous run to the encoder. Frames may arrive in any order within the
// reorder window; resubmitting an already-written index is a no-op.
func (m *Manager) SubmitFrame(id string, index int, payload []byte) (Snapshot, error) {
	job, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.status != StatusEncoding {
		return Snapshot{}, fmt.Errorf("%w: job is %s", ErrInvalidState, job.status)
	}
	if want := job.frameSize(); len(payload) != want {
		return Snapshot{}, fmt.Errorf("%w: got %d, expected %d", ErrPayloadMismatch, len(payload), want)
	}
	if job.pipeline == nil {
		return Snapshot{}, ErrPipelineUnavailable
	}

	res, err := job.buffer.put(index, payload)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: index %d, next %d", err, index, job.buffer.nextIndex())
	}
	if res == putBuffered {
		job.framesReceived++
	}

	for {
		data, ok := job.buffer.pop()
		if !ok {
			break
		}
		if err := job.pipeline.Write(data); err != nil {
			written := job.buffer.nextIndex() - 1
			tail := job.pipeline.StderrTail()
			job.failLocked(fmt.Sprintf("failed to write frame %d: %v", written, err))
			return Snapshot{}, &EncoderError{
				Op:         fmt.Sprintf("writing frame %d", written),
				Err:        err,
				StderrTail: tail,
			}
		}
	}

	return job.snapshotLocked(), nil
}

// SubmitAudio stores the audio track to mux during finalize. The last
// submission wins.
func (m *Manager) SubmitAudio(id string, r io.Reader) (int64, error) {
	job, err := m.get(id)
	if err != nil {
		return 0, err
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.status != StatusEncoding {
		return 0, fmt.Errorf("%w: job is %s", ErrInvalidState, job.status)
	}

	audioPath := filepath.Join(job.TempDir, "audio_"+job.ID+".wav")
	f, err := os.Create(audioPath)
	if err != nil {
		return 0, fmt.Errorf("creating audio file: %w", err)
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(audioPath)
		return 0, fmt.Errorf("writing audio file: %w", err)
	}

	job.audioPath = audioPath
	m.logger.Debug("audio track stored",
		slog.String("job_id", id),
		slog.Int64("bytes", n))
	return n, nil
}

// Finalize ends the frame stream: flushes buffered frames, closes encoder
// stdin, waits for a clean exit and produces the final artifact. When an
// audio track is present it is muxed in; a mux failure falls back to the
// video-only artifact and the job still succeeds.
func (m *Manager) Finalize(ctx context.Context, id string) (Snapshot, error) {
	job, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}

	job.mu.Lock()
	if job.status != StatusEncoding {
		status := job.status
		job.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: job is %s", ErrInvalidState, status)
	}
	pipeline := job.pipeline
	if pipeline == nil {
		job.failLocked("encoder pipeline unavailable")
		job.mu.Unlock()
		return Snapshot{}, ErrPipelineUnavailable
	}
	job.status = StatusFinalizing

	// Flush whatever contiguous run remains.
	for {
		data, ok := job.buffer.pop()
		if !ok {
			break
		}
		if err := pipeline.Write(data); err != nil {
			written := job.buffer.nextIndex() - 1
			tail := pipeline.StderrTail()
			job.failLocked(fmt.Sprintf("failed to flush frame %d: %v", written, err))
			job.mu.Unlock()
			return Snapshot{}, &EncoderError{
				Op:         fmt.Sprintf("flushing frame %d", written),
				Err:        err,
				StderrTail: tail,
			}
		}
	}
	audioPath := job.audioPath
	job.mu.Unlock()

	if err := pipeline.CloseInput(); err != nil {
		m.logger.Warn("closing encoder stdin", slog.String("job_id", id), slog.String("error", err.Error()))
	}

	// Bounded wait for the encoder, outside the job lock so progress
	// queries stay responsive.
	waitCtx, cancel := context.WithTimeout(ctx, m.cfg.FinalizeTimeout)
	err = pipeline.Wait(waitCtx)
	cancel()

	job.mu.Lock()
	if job.status != StatusFinalizing {
		// Cancelled while waiting.
		status := job.status
		job.mu.Unlock()
		return Snapshot{}, fmt.Errorf("%w: job is %s", ErrInvalidState, status)
	}
	if err != nil {
		tail := pipeline.StderrTail()
		if errors.Is(err, context.DeadlineExceeded) {
			job.failLocked("encoder did not exit before timeout")
			job.mu.Unlock()
			return Snapshot{}, ErrFinalizeTimeout
		}
		job.failLocked(fmt.Sprintf("encoder failed: %v", err))
		job.mu.Unlock()
		return Snapshot{}, &EncoderError{Op: "waiting for encoder", Err: err, StderrTail: tail}
	}
	job.encoderFPS = pipeline.EncoderFPS()
	job.pipeline = nil
	job.mu.Unlock()

	finalErr := m.assembleArtifact(ctx, job, audioPath)

	job.mu.Lock()
	defer job.mu.Unlock()
	if job.status != StatusFinalizing {
		return Snapshot{}, fmt.Errorf("%w: job is %s", ErrInvalidState, job.status)
	}
	if finalErr != nil {
		job.failLocked(finalErr.Error())
		return Snapshot{}, finalErr
	}

	fi, err := os.Stat(job.OutputPath)
	if err != nil {
		job.failLocked("final artifact missing")
		return Snapshot{}, fmt.Errorf("final artifact missing: %w", err)
	}
	job.fileSize = fi.Size()
	job.status = StatusDone

	m.logger.Info("export complete",
		slog.String("job_id", id),
		slog.Int64("file_size", job.fileSize),
		slog.String("output", job.OutputPath))

	return job.snapshotLocked(), nil
}

// assembleArtifact turns the video-only file into the final output, muxing
// in audio when present. Runs without the job lock.
func (m *Manager) assembleArtifact(ctx context.Context, job *Job, audioPath string) error {
	if audioPath != "" {
		muxCtx, cancel := context.WithTimeout(ctx, m.cfg.MuxTimeout)
		err := m.muxer.Mux(muxCtx, job.VideoOnlyPath, audioPath, job.OutputPath, job.Spec.Container, job.Spec.AudioBitrate)
		cancel()
		if err == nil {
			os.Remove(job.VideoOnlyPath)
			return nil
		}
		// Mux failure is not fatal: ship the video-only artifact.
		m.logger.Warn("audio mux failed, using video-only output",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}

	if err := os.Rename(job.VideoOnlyPath, job.OutputPath); err != nil {
		return fmt.Errorf("moving video artifact: %w", err)
	}
	return nil
}

// Cancel aborts a job and removes its temp artifacts. Terminal jobs are
// left untouched; repeated cancels succeed.
func (m *Manager) Cancel(id string) error {
	job, err := m.get(id)
	if err != nil {
		return err
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.status.Terminal() {
		return nil
	}
	job.status = StatusCancelled
	pipeline := job.pipeline
	if pipeline != nil {
		job.encoderFPS = pipeline.EncoderFPS()
		job.pipeline = nil
	}

	// Artifact cleanup runs after the kill is issued so the encoder is not
	// writing into the directory while it is removed.
	go func() {
		if pipeline != nil {
			pipeline.Terminate()
		}
		if err := os.RemoveAll(job.TempDir); err != nil {
			m.logger.Warn("removing cancelled job dir",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()))
		}
	}()

	m.logger.Info("export cancelled", slog.String("job_id", id))
	return nil
}

// Get returns the current snapshot for a job. Non-blocking with respect to
// encoding work and never mutates the job.
func (m *Manager) Get(id string) (Snapshot, error) {
	job, err := m.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return job.Snapshot(), nil
}

// OutputFile returns the final artifact path and content type for a
// completed job.
func (m *Manager) OutputFile(id string) (path, contentType string, err error) {
	job, err := m.get(id)
	if err != nil {
		return "", "", err
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	if job.status != StatusDone {
		return "", "", fmt.Errorf("%w: job is %s", ErrInvalidState, job.status)
	}
	return job.OutputPath, ffmpeg.ContentType(job.Spec.Container), nil
}

// Reap removes terminal jobs older than the retention window, deleting
// their temp directories. Non-terminal jobs are never touched. Returns the
// number of jobs removed.
func (m *Manager) Reap() int {
	cutoff := m.now().Add(-m.cfg.JobRetention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, job := range m.jobs {
		job.mu.Lock()
		terminal := job.status.Terminal()
		job.mu.Unlock()

		if !terminal || !job.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(job.TempDir); err != nil {
			m.logger.Warn("removing job dir",
				slog.String("job_id", id),
				slog.String("error", err.Error()))
		}
		delete(m.jobs, id)
		removed++
	}

	if removed > 0 {
		m.logger.Info("reaped expired export jobs", slog.Int("count", removed))
	}
	return removed
}

// Close cancels all live jobs. Used on shutdown.
func (m *Manager) Close() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Cancel(id)
	}
}
