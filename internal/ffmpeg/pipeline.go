package ffmpeg

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
)

// Pipeline is a supervised long-lived encoder process. Raw frames are
// written to stdin in order; stdout carries machine-readable progress and
// stderr is retained as a bounded diagnostic tail. Both output streams are
// drained from the moment the process starts so the encoder can never block
// on a full pipe.
type Pipeline struct {
	command *Command
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	tracker *ProgressTracker
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error

	done    chan struct{}
	waitErr error
}

// Launcher starts encoder pipelines using the detected FFmpeg installation.
type Launcher struct {
	detector *Detector
	logger   *slog.Logger
}

// NewLauncher creates a pipeline launcher.
func NewLauncher(detector *Detector, logger *slog.Logger) *Launcher {
	return &Launcher{
		detector: detector,
		logger:   logger,
	}
}

// Start launches an encoder process for the given session. The returned
// pipeline is already running with its progress and stderr readers attached.
func (l *Launcher) Start(ctx context.Context, spec EncodeSpec, videoOnlyPath string) (*Pipeline, error) {
	info, err := l.detector.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not available: %w", err)
	}

	command := BuildEncodeCommand(info.FFmpegPath, spec, info.HWAccel, videoOnlyPath)
	l.logger.Debug("starting encoder",
		slog.String("encoder", spec.EncoderName(info.HWAccel)),
		slog.String("command", command.String()))

	return startPipeline(command, l.logger)
}

// startPipeline wires the pipes and reader goroutines around a command.
func startPipeline(command *Command, logger *slog.Logger) (*Pipeline, error) {
	// The process outlives the request that created it, so it is not bound
	// to a context.
	cmd := exec.Command(command.Binary, command.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting encoder: %w", err)
	}

	p := &Pipeline{
		command: command,
		cmd:     cmd,
		stdin:   stdin,
		tracker: NewProgressTracker(),
		logger:  logger,
		done:    make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		p.tracker.Consume(stdout)
	}()
	go func() {
		defer readers.Done()
		command.captureStderr(stderr)
	}()

	go func() {
		readers.Wait()
		p.waitErr = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

// Write writes one ordered frame payload to the encoder's stdin.
func (p *Pipeline) Write(frame []byte) error {
	_, err := p.stdin.Write(frame)
	return err
}

// CloseInput closes stdin, signalling end of input to the encoder.
// Safe to call more than once.
func (p *Pipeline) CloseInput() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.stdin.Close()
	})
	return p.closeErr
}

// Wait blocks until the encoder exits or the context is done. A non-zero
// exit is returned as the process error; context expiry kills the process.
func (p *Pipeline) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.waitErr
	case <-ctx.Done():
		p.Terminate()
		return ctx.Err()
	}
}

// Terminate kills the encoder process without waiting for it. Reaping
// happens on the pipeline's own wait goroutine.
func (p *Pipeline) Terminate() {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.closeOnce.Do(func() {
		p.closeErr = p.stdin.Close()
	})
}

// Progress returns the latest progress snapshot.
func (p *Pipeline) Progress() Progress {
	return p.tracker.Snapshot()
}

// EncoderFPS returns the encoder's reported throughput.
func (p *Pipeline) EncoderFPS() float64 {
	return p.tracker.Snapshot().FPS
}

// StderrTail returns the retained stderr diagnostic tail.
func (p *Pipeline) StderrTail() string {
	return p.command.StderrTail()
}
