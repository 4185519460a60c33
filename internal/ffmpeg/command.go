package ffmpeg

import (
	"bufio"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// maxStderrLines bounds the in-memory stderr tail kept for diagnostics.
const maxStderrLines = 100

// Command represents an FFmpeg invocation.
type Command struct {
	Binary string
	Args   []string

	stderrMu    sync.RWMutex
	stderrLines []string
}

// String returns the command as a shell-style string.
func (c *Command) String() string {
	return c.Binary + " " + strings.Join(c.Args, " ")
}

// Run executes the command to completion, capturing a stderr tail for
// diagnostics. The process is killed when the context is cancelled.
func (c *Command) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.captureStderr(stderr)
	}()

	waitErr := cmd.Wait()
	<-done
	return waitErr
}

// captureStderr reads stderr line by line into a bounded ring buffer.
func (c *Command) captureStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.appendStderr(scanner.Text())
	}
}

func (c *Command) appendStderr(line string) {
	c.stderrMu.Lock()
	defer c.stderrMu.Unlock()
	if len(c.stderrLines) >= maxStderrLines {
		c.stderrLines = c.stderrLines[1:]
	}
	c.stderrLines = append(c.stderrLines, line)
}

// StderrTail returns the captured stderr tail as a single string.
func (c *Command) StderrTail() string {
	c.stderrMu.RLock()
	defer c.stderrMu.RUnlock()
	return strings.Join(c.stderrLines, "\n")
}
