package ffmpeg

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Progress is a snapshot of encoder progress parsed from FFmpeg's
// -progress pipe:1 output.
type Progress struct {
	Frame   int64         `json:"frame"`
	FPS     float64       `json:"fps"`
	OutTime time.Duration `json:"out_time"`
	Speed   float64       `json:"speed"`
	Done    bool          `json:"done"`
}

// Fraction returns completion as a value in [0, 1] relative to the total
// output duration. Returns 0 when the total duration is unknown.
func (p Progress) Fraction(total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(p.OutTime) / float64(total)
	if f > 1 {
		return 1
	}
	return f
}

// ProgressTracker accumulates key=value progress lines from a running
// encoder. It is safe for concurrent use: one goroutine consumes the
// process stdout while others snapshot.
type ProgressTracker struct {
	mu  sync.RWMutex
	cur Progress
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{}
}

// Snapshot returns the current progress.
func (t *ProgressTracker) Snapshot() Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur
}

// Consume reads key=value lines from r until EOF, updating the tracker.
// Lines that do not parse are skipped; the loop never aborts on bad input.
func (t *ProgressTracker) Consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t.Apply(scanner.Text())
	}
}

// Apply parses a single progress line and folds it into the tracker.
// Malformed lines are ignored.
func (t *ProgressTracker) Apply(line string) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	t.mu.Lock()
	defer t.mu.Unlock()

	switch key {
	case "frame":
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			t.cur.Frame = v
		}
	case "fps":
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			t.cur.FPS = v
		}
	case "out_time_us", "out_time_ms":
		// Both report microseconds despite the _ms suffix.
		if v, err := strconv.ParseInt(value, 10, 64); err == nil && v >= 0 {
			t.cur.OutTime = time.Duration(v) * time.Microsecond
		}
	case "speed":
		if v, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
			t.cur.Speed = v
		}
	case "progress":
		if value == "end" {
			t.cur.Done = true
		}
	}
}
