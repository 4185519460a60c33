package export

// frameBuffer reorders out-of-order frame submissions. It holds payloads
// for indexes ahead of the next write position and releases the contiguous
// run once the gap fills. All methods assume the owning job's lock is held.
type frameBuffer struct {
	frames   map[int][]byte
	next     int
	bytes    int64
	window   int
	maxBytes int64
}

func newFrameBuffer(window int, maxBytes int64) *frameBuffer {
	return &frameBuffer{
		frames:   make(map[int][]byte),
		window:   window,
		maxBytes: maxBytes,
	}
}

// putResult describes how a submission was handled.
type putResult int

const (
	putBuffered putResult = iota // new index accepted
	putReplaced                  // buffered index overwritten, not recounted
	putFlushed                   // index already written, accepted no-op
)

// put stores a payload for an index. Indexes behind the write position are
// accepted no-ops. Indexes at or beyond next+window, or payloads that would
// push held bytes over the cap, are rejected.
func (b *frameBuffer) put(index int, payload []byte) (putResult, error) {
	if index < b.next {
		return putFlushed, nil
	}
	if index >= b.next+b.window {
		return 0, ErrWindowExceeded
	}

	old, replacing := b.frames[index]
	held := b.bytes
	if replacing {
		held -= int64(len(old))
	}
	if held+int64(len(payload)) > b.maxBytes {
		return 0, ErrWindowExceeded
	}

	b.frames[index] = payload
	b.bytes = held + int64(len(payload))
	if replacing {
		return putReplaced, nil
	}
	return putBuffered, nil
}

// pop removes and returns the payload at the write position, advancing it.
// Returns false when the run is no longer contiguous.
func (b *frameBuffer) pop() ([]byte, bool) {
	payload, ok := b.frames[b.next]
	if !ok {
		return nil, false
	}
	delete(b.frames, b.next)
	b.bytes -= int64(len(payload))
	b.next++
	return payload, true
}

// buffered returns how many frames are currently held.
func (b *frameBuffer) buffered() int {
	return len(b.frames)
}

// nextIndex returns the next frame index the encoder expects.
func (b *frameBuffer) nextIndex() int {
	return b.next
}
