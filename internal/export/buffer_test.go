package export

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameBufferReordersAnyPermutation(t *testing.T) {
	const n = 16
	indexes := rand.Perm(n)

	b := newFrameBuffer(n, 1<<20)
	var drained []byte
	for _, idx := range indexes {
		res, err := b.put(idx, []byte{byte(idx)})
		require.NoError(t, err)
		assert.Equal(t, putBuffered, res)

		for {
			data, ok := b.pop()
			if !ok {
				break
			}
			drained = append(drained, data...)
		}
	}

	require.Len(t, drained, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(i), drained[i], "frame %d out of order", i)
	}
	assert.Zero(t, b.buffered())
	assert.Zero(t, b.bytes)
	assert.Equal(t, n, b.nextIndex())
}

func TestFrameBufferWindowRejection(t *testing.T) {
	b := newFrameBuffer(4, 1<<20)

	_, err := b.put(3, []byte{3})
	assert.NoError(t, err, "index at window edge is accepted")

	_, err = b.put(4, []byte{4})
	assert.ErrorIs(t, err, ErrWindowExceeded)

	// Advancing the write position slides the window.
	_, err = b.put(0, []byte{0})
	require.NoError(t, err)
	for {
		if _, ok := b.pop(); !ok {
			break
		}
	}
	_, err = b.put(4, []byte{4})
	assert.NoError(t, err)
}

func TestFrameBufferByteCap(t *testing.T) {
	b := newFrameBuffer(100, 10)

	_, err := b.put(1, make([]byte, 6))
	require.NoError(t, err)

	_, err = b.put(2, make([]byte, 6))
	assert.ErrorIs(t, err, ErrWindowExceeded, "cap overflow is rejected")

	// Replacing a held payload releases its bytes first.
	res, err := b.put(1, make([]byte, 9))
	require.NoError(t, err)
	assert.Equal(t, putReplaced, res)
	assert.Equal(t, int64(9), b.bytes)
}

func TestFrameBufferFlushedIndexIsNoOp(t *testing.T) {
	b := newFrameBuffer(10, 1<<20)

	_, err := b.put(0, []byte{0})
	require.NoError(t, err)
	_, ok := b.pop()
	require.True(t, ok)

	res, err := b.put(0, []byte{0})
	require.NoError(t, err)
	assert.Equal(t, putFlushed, res)
	assert.Zero(t, b.buffered())
}
