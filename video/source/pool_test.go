package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNV21Size(t *testing.T) {
	// 640*480*12 bits = 460800 bytes, plus one.
	assert.Equal(t, 460801, NV21Size(640, 480))
	assert.Equal(t, 10, NV21Size(2, 3))
}

func TestPoolAcquireRelease(t *testing.T) {
	p := NewBufferPool(0)
	p.Strict = true
	assert.Equal(t, DefaultBufferCount, p.Cap())

	_, err := p.Acquire()
	assert.ErrorIs(t, err, ErrPoolUnconfigured)

	require.NoError(t, p.Configure(640, 480))

	var bufs []*Buffer
	for i := 0; i < DefaultBufferCount; i++ {
		b, err := p.Acquire()
		require.NoError(t, err)
		assert.Len(t, b.Bytes(), NV21Size(640, 480))
		bufs = append(bufs, b)
	}
	_, err = p.Acquire()
	assert.ErrorIs(t, err, ErrPoolExhausted)
	assert.Equal(t, 4, p.Outstanding())

	seen := map[int]bool{}
	for _, b := range bufs {
		seen[b.Index()] = true
		p.Release(b)
	}
	assert.Len(t, seen, DefaultBufferCount)
	assert.Equal(t, 0, p.Outstanding())
}

func TestPoolDoubleReleasePanicsWhenStrict(t *testing.T) {
	p := NewBufferPool(2)
	p.Strict = true
	require.NoError(t, p.Configure(4, 4))
	b, err := p.Acquire()
	require.NoError(t, err)
	p.Release(b)
	assert.Panics(t, func() { p.Release(b) })
}

func TestPoolDoubleReleaseIgnoredWhenLenient(t *testing.T) {
	p := NewBufferPool(2)
	require.NoError(t, p.Configure(4, 4))
	b, err := p.Acquire()
	require.NoError(t, err)
	p.Release(b)
	assert.NotPanics(t, func() { p.Release(b) })
	assert.Equal(t, 0, p.Outstanding())

	// The slot must not have been added to the free list twice.
	_, err = p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	require.NoError(t, err)
	_, err = p.Acquire()
	assert.ErrorIs(t, err, ErrPoolExhausted)
}

func TestPoolForeignBuffer(t *testing.T) {
	a := NewBufferPool(1)
	b := NewBufferPool(1)
	a.Strict = true
	require.NoError(t, a.Configure(2, 2))
	require.NoError(t, b.Configure(2, 2))
	buf, err := b.Acquire()
	require.NoError(t, err)
	assert.Panics(t, func() { a.Release(buf) })
}

func TestPoolResize(t *testing.T) {
	p := NewBufferPool(2)
	require.NoError(t, p.Configure(4, 4))
	b, err := p.Acquire()
	require.NoError(t, err)

	assert.NoError(t, p.Configure(4, 4), "same size is a no-op")
	assert.ErrorIs(t, p.Configure(8, 8), ErrBuffersOutstanding)

	p.Release(b)
	require.NoError(t, p.Configure(8, 8))
	assert.Equal(t, Size{Width: 8, Height: 8}, p.Size())
	b, err = p.Acquire()
	require.NoError(t, err)
	assert.Len(t, b.Bytes(), NV21Size(8, 8))
}

func TestFrameReleaseOnce(t *testing.T) {
	p := NewBufferPool(1)
	p.Strict = true
	require.NoError(t, p.Configure(2, 2))
	b, err := p.Acquire()
	require.NoError(t, err)

	f := NewFrame(b, 2, 2, 270, FacingFront, 7)
	assert.Equal(t, 3, f.Quadrant())
	assert.Same(t, b, f.Buffer())

	f.Release()
	assert.Nil(t, f.Buffer())
	assert.NotPanics(t, f.Release)
	assert.Equal(t, 0, p.Outstanding())
}
